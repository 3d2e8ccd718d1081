package tool

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/moyoez/excel-console/types"
)

var ConfigPath = "config.yaml" // be aware that it can be changed, default to ./config.yaml

// DefaultConfig returns the config written when no file exists yet.
func DefaultConfig() types.AppConfig {
	return types.AppConfig{
		BackendURL:   "http://localhost:8000",
		PushURL:      "ws://localhost:8000/ws/upload-progress",
		Port:         8090,
		UploadFolder: "uploads",
		LogLimit:     50,
		LogCacheTTL:  5 * time.Minute,
		HTTPTimeout:  DefaultTimeout,
		ProbeICMP:    false,
		Reconnect: types.ReconnectConfig{
			Enabled:     false,
			MaxAttempts: 3,
			Interval:    2 * time.Second,
		},
	}
}

func LoadConfig(path string) (types.AppConfig, error) {
	if path == "" {
		path = ConfigPath
	}
	ConfigPath = path

	cfg := DefaultConfig()

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			if writeErr := writeConfig(path, cfg); writeErr != nil {
				return cfg, fmt.Errorf("config file not found, and failed to generate default config: %v", writeErr)
			}
			DefaultLogger.Infof("Created new config file at %s", path)
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config file: %v", err)
	}
	if info.IsDir() {
		return cfg, fmt.Errorf("config file path is a directory: %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %v", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %v", err)
	}
	normalizeConfig(&cfg)
	return cfg, nil
}

// ApplyFlags merges CLI overrides into cfg.
func ApplyFlags(cfg *types.AppConfig, flags types.Config) {
	if flags.UseBackend != "" {
		cfg.BackendURL = flags.UseBackend
		if flags.UsePushURL == "" {
			cfg.PushURL = PushURLFromBackend(flags.UseBackend)
		}
	}
	if flags.UsePushURL != "" {
		cfg.PushURL = flags.UsePushURL
	}
	if flags.UsePort > 0 {
		cfg.Port = flags.UsePort
	}
	if flags.UseUploadFolder != "" {
		cfg.UploadFolder = flags.UseUploadFolder
	}
	if flags.UseReconnect {
		cfg.Reconnect.Enabled = true
	}
	normalizeConfig(cfg)
}

// normalizeConfig fills zero values a partial file leaves behind.
func normalizeConfig(cfg *types.AppConfig) {
	def := DefaultConfig()
	cfg.BackendURL = strings.TrimRight(cfg.BackendURL, "/")
	if cfg.BackendURL == "" {
		cfg.BackendURL = def.BackendURL
	}
	if cfg.PushURL == "" {
		cfg.PushURL = PushURLFromBackend(cfg.BackendURL)
	}
	if cfg.Port <= 0 {
		cfg.Port = def.Port
	}
	if cfg.UploadFolder == "" {
		cfg.UploadFolder = def.UploadFolder
	}
	if cfg.LogLimit <= 0 {
		cfg.LogLimit = def.LogLimit
	}
	if cfg.LogCacheTTL <= 0 {
		cfg.LogCacheTTL = def.LogCacheTTL
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = def.HTTPTimeout
	}
	if cfg.Reconnect.MaxAttempts <= 0 {
		cfg.Reconnect.MaxAttempts = def.Reconnect.MaxAttempts
	}
	if cfg.Reconnect.Interval <= 0 {
		cfg.Reconnect.Interval = def.Reconnect.Interval
	}
}

// PushURLFromBackend derives the progress websocket endpoint from the backend base URL.
func PushURLFromBackend(backend string) string {
	backend = strings.TrimRight(backend, "/")
	switch {
	case strings.HasPrefix(backend, "https://"):
		backend = "wss://" + strings.TrimPrefix(backend, "https://")
	case strings.HasPrefix(backend, "http://"):
		backend = "ws://" + strings.TrimPrefix(backend, "http://")
	}
	return backend + "/ws/upload-progress"
}

func writeConfig(path string, cfg types.AppConfig) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

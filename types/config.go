package types

import "time"

// AppConfig represents the application configuration loaded from config file
type AppConfig struct {
	BackendURL   string          `yaml:"backendURL"`
	PushURL      string          `yaml:"pushURL"`
	Port         int             `yaml:"port"`
	UploadFolder string          `yaml:"uploadFolder"`
	LogLimit     int             `yaml:"logLimit"`
	LogCacheTTL  time.Duration   `yaml:"logCacheTTL"`
	HTTPTimeout  time.Duration   `yaml:"httpTimeout"`
	ProbeICMP    bool            `yaml:"probeICMP"`
	Reconnect    ReconnectConfig `yaml:"reconnect"`
}

// ReconnectConfig decides what happens when the push channel drops mid-session.
type ReconnectConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxAttempts int           `yaml:"maxAttempts"`
	Interval    time.Duration `yaml:"interval"`
}

// Config holds runtime overrides from CLI flags
type Config struct {
	Log             string
	UseConfigPath   string
	UseBackend      string
	UsePushURL      string
	UsePort         int
	UseUploadFolder string
	UseImport       string // headless: select, preview and commit this file, then exit
	UseReconnect    bool
}

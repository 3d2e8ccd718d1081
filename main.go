package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/log"

	"github.com/moyoez/excel-console/api"
	"github.com/moyoez/excel-console/console"
	"github.com/moyoez/excel-console/history"
	"github.com/moyoez/excel-console/progress"
	"github.com/moyoez/excel-console/tool"
	"github.com/moyoez/excel-console/transfer"
)

func main() {
	cfg := tool.SetFlags()
	appCfg, err := tool.LoadConfig(cfg.UseConfigPath)
	if err != nil {
		tool.DefaultLogger.Fatalf("%v", err)
	}
	tool.ApplyFlags(&appCfg, cfg)

	// initialize logger
	tool.InitLogger()
	switch strings.ToLower(cfg.Log) {
	case "", "dev":
		tool.DefaultLogger.SetLevel(log.DebugLevel)
	case "prod":
		tool.DefaultLogger.SetLevel(log.InfoLevel)
	case "none":
		tool.DefaultLogger.SetLevel(log.FatalLevel)
	default:
		tool.DefaultLogger.Warnf("Unknown log mode %q, using debug level", cfg.Log)
		tool.DefaultLogger.SetLevel(log.DebugLevel)
	}

	tool.InitHTTPClients(appCfg.HTTPTimeout)
	backend := transfer.NewClient(appCfg.BackendURL, tool.GetHttpClient())
	logs := history.New(backend, appCfg.LogLimit, appCfg.LogCacheTTL)
	c := console.New(backend, logs, console.Options{
		PushURL:   appCfg.PushURL,
		Reconnect: progress.PolicyFromConfig(appCfg.Reconnect),
		LogLimit:  appCfg.LogLimit,
	})
	tool.DefaultLogger.Infof("Backend %s, progress channel %s", appCfg.BackendURL, appCfg.PushURL)

	if cfg.UseImport != "" {
		err := runImport(c, cfg.UseImport)
		_ = c.Close()
		if err != nil {
			tool.DefaultLogger.Errorf("Import failed: %v", err)
			os.Exit(1)
		}
		return
	}

	apiServer := api.NewServer(appCfg.Port, api.Deps{
		Console:      c,
		History:      logs,
		Backend:      backend,
		UploadFolder: appCfg.UploadFolder,
		ProbeICMP:    appCfg.ProbeICMP,
	})
	go func() {
		if err := apiServer.Start(); err != nil {
			tool.DefaultLogger.Fatalf("API server startup failed: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	tool.DefaultLogger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		tool.DefaultLogger.Warnf("API server shutdown: %v", err)
	}
	if err := c.Close(); err != nil {
		tool.DefaultLogger.Warnf("Console close: %v", err)
	}
}

// runImport selects, previews and commits one file, then waits for the
// upload to settle.
func runImport(c *console.Console, path string) error {
	updates, cancel := c.Subscribe()
	defer cancel()

	if err := c.Select(path); err != nil {
		return err
	}
	if err := c.Preview(); err != nil {
		return err
	}
	committed := false
	for v := range updates {
		switch {
		case v.Stage == console.StageFailed:
			return fmt.Errorf("%s", v.ErrorMessage)
		case !committed && v.Stage == console.StageFileSelected && v.ErrorMessage != "":
			if v.HasPreviewErrors() {
				return fmt.Errorf("%s (%d invalid of %d rows)", v.ErrorMessage, v.InvalidRowCount(), v.TotalPreviewRows())
			}
			return fmt.Errorf("%s", v.ErrorMessage)
		case !committed && v.Stage == console.StageReady:
			tool.DefaultLogger.Infof("%s", v.SuccessMessage)
			if err := c.Commit(); err != nil {
				return err
			}
			committed = true
		case committed && v.Stage == console.StageUploading:
			tool.DefaultLogger.Infof("Progress: %d%% (%s)", v.Progress.Percentage, v.Progress.Phase)
		case committed && v.Stage == console.StageSettling:
			tool.DefaultLogger.Infof("%s", v.SuccessMessage)
		case committed && v.Stage == console.StageIdle:
			return nil
		}
	}
	return console.ErrClosed
}

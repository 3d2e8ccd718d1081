package tool

import (
	"flag"

	"github.com/moyoez/excel-console/types"
)

// SetFlags parses CLI flags and returns the override config.
func SetFlags() types.Config {
	var cfg types.Config
	flag.StringVar(&cfg.Log, "log", "", "log mode: dev|prod|none")
	flag.StringVar(&cfg.UseConfigPath, "useConfigPath", "", "override config file path")
	flag.StringVar(&cfg.UseBackend, "useBackend", "", "override backend base URL, e.g. http://localhost:8000")
	flag.StringVar(&cfg.UsePushURL, "usePushURL", "", "override progress websocket URL")
	flag.IntVar(&cfg.UsePort, "usePort", 0, "override console listen port")
	flag.StringVar(&cfg.UseUploadFolder, "useUploadFolder", "", "override folder for files selected from the browser")
	flag.StringVar(&cfg.UseImport, "useImport", "", "headless mode: import this spreadsheet and exit")
	flag.BoolVar(&cfg.UseReconnect, "useReconnect", false, "reconnect the progress channel when it drops")
	flag.Parse()
	return cfg
}

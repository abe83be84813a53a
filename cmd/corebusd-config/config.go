// cmd/corebusd-config/config.go
// Flags-over-env-over-defaults loader for the configuration daemon,
// mirroring the teacher's cmd/flarego-gateway/config.go shape.
//
// Environment variables (prefixed COREBUSD_CONFIG_):
//
//	SOCKET_DIR – core-bus per-interface socket directory
package main

import (
	"flag"

	"github.com/spf13/viper"
)

type daemonConfig struct {
	SocketDir string
	LogJSON   bool
}

func loadConfig() daemonConfig {
	v := viper.New()
	v.SetEnvPrefix("COREBUSD_CONFIG")
	v.AutomaticEnv()

	socketDir := flag.String("socket-dir", "/run/ipcbus", "core-bus per-interface socket directory")
	logJSON := flag.Bool("log-json", false, "enable JSON log output")
	flag.Parse()

	cfg := daemonConfig{SocketDir: *socketDir, LogJSON: *logJSON}
	socketDirSet := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "socket-dir" {
			socketDirSet = true
		}
	})
	if s := v.GetString("SOCKET_DIR"); s != "" && !socketDirSet {
		cfg.SocketDir = s
	}
	return cfg
}

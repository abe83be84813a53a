// cmd/corebusctl/root.go
// Root command for the corebusctl CLI, mirroring the teacher's
// cmd/flarego/root.go wiring: persistent flags, viper-backed config file
// discovery, and sibling subcommand files (call.go, notify.go,
// subscribe.go, list.go, version.go).
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/edgerun/ipcbus/internal/logging"
)

var (
	cfgFile   string
	logJSON   bool
	socketDir string

	rootCmd = &cobra.Command{
		Use:   "corebusctl",
		Short: "Inspect and drive interfaces on the core bus",
		Long:  `corebusctl is a local operator tool for calling, notifying, and subscribing to core-bus interfaces, and for listing which interfaces are currently listening.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if logging.Initialised() {
				return nil
			}
			return initLogger()
		},
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to configuration file (YAML/TOML/JSON)")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "enable JSON log output (default is human-friendly console)")
	rootCmd.PersistentFlags().StringVar(&socketDir, "socket-dir", "/run/ipcbus", "core-bus per-interface socket directory")

	rootCmd.AddCommand(newCallCmd())
	rootCmd.AddCommand(newNotifyCmd())
	rootCmd.AddCommand(newSubscribeCmd())
	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newVersionCmd())
}

// Execute is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "corebusctl"))
		}
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix("COREBUSCTL")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		logging.Sugar().Infof("using config file: %s", viper.ConfigFileUsed())
	}
}

func initLogger() error {
	cfg := zap.NewProductionConfig()
	if !logJSON {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.EncoderConfig.EncodeTime = zap.TimeEncoder(func(t time.Time, enc zap.PrimitiveArrayEncoder) {
		enc.AppendString(t.Format(time.RFC3339))
	})

	logger, err := cfg.Build()
	if err != nil {
		return err
	}
	logging.Set(logger)
	return nil
}

// cmd/corebusd-config/main.go
// Binary entrypoint for the gg_config daemon: hosts the in-memory
// configuration tree (internal/config) on the core bus, per spec §4.11.
package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/edgerun/ipcbus/internal/config"
	busserver "github.com/edgerun/ipcbus/internal/corebus/server"
	"github.com/edgerun/ipcbus/internal/logging"
	"github.com/edgerun/ipcbus/pkg/version"
)

func main() {
	cfg := loadConfig()

	zapCfg := zap.NewProductionConfig()
	if !cfg.LogJSON {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.EncoderConfig.EncodeTime = zap.TimeEncoder(func(t time.Time, enc zap.PrimitiveArrayEncoder) {
		enc.AppendString(t.Format(time.RFC3339))
	})
	lg, err := zapCfg.Build()
	if err != nil {
		panic(err)
	}
	logging.Set(lg)
	defer lg.Sync() //nolint:errcheck

	logging.Sugar().Infow("corebusd-config starting", "version", version.String())

	tree := config.New()
	srv, err := busserver.Listen(cfg.SocketDir, config.InterfaceName, tree.BusMethods())
	if err != nil {
		logging.Sugar().Fatalw("gg_config listen failed", "error", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logging.Sugar().Infow("signal received, shutting down")
	if err := srv.Close(); err != nil {
		logging.Sugar().Warnw("error during shutdown", "error", err)
	}
}

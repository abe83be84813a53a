// cmd/ipcgatewayd/main.go
// Binary entrypoint for the IPC gateway daemon: terminates the eventstream
// RPC protocol on one well-known Unix socket, authenticates connecting
// components, authorizes and dispatches their modeled operations onto the
// core bus, and bridges subscriptions back as streamed events.
package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/edgerun/ipcbus/internal/gateway"
	"github.com/edgerun/ipcbus/internal/gateway/auth"
	"github.com/edgerun/ipcbus/internal/logging"
	"github.com/edgerun/ipcbus/pkg/version"
)

func main() {
	cfg, logJSON := loadGatewayConfig()

	zapCfg := zap.NewProductionConfig()
	if !logJSON {
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

	logging.Sugar().Infow("ipcgatewayd starting", "version", version.String())

	gw, err := gateway.New(cfg, auth.AllowAllAuthority{})
	if err != nil {
		logging.Sugar().Fatalw("gateway init failed", "error", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logging.Sugar().Infow("signal received, shutting down")
	if err := gw.Close(); err != nil {
		logging.Sugar().Warnw("error during shutdown", "error", err)
	}
}

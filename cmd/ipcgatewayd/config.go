// cmd/ipcgatewayd/config.go
// Helper for parsing CLI flags and env vars into a gateway.Config so that
// main.go stays minimal, mirroring the teacher's
// cmd/flarego-gateway/config.go flags-over-env-over-defaults precedence.
// File and env layering is delegated to gateway.LoadConfig; flags (if set)
// take the final precedence pass.
//
// Environment variables (prefixed IPCGATEWAYD_):
//
//	SOCKET_DIR     – core-bus per-interface socket directory
//	RUNTIME_ROOT   – gateway well-known socket directory
//	METRICS_ADDR   – Prometheus /metrics listen address (empty disables)
//	ADMIN_ADDR     – admin verify-svcuid listen address (empty disables)
//	ADMIN_SECRET   – HMAC secret for admin bearer tokens
//	ADMIN_ISSUER   – expected "iss" claim on admin bearer tokens
package main

import (
	"flag"

	"github.com/edgerun/ipcbus/internal/gateway"
)

func loadGatewayConfig() (gateway.Config, bool) {
	cfg := gateway.DefaultConfig()

	configFile := flag.String("config", "", "optional YAML/TOML/JSON config file")
	socketDir := flag.String("socket-dir", "", "core-bus per-interface socket directory")
	runtimeRoot := flag.String("runtime-root", "", "gateway well-known socket directory")
	metricsAddr := flag.String("metrics-addr", "", "Prometheus /metrics listen address (empty disables)")
	adminAddr := flag.String("admin-addr", "", "admin verify-svcuid listen address (empty disables)")
	adminSecret := flag.String("admin-secret", "", "HMAC secret for admin bearer tokens")
	adminIssuer := flag.String("admin-issuer", "", "expected iss claim on admin bearer tokens")
	logJSON := flag.Bool("log-json", false, "enable JSON log output")
	flag.Parse()

	gateway.LoadConfig(&cfg, *configFile, "IPCGATEWAYD")

	if *socketDir != "" {
		cfg.SocketDir = *socketDir
	}
	if *runtimeRoot != "" {
		cfg.RuntimeRoot = *runtimeRoot
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}
	if *adminAddr != "" {
		cfg.AdminAddr = *adminAddr
	}
	if *adminSecret != "" {
		cfg.AdminSecret = *adminSecret
	}
	if *adminIssuer != "" {
		cfg.AdminIssuer = *adminIssuer
	}

	return cfg, *logJSON
}

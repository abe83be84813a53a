// internal/gateway/config.go
// Centralized loader for the IPC gateway's process configuration (distinct
// from the gg_config bus interface in internal/config). LoadConfig fills a
// Config from, highest precedence first: environment variables prefixed
// with the given envPrefix, then an optional config file, then the values
// already in the struct passed by the caller, which act as defaults. Flags
// are applied afterwards by the caller (cmd/ipcgatewayd). Same loader shape
// as the teacher's cmd/flarego-gateway/config.go, built on spf13/viper.
package gateway

import (
	"time"

	"github.com/spf13/viper"
)

// Config parameterizes a gateway Server.
type Config struct {
	// SocketDir is where per-interface core-bus sockets live (gg_config,
	// aws_iot_mqtt, gg_pubsub, ...), matching corebus/server.Listen's
	// socketDir argument.
	SocketDir string
	// RuntimeRoot is the parent directory for the gateway's well-known
	// socket (transport.SocketName).
	RuntimeRoot string
	// MetricsAddr, if non-empty, serves Prometheus /metrics at this
	// loopback address.
	MetricsAddr string
	// AdminAddr, if non-empty, serves the privileged verify-svcuid HTTP
	// surface (internal/gateway/admin) at this loopback address.
	AdminAddr string
	// AdminSecret is the HMAC key for the admin listener's bearer tokens.
	AdminSecret string
	// AdminIssuer is the expected "iss" claim on admin bearer tokens.
	AdminIssuer string
	// AdminTokenTTL bounds minted admin token lifetime.
	AdminTokenTTL time.Duration
	// DialRetry holds dial backoff tunables. Neither LoadConfig nor New
	// reads it: the gateway's core-bus calls to collaborator interfaces
	// (gg_config, gg_pubsub, aws_iot_mqtt) dial once without retry.
	DialRetry *DialRetryConfig
}

// DialRetryConfig has the same fields as corebus/client.DialRetry.
type DialRetryConfig struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
}

// DefaultConfig returns sane defaults for a single-host deployment.
func DefaultConfig() Config {
	return Config{
		SocketDir:     "/run/ipcbus",
		RuntimeRoot:   "/run/ipcbus",
		MetricsAddr:   "",
		AdminAddr:     "",
		AdminTokenTTL: 15 * time.Minute,
	}
}

// LoadConfig merges file + env into cfg (caller typically passes
// DefaultConfig()). filePath may be empty. envPrefix e.g. "IPCGATEWAYD".
func LoadConfig(cfg *Config, filePath, envPrefix string) {
	if cfg == nil {
		tmp := DefaultConfig()
		cfg = &tmp
	}

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	if filePath != "" {
		v.SetConfigFile(filePath)
		_ = v.ReadInConfig() // treat missing file as non-fatal
	}

	v.SetDefault("socket_dir", cfg.SocketDir)
	v.SetDefault("runtime_root", cfg.RuntimeRoot)
	v.SetDefault("metrics_addr", cfg.MetricsAddr)
	v.SetDefault("admin_addr", cfg.AdminAddr)
	v.SetDefault("admin_secret", cfg.AdminSecret)
	v.SetDefault("admin_issuer", cfg.AdminIssuer)

	cfg.SocketDir = v.GetString("socket_dir")
	cfg.RuntimeRoot = v.GetString("runtime_root")
	cfg.MetricsAddr = v.GetString("metrics_addr")
	cfg.AdminAddr = v.GetString("admin_addr")
	cfg.AdminSecret = v.GetString("admin_secret")
	cfg.AdminIssuer = v.GetString("admin_issuer")
}

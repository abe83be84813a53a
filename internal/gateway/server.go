// internal/gateway/server.go
// Package gateway wires the IPC gateway's well-known socket (transport),
// component registry and authentication (auth), operation dispatcher
// (dispatch), and subscription bridge (bridge) into one long-lived process,
// plus the optional /metrics and admin HTTP side channels described in
// spec §4.13.
package gateway

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	busserver "github.com/edgerun/ipcbus/internal/corebus/server"

	"github.com/edgerun/ipcbus/internal/corebus/client"
	gwadmin "github.com/edgerun/ipcbus/internal/gateway/admin"
	gwauth "github.com/edgerun/ipcbus/internal/gateway/auth"
	"github.com/edgerun/ipcbus/internal/gateway/bridge"
	"github.com/edgerun/ipcbus/internal/gateway/dispatch"
	"github.com/edgerun/ipcbus/internal/gateway/transport"
	"github.com/edgerun/ipcbus/internal/logging"
	"github.com/edgerun/ipcbus/internal/telemetry"
)

// Server is a fully wired IPC gateway process.
type Server struct {
	cfg Config

	registry  *gwauth.Registry
	component *busserver.Server // ipc_component bus interface
	transport *transport.Server
	dispatcher *dispatch.Dispatcher
	bridge     *bridge.Bridge
	subs       *client.Subscriptions

	metricsSrv *http.Server
	adminSrv   *gwadmin.Server
}

// New builds and starts a gateway Server: it opens the gateway's
// well-known socket, registers the ipc_component auxiliary bus interface,
// and (if configured) starts the /metrics and admin HTTP listeners. peers
// authorizes peer-mode componentName claims; a nil peers defaults to
// gwauth.AllowAllAuthority.
func New(cfg Config, peers gwauth.PeerAuthority) (*Server, error) {
	registry := gwauth.NewRegistry()
	authenticator := gwauth.NewAuthenticator(registry, peers)

	subs := client.NewSubscriptions(client.DefaultMaxSubscriptions)
	reader := &busConfigReader{socketDir: cfg.SocketDir}

	// dispatch.New needs a *transport.Server and *bridge.Bridge, both of
	// which need the Dispatcher to exist first (transport.Listen takes a
	// Dispatcher; bridge.New takes the transport.Server). Build the
	// Dispatcher with those fields nil, open the listener against it, then
	// backfill once the real values exist — safe because nothing reaches
	// Dispatcher.Respond/SendError until a connection completes its
	// connect handshake, which cannot happen before New returns.
	d := dispatch.New(cfg.SocketDir, nil, nil, subs, reader)
	dispatch.RegisterAll(d)

	gw, err := transport.Listen(cfg.RuntimeRoot, authenticator, d)
	if err != nil {
		return nil, err
	}
	br := bridge.New(gw, subs)
	d.Gateway = gw
	d.Bridge = br

	component, err := busserver.Listen(cfg.SocketDir, gwauth.InterfaceName, registry.BusMethods())
	if err != nil {
		_ = gw.Close()
		return nil, err
	}

	s := &Server{
		cfg:        cfg,
		registry:   registry,
		component:  component,
		transport:  gw,
		dispatcher: d,
		bridge:     br,
		subs:       subs,
	}

	if cfg.MetricsAddr != "" {
		s.startMetrics()
	}
	if cfg.AdminAddr != "" {
		s.adminSrv = gwadmin.New(gwadmin.Config{
			ListenAddr: cfg.AdminAddr,
			Secret:     []byte(cfg.AdminSecret),
			Issuer:     cfg.AdminIssuer,
			TokenTTL:   cfg.AdminTokenTTL,
		}, registry)
		s.adminSrv.Start()
	}

	logging.Sugar().Infow("ipc gateway started",
		"runtime_root", cfg.RuntimeRoot, "socket_dir", cfg.SocketDir)
	return s, nil
}

func (s *Server) startMetrics() {
	telemetry.Register()
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	s.metricsSrv = &http.Server{
		Addr:         s.cfg.MetricsAddr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
	go func() {
		if err := s.metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Sugar().Warnw("metrics listener error", "error", err)
		}
	}()
	logging.Sugar().Infow("metrics listener started", "addr", s.cfg.MetricsAddr)
}

// Close shuts down every listener the Server opened.
func (s *Server) Close() error {
	if s.adminSrv != nil {
		_ = s.adminSrv.Close()
	}
	if s.metricsSrv != nil {
		_ = s.metricsSrv.Close()
	}
	_ = s.component.Close()
	return s.transport.Close()
}

// Registry exposes the component registry, mainly for cmd/corebusctl-style
// operator tooling that needs to mint or inspect svcuids out of band.
func (s *Server) Registry() *gwauth.Registry { return s.registry }

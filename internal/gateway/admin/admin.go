// Package admin implements the optional privileged stream-manager HTTP
// surface mentioned in spec §4.7: "a privileged stream-manager component
// can validate opaque tokens received out-of-band." Rather than handing
// that component a raw svcuid, it authenticates with a short-lived HMAC
// JWT and a loopback-only HTTP endpoint runs, on its behalf, the same
// in-process registry check that the ipc_component.verify_svcuid bus
// method exposes (Registry.Verify); no bus call is made.
//
// Grounded on the teacher's pkg/auth/jwt.go Signer/Verifier and its
// internal/gateway/auth.go HTTPAuthMiddleware bearer-token pattern,
// adapted from gRPC/WebSocket auth to a single plain HTTP verify
// endpoint over a component registry lookup.
package admin

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/edgerun/ipcbus/internal/gateway/auth"
	"github.com/edgerun/ipcbus/internal/logging"
	"github.com/edgerun/ipcbus/internal/util"
	ggauth "github.com/edgerun/ipcbus/pkg/auth"
)

// Config parameterizes the admin listener.
type Config struct {
	// ListenAddr is the loopback address the admin HTTP server binds,
	// e.g. "127.0.0.1:8443". Never expose this off-host.
	ListenAddr string
	// Secret is the HMAC key shared with the privileged caller out of band.
	Secret []byte
	// Issuer is the expected "iss" claim on presented tokens.
	Issuer string
	// TokenTTL bounds how long a minted token (IssueToken) remains valid.
	TokenTTL time.Duration
}

// Server is the admin HTTP listener: one endpoint, POST /verify-svcuid,
// guarded by an HMAC bearer token.
type Server struct {
	httpSrv  *http.Server
	signer   *ggauth.Signer
	verifier *ggauth.Verifier
	registry *auth.Registry
}

// New builds an admin Server backed by registry. The caller starts it with
// Start and stops it with Close.
func New(cfg Config, registry *auth.Registry) *Server {
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	s := &Server{
		signer:   ggauth.NewSigner(cfg.Secret, cfg.Issuer, ttl),
		verifier: ggauth.NewVerifier(cfg.Secret, cfg.Issuer),
		registry: registry,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/verify-svcuid", s.handleVerifySvcuid)
	s.httpSrv = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
	return s
}

// IssueToken mints a bearer token for subject, used by an operator tool to
// provision the privileged caller out of band rather than shipping the
// shared secret itself. Each token carries a unique "jti" so issued tokens
// can be told apart in logs even when minted for the same subject back to
// back.
func (s *Server) IssueToken(subject string) (string, error) {
	return s.signer.Sign(s.signer.Claims(subject, map[string]any{"jti": util.MustNew()}))
}

// Start begins serving in a background goroutine.
func (s *Server) Start() {
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Sugar().Warnw("admin listener error", "error", err)
		}
	}()
	logging.Sugar().Infow("admin listener started", "addr", s.httpSrv.Addr)
}

// Close stops the admin listener.
func (s *Server) Close() error { return s.httpSrv.Close() }

func (s *Server) handleVerifySvcuid(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	authz := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(authz, "Bearer ")
	if !ok || token == "" {
		http.Error(w, "missing bearer token", http.StatusUnauthorized)
		return
	}
	if _, err := s.verifier.ParseAndVerify(token); err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	var body struct {
		Svcuid string `json:"svcuid"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Svcuid == "" {
		http.Error(w, "missing svcuid", http.StatusBadRequest)
		return
	}

	resp := struct {
		Valid bool `json:"valid"`
	}{Valid: s.registry.Verify(body.Svcuid)}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

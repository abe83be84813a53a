package admin

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/edgerun/ipcbus/internal/gateway/auth"
)

func TestVerifySvcuidRequiresBearerToken(t *testing.T) {
	registry := auth.NewRegistry()
	srv := New(Config{Secret: []byte("shh"), Issuer: "ipcgatewayd"}, registry)

	req := httptest.NewRequest(http.MethodPost, "/verify-svcuid", bytes.NewReader([]byte(`{"svcuid":"x"}`)))
	rec := httptest.NewRecorder()
	srv.handleVerifySvcuid(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a bearer token, got %d", rec.Code)
	}
}

func TestVerifySvcuidWithValidToken(t *testing.T) {
	registry := auth.NewRegistry()
	srv := New(Config{Secret: []byte("shh"), Issuer: "ipcgatewayd"}, registry)

	token, err := srv.IssueToken("stream-manager")
	if err != nil {
		t.Fatal(err)
	}

	svcuid, err := registry.Register("com.acme.Widget")
	if err != nil {
		t.Fatal(err)
	}

	body, _ := json.Marshal(map[string]string{"svcuid": svcuid})
	req := httptest.NewRequest(http.MethodPost, "/verify-svcuid", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	srv.handleVerifySvcuid(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Valid bool `json:"valid"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Valid {
		t.Fatal("expected svcuid to verify as valid")
	}
}

func TestVerifySvcuidRejectsUnknownSvcuid(t *testing.T) {
	registry := auth.NewRegistry()
	srv := New(Config{Secret: []byte("shh"), Issuer: "ipcgatewayd"}, registry)

	token, err := srv.IssueToken("stream-manager")
	if err != nil {
		t.Fatal(err)
	}

	body, _ := json.Marshal(map[string]string{"svcuid": "bogus"})
	req := httptest.NewRequest(http.MethodPost, "/verify-svcuid", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	srv.handleVerifySvcuid(rec, req)

	var resp struct {
		Valid bool `json:"valid"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Valid {
		t.Fatal("expected unknown svcuid to verify as invalid")
	}
}

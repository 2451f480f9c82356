package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	inprocess "github.com/rmacdonaldsmith/tagmesh/internal/bus"
	"github.com/rmacdonaldsmith/tagmesh/internal/coreplugin"
	"github.com/rmacdonaldsmith/tagmesh/internal/host"
	"github.com/rmacdonaldsmith/tagmesh/internal/plugins/speech"
	"github.com/rmacdonaldsmith/tagmesh/pkg/bus"
	"github.com/rmacdonaldsmith/tagmesh/pkg/plugin"
)

// TestServerSetup holds common test dependencies
type TestServerSetup struct {
	Host   *host.Host
	Core   *coreplugin.Plugin
	Server *Server
	Auth   *JWTAuth
}

// NewTestServerSetup starts a host with the core and speech plugins on a
// synchronous bus and serves it over an HTTP API server.
func NewTestServerSetup(t *testing.T) *TestServerSetup {
	return newTestServerSetup(t, false)
}

func newTestServerSetup(t *testing.T, noAuth bool) *TestServerSetup {
	t.Helper()

	var core *coreplugin.Plugin
	config := host.NewConfig(func(b bus.Bus) (plugin.Plugin, error) {
		core = coreplugin.New(b, coreplugin.Config{})
		return core, nil
	}).WithBusConfig(inprocess.Config{Synchronous: true})

	h, err := host.NewHost(config)
	if err != nil {
		t.Fatalf("Failed to create host: %v", err)
	}
	t.Cleanup(func() { h.Close() })

	ctx := context.Background()
	if err := h.Start(ctx); err != nil {
		t.Fatalf("Failed to start host: %v", err)
	}
	if err := h.Load(ctx, speech.New()); err != nil {
		t.Fatalf("Failed to load speech plugin: %v", err)
	}

	server := NewServer(h, core, h.Journal(), Config{
		Port:      "0",
		SecretKey: "test-secret-key",
		NoAuth:    noAuth,
	})

	return &TestServerSetup{
		Host:   h,
		Core:   core,
		Server: server,
		Auth:   server.Auth(),
	}
}

// GenerateTestToken creates a JWT token for testing
func (setup *TestServerSetup) GenerateTestToken(t *testing.T, clientID string, isAdmin bool) string {
	t.Helper()

	token, _, err := setup.Auth.GenerateToken(clientID, isAdmin)
	if err != nil {
		t.Fatalf("Failed to generate test token: %v", err)
	}
	return token
}

// Do sends a request through the full middleware chain.
func (setup *TestServerSetup) Do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	setup.Server.Handler().ServeHTTP(w, req)
	return w
}

// decodeBody decodes a JSON response body into v.
func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("Failed to decode response: %v. Body: %s", err, w.Body.String())
	}
}

// expectStatus fails the test when the response code differs.
func expectStatus(t *testing.T, w *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if w.Code != expected {
		t.Fatalf("Expected status %d (%s), got %d. Body: %s", expected, http.StatusText(expected), w.Code, w.Body.String())
	}
}

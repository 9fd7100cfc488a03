// Command mock-authn runs a deterministic authentication webhook for
// demos and integration tests of HTTP authenticators. Tokens map to fixed
// outcomes:
//
//	key-123  accepted as user u1 with read access to every settings scope
//	key-456  accepted as user u2, limited to client "web"
//	slow-*   accepted after MOCK_DELAY
//	other    rejected with "Invalid API key"
//
// Configuration:
//
//	MOCK_PORT  - Listen port (default: 9091)
//	MOCK_DELAY - Delay for slow-* tokens (default: 2s)
package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
)

func main() {
	port := os.Getenv("MOCK_PORT")
	if port == "" {
		port = "9091"
	}
	delay := 2 * time.Second
	if v := os.Getenv("MOCK_DELAY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			slog.Error("invalid MOCK_DELAY", "value", v, "error", err)
			os.Exit(1)
		}
		delay = d
	}

	srv := &http.Server{Addr: ":" + port, Handler: newMux(delay)}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("mock authn starting", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("mock authn failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("mock authn shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
}

func newMux(delay time.Duration) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/authenticate", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Token string `json:"token"`
		}
		// A missing or non-JSON body falls back to the Authorization header.
		json.NewDecoder(r.Body).Decode(&req)
		if req.Token == "" {
			req.Token = bearer(r.Header.Get("Authorization"))
		}
		respond(r.Context(), w, req.Token, delay)
	})
	mux.HandleFunc("GET /v1/introspect", func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		if token == "" {
			token = bearer(r.Header.Get("Authorization"))
		}
		respond(r.Context(), w, token, delay)
	})
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})
	return mux
}

func bearer(h string) string {
	return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
}

// --- Response types ---

type subject struct {
	ID   string `json:"id"`
	Type string `json:"type,omitempty"`
}

type authResult struct {
	OK          bool                      `json:"ok"`
	Subject     *subject                  `json:"subject,omitempty"`
	Permissions map[string]map[string]any `json:"permissions,omitempty"`
	Constraints map[string][]string       `json:"constraints,omitempty"`
	TTL         int                       `json:"ttl,omitempty"`
	Error       string                    `json:"error,omitempty"`
}

func readAll() map[string]map[string]any {
	return map[string]map[string]any{
		"globalSettings":  {"read": true},
		"clientSettings":  {"read": true},
		"userSettings":    {"read": true},
		"dynamicSettings": {"read": true},
	}
}

// outcome returns the fixed result for token.
func outcome(token string) (authResult, int) {
	switch {
	case token == "key-123":
		return authResult{OK: true, Subject: &subject{ID: "u1", Type: "user"}, Permissions: readAll(), TTL: 300}, http.StatusOK
	case token == "key-456":
		return authResult{
			OK:          true,
			Subject:     &subject{ID: "u2", Type: "user"},
			Permissions: readAll(),
			Constraints: map[string][]string{"clientIds": {"web"}},
		}, http.StatusOK
	case strings.HasPrefix(token, "slow-"):
		return authResult{OK: true, Subject: &subject{ID: strings.TrimPrefix(token, "slow-")}, Permissions: readAll()}, http.StatusOK
	default:
		return authResult{OK: false, Error: "Invalid API key"}, http.StatusUnauthorized
	}
}

func respond(ctx context.Context, w http.ResponseWriter, token string, delay time.Duration) {
	if strings.HasPrefix(token, "slow-") {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
	}
	result, status := outcome(token)
	slog.Info("authentication answered", "ok", result.OK, "status", status)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(result)
}

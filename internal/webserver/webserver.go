// Package webserver serves the Prometheus metrics endpoint and the
// read-only JSON statistics snapshot, adapted from the teacher's
// MetricsServer pattern. The /metrics endpoint may optionally be guarded by
// a bcrypt-hashed admin password (SPEC_FULL.md §3) — this is an operator
// admin surface, not client authentication, so it does not conflict with
// spec.md's "does not authenticate clients" non-goal.
package webserver

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/crypto/bcrypt"

	"chaosproxy/internal/chaos"
	"chaosproxy/internal/stats"
)

// Server wraps the HTTP server exposing /metrics and /api/stats.
type Server struct {
	server *http.Server
}

// New builds a Server. adminPasswordHash, when non-empty, guards /metrics
// with HTTP Basic Auth checked via bcrypt; an empty hash leaves it open.
func New(addr string, tracker *stats.Tracker, adminPasswordHash string) *Server {
	mux := http.NewServeMux()

	metricsHandler := promhttp.Handler()
	if adminPasswordHash != "" {
		metricsHandler = guardBasicAuth(metricsHandler, adminPasswordHash)
	}
	mux.Handle("/metrics", metricsHandler)

	if tracker != nil {
		mux.HandleFunc("/api/stats", tracker.Handler)
	}
	mux.HandleFunc("/debug/chaos", chaosDebugHandler)

	return &Server{
		server: &http.Server{Addr: addr, Handler: mux},
	}
}

// chaosDebugHandler samples a throwaway chaos engine and reports the
// informational stream-quality estimators. Diagnostic only: production
// engines live inside their relay goroutines and are never exposed here.
func chaosDebugHandler(w http.ResponseWriter, r *http.Request) {
	engine := chaos.New()
	const samples = 500
	for i := 0; i < samples; i++ {
		engine.Mix()
	}

	out := struct {
		Samples              int     `json:"samples"`
		LyapunovEstimate     float64 `json:"lyapunov_estimate"`
		ShannonEntropy       float64 `json:"shannon_entropy_bits"`
		CorrelationDimension float64 `json:"correlation_dimension"`
	}{
		Samples:              samples,
		LyapunovEstimate:     engine.LyapunovEstimate(),
		ShannonEntropy:       engine.ShannonEntropy(),
		CorrelationDimension: engine.CorrelationDimension(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(out); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// guardBasicAuth wraps h so that requests must present HTTP Basic Auth
// credentials whose password matches passwordHash via bcrypt. The username
// is not checked (single shared admin credential).
func guardBasicAuth(h http.Handler, passwordHash string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, password, ok := r.BasicAuth()
		if !ok || bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(password)) != nil {
			w.Header().Set("WWW-Authenticate", `Basic realm="metrics"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		h.ServeHTTP(w, r)
	})
}

// Start begins serving (non-blocking).
func (s *Server) Start() {
	go s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}

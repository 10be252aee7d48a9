package webserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"chaosproxy/internal/stats"
)

func TestStatsEndpointServesSnapshot(t *testing.T) {
	tracker := stats.New()
	tracker.ConnectionStarted("socks5")

	srv := New("127.0.0.1:0", tracker, "")
	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	rec := httptest.NewRecorder()
	srv.server.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("GET /api/stats = %d, want 200", rec.Code)
	}
	var snap stats.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("body is not a snapshot: %v", err)
	}
	if snap.TotalConnections != 1 {
		t.Errorf("total_connections = %d, want 1", snap.TotalConnections)
	}
}

func TestChaosDebugEndpointReportsEstimators(t *testing.T) {
	srv := New("127.0.0.1:0", nil, "")
	req := httptest.NewRequest(http.MethodGet, "/debug/chaos", nil)
	rec := httptest.NewRecorder()
	srv.server.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("GET /debug/chaos = %d, want 200", rec.Code)
	}
	var out struct {
		Samples        int     `json:"samples"`
		ShannonEntropy float64 `json:"shannon_entropy_bits"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if out.Samples != 500 {
		t.Errorf("samples = %d, want 500", out.Samples)
	}
	if out.ShannonEntropy <= 0 {
		t.Errorf("shannon entropy should be positive over 500 samples, got %v", out.ShannonEntropy)
	}
}

func TestMetricsGuardRejectsMissingAndWrongPassword(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("sekrit"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	srv := New("127.0.0.1:0", nil, string(hash))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.server.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no credentials: got %d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.SetBasicAuth("admin", "wrong")
	rec = httptest.NewRecorder()
	srv.server.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong password: got %d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.SetBasicAuth("admin", "sekrit")
	rec = httptest.NewRecorder()
	srv.server.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("correct password: got %d, want 200", rec.Code)
	}
}

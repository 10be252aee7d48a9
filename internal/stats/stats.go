// Package stats aggregates live proxy statistics behind a single mutex and
// exposes a read-only JSON snapshot, adapted from the teacher's
// StatsTracker/StatsHandler pattern for spec.md §4.13's connection-record
// model, enriched with the bypass-reason supplement (SPEC_FULL.md §4).
package stats

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Connection outcomes. Every started connection ends exactly once, as
// either a success or a failure.
const (
	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
)

// ConnectionRecord summarizes one completed connection.
type ConnectionRecord struct {
	ID            string    `json:"id"`
	Protocol      string    `json:"protocol"`
	Outcome       string    `json:"outcome"`
	RemoteHost    string    `json:"remote_host,omitempty"`
	SNI           string    `json:"sni,omitempty"`
	BytesToRemote int64     `json:"bytes_to_remote"`
	BytesToClient int64     `json:"bytes_to_client"`
	Fragmented    bool      `json:"fragmented"`
	Bypassed      bool      `json:"bypassed"`
	BypassReason  string    `json:"bypass_reason,omitempty"`
	StartedAt     time.Time `json:"started_at"`
	EndedAt       time.Time `json:"ended_at,omitempty"`
}

// HistorySample is one point in the rolling throughput history series.
type HistorySample struct {
	Timestamp     time.Time `json:"timestamp"`
	BytesToRemote int64     `json:"bytes_to_remote"`
	BytesToClient int64     `json:"bytes_to_client"`
}

// Snapshot is the JSON-serializable view returned by the stats endpoint.
type Snapshot struct {
	StartedAt          time.Time          `json:"started_at"`
	UptimeSeconds       float64            `json:"uptime_seconds"`
	TotalConnections    uint64             `json:"total_connections"`
	ActiveConnections   int64              `json:"active_connections"`
	SuccessConnections  uint64             `json:"success_connections"`
	FailedConnections   uint64             `json:"failed_connections"`
	SuccessRate         float64            `json:"success_rate"`
	BypassedConnections uint64             `json:"bypassed_connections"`
	TotalBytesToRemote  int64              `json:"total_bytes_to_remote"`
	TotalBytesToClient  int64              `json:"total_bytes_to_client"`
	ByProtocol          map[string]uint64  `json:"by_protocol"`
	RecentConnections   []ConnectionRecord `json:"recent_connections"`
	History             []HistorySample    `json:"history"`
}

const (
	maxRecentConnections = 200
	maxHistorySamples    = 288 // one sample per ended connection, newest kept
)

// Tracker is the single-owner statistics aggregator. All exported methods
// are safe for concurrent use.
type Tracker struct {
	mu sync.Mutex

	startedAt    time.Time
	total        uint64
	active       int64
	succeeded    uint64
	failed       uint64
	bypassed     uint64
	bytesRemote  int64
	bytesClient  int64
	byProtocol   map[string]uint64
	recent       []ConnectionRecord
	history      []HistorySample
}

// New builds an empty Tracker.
func New() *Tracker {
	return &Tracker{
		startedAt:  time.Now(),
		byProtocol: make(map[string]uint64),
	}
}

// ConnectionStarted records the start of a new connection.
func (t *Tracker) ConnectionStarted(protocol string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.total++
	t.active++
	t.byProtocol[protocol]++
}

// ConnectionEnded records the completion of a connection, folding its
// record and byte counts into the aggregate totals and history. A record
// with no explicit outcome counts as a success.
func (t *Tracker) ConnectionEnded(rec ConnectionRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Outcome == "" {
		rec.Outcome = OutcomeSuccess
	}
	if rec.Outcome == OutcomeFailed {
		t.failed++
	} else {
		t.succeeded++
	}

	t.active--
	if t.active < 0 {
		t.active = 0
	}
	if rec.Bypassed {
		t.bypassed++
	}
	t.bytesRemote += rec.BytesToRemote
	t.bytesClient += rec.BytesToClient

	t.recent = append(t.recent, rec)
	if len(t.recent) > maxRecentConnections {
		t.recent = t.recent[len(t.recent)-maxRecentConnections:]
	}

	t.history = append(t.history, HistorySample{
		Timestamp:     time.Now(),
		BytesToRemote: rec.BytesToRemote,
		BytesToClient: rec.BytesToClient,
	})
	if len(t.history) > maxHistorySamples {
		t.history = t.history[len(t.history)-maxHistorySamples:]
	}
}

// Snapshot returns a point-in-time copy of the aggregate statistics.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	byProtocol := make(map[string]uint64, len(t.byProtocol))
	for k, v := range t.byProtocol {
		byProtocol[k] = v
	}
	recent := make([]ConnectionRecord, len(t.recent))
	copy(recent, t.recent)
	history := make([]HistorySample, len(t.history))
	copy(history, t.history)

	rate := 1.0
	if ended := t.succeeded + t.failed; ended > 0 {
		rate = float64(t.succeeded) / float64(ended)
	}

	return Snapshot{
		StartedAt:           t.startedAt,
		UptimeSeconds:       time.Since(t.startedAt).Seconds(),
		TotalConnections:    t.total,
		ActiveConnections:   t.active,
		SuccessConnections:  t.succeeded,
		FailedConnections:   t.failed,
		SuccessRate:         rate,
		BypassedConnections: t.bypassed,
		TotalBytesToRemote:  t.bytesRemote,
		TotalBytesToClient:  t.bytesClient,
		ByProtocol:          byProtocol,
		RecentConnections:   recent,
		History:             history,
	}
}

// Handler serves the JSON statistics snapshot over HTTP.
func (t *Tracker) Handler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(t.Snapshot()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

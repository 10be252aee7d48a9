// Package admission bounds concurrent connection count via a counting
// semaphore, per spec.md §4.12, optionally enriched with a per-source-IP
// rate throttle (SPEC_FULL.md §4's supplemental admission control, distinct
// from client authentication which spec.md explicitly excludes).
package admission

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"
)

var (
	currentConns = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chaosproxy_connections_current",
		Help: "Currently admitted connections.",
	})

	rejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chaosproxy_admission_rejected_total",
		Help: "Connections rejected at admission, by reason.",
	}, []string{"reason"})
)

// Controller is a counting semaphore bounding concurrent connections to a
// configured maximum, with a timed acquire matching spec.md §4.12.
type Controller struct {
	sem chan struct{}

	mu        sync.Mutex
	ipLimiter map[string]*rate.Limiter
	ipRate    rate.Limit
	ipBurst   int
}

// New builds a Controller admitting at most maxConnections concurrently.
// perIPRate/perIPBurst configure the optional per-source-IP throttle;
// perIPRate<=0 disables it.
func New(maxConnections int, perIPRate float64, perIPBurst int) *Controller {
	return &Controller{
		sem:       make(chan struct{}, maxConnections),
		ipLimiter: make(map[string]*rate.Limiter),
		ipRate:    rate.Limit(perIPRate),
		ipBurst:   perIPBurst,
	}
}

// Acquire attempts to admit one connection within timeout, returning false
// (and incrementing the rejection counter) on timeout.
func (c *Controller) Acquire(timeout time.Duration) bool {
	select {
	case c.sem <- struct{}{}:
		currentConns.Inc()
		return true
	case <-time.After(timeout):
		rejectedTotal.WithLabelValues("capacity").Inc()
		return false
	}
}

// Release frees one admission slot.
func (c *Controller) Release() {
	select {
	case <-c.sem:
		currentConns.Dec()
	default:
	}
}

// AllowIP reports whether a connection from sourceIP should be admitted
// under the per-IP throttle. Always true when the throttle is disabled.
func (c *Controller) AllowIP(sourceIP string) bool {
	if c.ipRate <= 0 {
		return true
	}
	c.mu.Lock()
	lim, ok := c.ipLimiter[sourceIP]
	if !ok {
		lim = rate.NewLimiter(c.ipRate, c.ipBurst)
		c.ipLimiter[sourceIP] = lim
	}
	c.mu.Unlock()

	allowed := lim.Allow()
	if !allowed {
		rejectedTotal.WithLabelValues("ip_rate").Inc()
	}
	return allowed
}

// InUse reports the current number of admitted connections (diagnostics).
func (c *Controller) InUse() int {
	return len(c.sem)
}

// Capacity reports the configured maximum concurrent connections.
func (c *Controller) Capacity() int {
	return cap(c.sem)
}

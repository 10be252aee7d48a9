// Package dnsresolve implements encrypted DNS resolution (DoH and DoT) with
// a bounded TTL cache and a system-resolver fallback, per spec.md §4.5.
package dnsresolve

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Mode selects which encrypted transport the Resolver uses; the servers of
// the other transport are not tried.
type Mode string

const (
	ModeDoH Mode = "doh"
	ModeDoT Mode = "dot"
)

// Unresolved is the sentinel value returned by Resolve when every server and
// the system fallback all failed, per spec.md §4.5.
const Unresolved = "unresolved"

var (
	lookupTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chaosproxy_dns_lookups_total",
		Help: "DNS lookups by resolution path and outcome.",
	}, []string{"path", "outcome"})

	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chaosproxy_dns_cache_hits_total",
		Help: "DNS cache hits.",
	})

	cacheSizeGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chaosproxy_dns_cache_size",
		Help: "Current DNS cache entry count.",
	})
)

// Resolver resolves hostnames to IPv4 addresses via encrypted DNS, caching
// results and falling back to the system resolver on total failure.
type Resolver struct {
	mode       Mode
	dohServers []DoHServer
	dotServers []DoTServer
	cache      *cache
	sysRes     *net.Resolver
}

// New builds a Resolver. cacheMaxSize<=0 disables eviction pressure (grows
// unbounded); ttl<=0 effectively disables caching (every entry is stale
// immediately).
func New(mode Mode, dohServers []DoHServer, dotServers []DoTServer, cacheMaxSize int, ttl time.Duration) *Resolver {
	return &Resolver{
		mode:       mode,
		dohServers: dohServers,
		dotServers: dotServers,
		cache:      newCache(cacheMaxSize, ttl),
		sysRes:     net.DefaultResolver,
	}
}

// Resolve looks up hostname's IPv4 address: cache, then the configured
// encrypted servers in order, then the system resolver, then Unresolved.
func (r *Resolver) Resolve(hostname string) string {
	host := strings.ToLower(strings.TrimSpace(hostname))

	if literal := net.ParseIP(host); literal != nil && literal.To4() != nil {
		return host
	}

	if ip, ok := r.cache.get(host); ok {
		cacheHits.Inc()
		cacheSizeGauge.Set(float64(r.cache.size()))
		return ip
	}

	if ip, ok := r.resolveEncrypted(host); ok {
		r.cache.put(host, ip)
		cacheSizeGauge.Set(float64(r.cache.size()))
		lookupTotal.WithLabelValues(string(r.mode), "success").Inc()
		return ip
	}

	if ip, ok := r.resolveSystem(host); ok {
		r.cache.put(host, ip)
		cacheSizeGauge.Set(float64(r.cache.size()))
		lookupTotal.WithLabelValues("system", "success").Inc()
		return ip
	}

	lookupTotal.WithLabelValues(string(r.mode), "failure").Inc()
	return Unresolved
}

func (r *Resolver) resolveEncrypted(host string) (string, bool) {
	switch r.mode {
	case ModeDoT:
		for _, s := range r.dotServers {
			ip, err := queryDoT(s, host)
			if err == nil && ip != "" {
				return ip, true
			}
		}
	default:
		for _, s := range r.dohServers {
			ip, err := queryDoH(s, host)
			if err == nil && ip != "" {
				return ip, true
			}
		}
	}
	return "", false
}

func (r *Resolver) resolveSystem(host string) (string, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ips, err := r.sysRes.LookupIP(ctx, "ip4", host)
	if err != nil || len(ips) == 0 {
		return "", false
	}
	return ips[0].String(), true
}

// CacheSize reports the current DNS cache occupancy (for diagnostics/tests).
func (r *Resolver) CacheSize() int {
	return r.cache.size()
}

// String satisfies fmt.Stringer for log lines identifying the active mode.
func (m Mode) String() string {
	return fmt.Sprintf("%s", string(m))
}

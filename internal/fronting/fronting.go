// Package fronting selects a co-tenant CDN hostname to present in the TLS
// SNI in place of the real destination, per spec.md §4.6, while never
// fronting a domain on the no-front allowlist (Google-family domains that
// break under fronting).
package fronting

import (
	"math/rand"
	"strings"

	"chaosproxy/internal/bypass"
)

// noFrontSuffixes lists effective-TLDs that must never be fronted: Google
// validates SNI against the Host header and breaks under domain fronting.
var noFrontSuffixes = []string{
	"google.com",
	"googleapis.com",
	"gstatic.com",
	"googleusercontent.com",
	"youtube.com",
	"ytimg.com",
	"gmail.com",
}

// Map holds the configured CDN provider -> hostnames table
// (spec.md §3's cdn_domains.json shape).
type Map struct {
	providers map[string][]string
	order     []string // preserves a stable provider iteration order
}

// NewMap builds a fronting Map from a provider->hostnames table.
func NewMap(providerHosts map[string][]string) *Map {
	m := &Map{providers: make(map[string][]string)}
	for provider, hosts := range providerHosts {
		if len(hosts) == 0 {
			continue
		}
		cp := make([]string, len(hosts))
		copy(cp, hosts)
		m.providers[provider] = cp
		m.order = append(m.order, provider)
	}
	return m
}

// IsAllowlisted reports whether realDomain must never be fronted.
func IsAllowlisted(realDomain string) bool {
	etld := bypass.EffectiveTLD(realDomain)
	for _, suf := range noFrontSuffixes {
		if etld == suf || strings.HasSuffix(realDomain, "."+suf) {
			return true
		}
	}
	return false
}

// SelectFrontDomain picks a front hostname for realDomain. provider, when
// non-empty, pins the CDN provider; otherwise one is chosen uniformly at
// random. Returns ok=false when fronting is disabled (no configured
// providers), realDomain is allowlisted, or the named provider is unknown.
func (m *Map) SelectFrontDomain(provider, realDomain string) (string, bool) {
	if m == nil || len(m.order) == 0 {
		return "", false
	}
	if IsAllowlisted(realDomain) {
		return "", false
	}

	chosenProvider := provider
	if chosenProvider == "" {
		chosenProvider = m.order[rand.Intn(len(m.order))]
	}

	hosts, ok := m.providers[chosenProvider]
	if !ok || len(hosts) == 0 {
		return "", false
	}

	return hosts[rand.Intn(len(hosts))], true
}

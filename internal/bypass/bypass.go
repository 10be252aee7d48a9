// Package bypass implements the classifier that decides whether a
// destination is bypass-listed (spec.md §4.4). A bypassed HTTP CONNECT
// destination is never fronted, and the decision is recorded in the
// connection statistics; first-write fragmentation is applied either way.
// The classifier is enriched with the original_source bypass-reason reporting dropped by the
// distillation (see SPEC_FULL.md §4).
package bypass

import (
	"net"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// Reason explains why a host or IP was classified as bypassed.
type Reason int

const (
	NotBypassed Reason = iota
	ReasonLoopback
	ReasonDomainRule
	ReasonCIDR
)

func (r Reason) String() string {
	switch r {
	case ReasonLoopback:
		return "loopback"
	case ReasonDomainRule:
		return "domain_rule"
	case ReasonCIDR:
		return "cidr"
	default:
		return "not_bypassed"
	}
}

// MimeRule is preserved from the original config shape but unused by the
// core relay decision, per spec.md §3's "MIME branch unused by the core but
// preserved in the type."
type MimeRule struct {
	Type string
}

// Set holds the configured bypass rules: exact/suffix domain names, CIDR
// networks, and the informational MIME allowlist.
type Set struct {
	domains    map[string]struct{}
	suffixes   []string // entries like ".ir", matched via host suffix
	plainTails []string // entries without a leading dot, matched as ".<entry>" suffix
	nets       []*net.IPNet
	mimeTypes  []MimeRule
}

var loopbackHosts = map[string]struct{}{
	"localhost": {},
	"127.0.0.1": {},
	"0.0.0.0":   {},
	"::1":       {},
}

// NewSet builds a bypass Set from configured domain rules, CIDR strings, and
// informational MIME types. Malformed CIDRs are skipped.
func NewSet(domains []string, cidrs []string, mimeTypes []string) *Set {
	s := &Set{
		domains: make(map[string]struct{}),
	}
	for _, d := range domains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d == "" {
			continue
		}
		if strings.HasPrefix(d, ".") {
			s.suffixes = append(s.suffixes, d)
		} else {
			s.domains[d] = struct{}{}
			s.plainTails = append(s.plainTails, "."+d)
		}
	}
	for _, c := range cidrs {
		_, ipNet, err := net.ParseCIDR(strings.TrimSpace(c))
		if err != nil {
			continue
		}
		s.nets = append(s.nets, ipNet)
	}
	for _, m := range mimeTypes {
		s.mimeTypes = append(s.mimeTypes, MimeRule{Type: m})
	}
	return s
}

// ShouldBypassDomain decides whether a hostname should bypass evasion,
// returning the matched reason. Pure and safe for concurrent use: the Set is
// read-only after construction, per spec.md §4.4.
func (s *Set) ShouldBypassDomain(host string) (bool, Reason) {
	host = strings.ToLower(strings.TrimSpace(host))
	if _, ok := loopbackHosts[host]; ok {
		return true, ReasonLoopback
	}
	if _, ok := s.domains[host]; ok {
		return true, ReasonDomainRule
	}
	for _, suf := range s.suffixes {
		if strings.HasSuffix(host, suf) {
			return true, ReasonDomainRule
		}
	}
	for _, tail := range s.plainTails {
		if strings.HasSuffix(host, tail) {
			return true, ReasonDomainRule
		}
	}
	return false, NotBypassed
}

// ShouldBypassIP decides whether an IP should bypass evasion: loopback,
// RFC1918/private, or contained in a configured CIDR.
func (s *Set) ShouldBypassIP(ip net.IP) (bool, Reason) {
	if ip == nil {
		return false, NotBypassed
	}
	if ip.IsLoopback() {
		return true, ReasonLoopback
	}
	if isPrivate(ip) {
		return true, ReasonCIDR
	}
	for _, n := range s.nets {
		if n.Contains(ip) {
			return true, ReasonCIDR
		}
	}
	return false, NotBypassed
}

func isPrivate(ip net.IP) bool {
	for _, cidr := range []string{"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16", "fc00::/7"} {
		_, n, err := net.ParseCIDR(cidr)
		if err == nil && n.Contains(ip) {
			return true
		}
	}
	return false
}

// EffectiveTLD exposes the public-suffix-aware registrable domain for a
// host, used by the no-front allowlist matching in internal/fronting so
// that suffix comparisons ("matches the Google family") are correct for
// multi-label public suffixes (e.g. "co.uk") rather than a naive
// single-dot split.
func EffectiveTLD(host string) string {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	etld, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return etld
}

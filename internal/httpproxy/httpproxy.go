// Package httpproxy implements the HTTP CONNECT / plain-HTTP-forward
// handler (C8), per spec.md §4.8.
package httpproxy

import (
	"bufio"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"chaosproxy/internal/bypass"
	"chaosproxy/internal/dnsresolve"
	"chaosproxy/internal/fronting"
	"chaosproxy/internal/relay"
	"chaosproxy/internal/stats"
	"chaosproxy/internal/ui"
)

var requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "chaosproxy_http_requests_total",
	Help: "HTTP proxy requests by method and outcome.",
}, []string{"method", "outcome"})

// Deps bundles the shared subsystems the handler consults.
type Deps struct {
	Bypass       *bypass.Set
	Resolver     *dnsresolve.Resolver
	Fronting     *fronting.Map
	Stats        *stats.Tracker
	FrontEnabled bool
	RelayOptions relay.Options
}

// Handle services one connection already classified as HTTP by the
// multiplexer. r carries any bytes the multiplexer already peeked.
func Handle(conn net.Conn, r *bufio.Reader, deps Deps) {
	line, err := r.ReadString('\n')
	if err != nil {
		conn.Close()
		return
	}
	line = strings.TrimRight(line, "\r\n")
	parts := strings.SplitN(line, " ", 3)
	if len(parts) != 3 {
		conn.Close()
		return
	}
	method, target := parts[0], parts[1]

	if method == "CONNECT" {
		handleConnect(conn, r, target, deps)
		return
	}
	handleForward(conn, r, method, target, line, deps)
}

func handleConnect(conn net.Conn, r *bufio.Reader, target string, deps Deps) {
	host, port := splitHostPort(target, "443")
	drainHeaders(r)

	bypassed, reason := deps.Bypass.ShouldBypassDomain(host)

	deps.Stats.ConnectionStarted("http_connect")
	started := time.Now()
	fail := func() {
		deps.Stats.ConnectionEnded(stats.ConnectionRecord{
			Protocol:     "http_connect",
			RemoteHost:   host,
			Outcome:      stats.OutcomeFailed,
			Bypassed:     bypassed,
			BypassReason: reason.String(),
			StartedAt:    started,
			EndedAt:      time.Now(),
		})
	}

	connectHost := host
	if !bypassed && port == "443" && deps.FrontEnabled && !fronting.IsAllowlisted(host) {
		if front, ok := deps.Fronting.SelectFrontDomain("", host); ok {
			connectHost = front
		}
	}

	ip := deps.Resolver.Resolve(connectHost)
	if ip == dnsresolve.Unresolved {
		conn.Write([]byte("HTTP/1.1 502 Bad Gateway\r\n\r\n"))
		conn.Close()
		requestsTotal.WithLabelValues("CONNECT", "unresolved").Inc()
		fail()
		return
	}

	dialer := &net.Dialer{Timeout: 10 * time.Second}
	remote, err := dialer.Dial("tcp", net.JoinHostPort(ip, port))
	if err != nil {
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			conn.Write([]byte("HTTP/1.1 504 Gateway Timeout\r\n\r\n"))
			requestsTotal.WithLabelValues("CONNECT", "timeout").Inc()
		} else {
			conn.Write([]byte("HTTP/1.1 502 Bad Gateway\r\n\r\n"))
			requestsTotal.WithLabelValues("CONNECT", "dial_error").Inc()
		}
		conn.Close()
		fail()
		return
	}

	conn.Write([]byte("HTTP/1.1 200 Connection Established\r\n\r\n"))
	requestsTotal.WithLabelValues("CONNECT", "success").Inc()

	st := relay.Pump(rewind(conn, r), remote, deps.RelayOptions)
	ui.LogRelay(relayLabel(st.SNI, host), clientIP(conn), st.BytesToRemote, st.BytesToClient)
	deps.Stats.ConnectionEnded(stats.ConnectionRecord{
		Protocol:      "http_connect",
		RemoteHost:    host,
		Outcome:       relayOutcome(st),
		SNI:           st.SNI,
		BytesToRemote: st.BytesToRemote,
		BytesToClient: st.BytesToClient,
		Fragmented:    st.Fragmented,
		Bypassed:      bypassed,
		BypassReason:  reason.String(),
		StartedAt:     started,
		EndedAt:       time.Now(),
	})
}

func handleForward(conn net.Conn, r *bufio.Reader, method, target, requestLine string, deps Deps) {
	deps.Stats.ConnectionStarted("http_forward")
	started := time.Now()
	fail := func(host string, bypassed bool, reason string) {
		deps.Stats.ConnectionEnded(stats.ConnectionRecord{
			Protocol:     "http_forward",
			RemoteHost:   host,
			Outcome:      stats.OutcomeFailed,
			Bypassed:     bypassed,
			BypassReason: reason,
			StartedAt:    started,
			EndedAt:      time.Now(),
		})
	}

	u, err := url.Parse(target)
	if err != nil || u.Host == "" {
		conn.Write([]byte("HTTP/1.1 400 Bad Request\r\n\r\n"))
		conn.Close()
		requestsTotal.WithLabelValues(method, "bad_request").Inc()
		fail("", false, "")
		return
	}
	host, port := splitHostPort(u.Host, "80")

	headerBytes := collectHeaders(r)

	bypassed, reason := deps.Bypass.ShouldBypassDomain(host)

	ip := deps.Resolver.Resolve(host)
	if ip == dnsresolve.Unresolved {
		conn.Write([]byte("HTTP/1.1 502 Bad Gateway\r\n\r\n"))
		conn.Close()
		requestsTotal.WithLabelValues(method, "unresolved").Inc()
		fail(host, bypassed, reason.String())
		return
	}

	dialer := &net.Dialer{Timeout: 10 * time.Second}
	remote, err := dialer.Dial("tcp", net.JoinHostPort(ip, port))
	if err != nil {
		conn.Write([]byte("HTTP/1.1 502 Bad Gateway\r\n\r\n"))
		conn.Close()
		requestsTotal.WithLabelValues(method, "dial_error").Inc()
		fail(host, bypassed, reason.String())
		return
	}

	requestsTotal.WithLabelValues(method, "success").Inc()

	original := []byte(requestLine + "\r\n")
	original = append(original, headerBytes...)
	remote.Write(original)

	st := relay.Pump(rewind(conn, r), remote, deps.RelayOptions)
	ui.LogRelay(relayLabel(st.SNI, host), clientIP(conn), st.BytesToRemote, st.BytesToClient)
	deps.Stats.ConnectionEnded(stats.ConnectionRecord{
		Protocol:      "http_forward",
		RemoteHost:    host,
		Outcome:       relayOutcome(st),
		SNI:           st.SNI,
		BytesToRemote: st.BytesToRemote,
		BytesToClient: st.BytesToClient,
		Fragmented:    st.Fragmented,
		Bypassed:      bypassed,
		BypassReason:  reason.String(),
		StartedAt:     started,
		EndedAt:       time.Now(),
	})
}

func drainHeaders(r *bufio.Reader) {
	for {
		line, err := r.ReadString('\n')
		if err != nil || line == "\r\n" || line == "\n" {
			return
		}
	}
}

func collectHeaders(r *bufio.Reader) []byte {
	var buf []byte
	for {
		line, err := r.ReadString('\n')
		buf = append(buf, line...)
		if err != nil || line == "\r\n" || line == "\n" {
			return buf
		}
	}
}

func relayLabel(sni, host string) string {
	if sni != "" {
		return sni
	}
	return host
}

func relayOutcome(st relay.Stats) string {
	if st.Errored {
		return stats.OutcomeFailed
	}
	return stats.OutcomeSuccess
}

func clientIP(conn net.Conn) string {
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		return conn.RemoteAddr().String()
	}
	return host
}

func splitHostPort(hostport, defaultPort string) (string, string) {
	host, port, err := net.SplitHostPort(hostport)
	if err != nil {
		return hostport, defaultPort
	}
	return host, port
}

// rewind wraps conn so that any bytes already buffered in r (but not yet
// consumed) are replayed before further reads hit the raw socket. The
// CONNECT request line and headers themselves must not be replayed, so the
// caller only uses this after draining them.
func rewind(conn net.Conn, r *bufio.Reader) net.Conn {
	if r.Buffered() == 0 {
		return conn
	}
	return &bufferedConn{Conn: conn, r: r}
}

type bufferedConn struct {
	net.Conn
	r *bufio.Reader
}

func (b *bufferedConn) Read(p []byte) (int, error) {
	return b.r.Read(p)
}

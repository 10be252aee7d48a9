// Package socks5 implements the SOCKS5 handler (C9): always-no-auth
// negotiation, CONNECT-only command support, per spec.md §4.9.
package socks5

import (
	"bufio"
	"encoding/hex"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"chaosproxy/internal/bypass"
	"chaosproxy/internal/dnsresolve"
	"chaosproxy/internal/relay"
	"chaosproxy/internal/stats"
	"chaosproxy/internal/ui"
)

var requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "chaosproxy_socks5_requests_total",
	Help: "SOCKS5 requests by outcome.",
}, []string{"outcome"})

// Deps bundles the shared subsystems the handler consults.
type Deps struct {
	Bypass       *bypass.Set
	Resolver     *dnsresolve.Resolver
	Stats        *stats.Tracker
	RelayOptions relay.Options
}

const (
	replySuccess         = "\x05\x00\x00\x01\x00\x00\x00\x00\x00\x00"
	replyCommandNotSupp  = "\x05\x07\x00\x01\x00\x00\x00\x00\x00\x00"
	replyHostUnreachable = "\x05\x04\x00\x01\x00\x00\x00\x00\x00\x00"
	replyConnRefused     = "\x05\x05\x00\x01\x00\x00\x00\x00\x00\x00"
)

// Handle services one connection already classified as SOCKS5 by the
// multiplexer.
func Handle(conn net.Conn, r *bufio.Reader, deps Deps) {
	deps.Stats.ConnectionStarted("socks5")
	started := time.Now()
	fail := func(host string, bypassed bool, reason string) {
		deps.Stats.ConnectionEnded(stats.ConnectionRecord{
			Protocol:     "socks5",
			RemoteHost:   host,
			Outcome:      stats.OutcomeFailed,
			Bypassed:     bypassed,
			BypassReason: reason,
			StartedAt:    started,
			EndedAt:      time.Now(),
		})
	}

	if !negotiate(r, conn) {
		conn.Close()
		fail("", false, "")
		return
	}

	host, port, err := readRequest(r, conn)
	if err != nil {
		conn.Close()
		fail("", false, "")
		return
	}

	bypassed, reason := deps.Bypass.ShouldBypassDomain(host)
	if !bypassed {
		if literal := net.ParseIP(host); literal != nil {
			bypassed, reason = deps.Bypass.ShouldBypassIP(literal)
		}
	}

	ip := deps.Resolver.Resolve(host)
	if ip == dnsresolve.Unresolved {
		conn.Write([]byte(replyHostUnreachable))
		conn.Close()
		requestsTotal.WithLabelValues("unresolved").Inc()
		fail(host, bypassed, reason.String())
		return
	}

	dialer := &net.Dialer{Timeout: 10 * time.Second}
	remote, err := dialer.Dial("tcp", net.JoinHostPort(ip, port))
	if err != nil {
		conn.Write([]byte(replyConnRefused))
		conn.Close()
		requestsTotal.WithLabelValues("dial_error").Inc()
		fail(host, bypassed, reason.String())
		return
	}

	conn.Write([]byte(replySuccess))
	requestsTotal.WithLabelValues("success").Inc()

	st := relay.Pump(rewind(conn, r), remote, deps.RelayOptions)
	ui.LogRelay(relayLabel(st.SNI, host), clientIP(conn), st.BytesToRemote, st.BytesToClient)
	outcome := stats.OutcomeSuccess
	if st.Errored {
		outcome = stats.OutcomeFailed
	}
	deps.Stats.ConnectionEnded(stats.ConnectionRecord{
		Protocol:      "socks5",
		RemoteHost:    host,
		Outcome:       outcome,
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

// negotiate reads the VER||NMETHODS||METHODS greeting and always replies
// no-auth, per spec.md §4.9.
func negotiate(r *bufio.Reader, conn net.Conn) bool {
	header := make([]byte, 2)
	if _, err := io.ReadFull(r, header); err != nil {
		return false
	}
	nmethods := int(header[1])
	if nmethods > 0 {
		methods := make([]byte, nmethods)
		if _, err := io.ReadFull(r, methods); err != nil {
			return false
		}
	}
	_, err := conn.Write([]byte("\x05\x00"))
	return err == nil
}

func readRequest(r *bufio.Reader, conn net.Conn) (string, string, error) {
	header := make([]byte, 4)
	if _, err := io.ReadFull(r, header); err != nil {
		return "", "", err
	}
	cmd := header[1]
	atyp := header[3]

	if cmd != 0x01 {
		conn.Write([]byte(replyCommandNotSupp))
		conn.Close()
		return "", "", io.ErrUnexpectedEOF
	}

	var host string
	switch atyp {
	case 0x01:
		addr := make([]byte, 4)
		if _, err := io.ReadFull(r, addr); err != nil {
			return "", "", err
		}
		host = net.IP(addr).String()
	case 0x03:
		lenByte := make([]byte, 1)
		if _, err := io.ReadFull(r, lenByte); err != nil {
			return "", "", err
		}
		name := make([]byte, int(lenByte[0]))
		if _, err := io.ReadFull(r, name); err != nil {
			return "", "", err
		}
		host = string(name)
	case 0x04:
		addr := make([]byte, 16)
		if _, err := io.ReadFull(r, addr); err != nil {
			return "", "", err
		}
		host = hex.EncodeToString(addr)
	default:
		return "", "", io.ErrUnexpectedEOF
	}

	portBytes := make([]byte, 2)
	if _, err := io.ReadFull(r, portBytes); err != nil {
		return "", "", err
	}
	port := (int(portBytes[0]) << 8) | int(portBytes[1])

	return host, strconv.Itoa(port), nil
}

func relayLabel(sni, host string) string {
	if sni != "" {
		return sni
	}
	return host
}

func clientIP(conn net.Conn) string {
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		return conn.RemoteAddr().String()
	}
	return host
}

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

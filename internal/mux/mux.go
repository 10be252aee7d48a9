// Package mux sniffs the first bytes of a freshly-accepted connection to
// decide which protocol handler owns it, per spec.md §4.7. Detection order
// is fixed: HTTP, then SOCKS5, then WebSocket.
package mux

import (
	"bufio"
	"bytes"
	"net"
	"strings"
	"time"
	"unicode/utf8"
)

// Protocol identifies the detected wire protocol.
type Protocol int

const (
	Unknown Protocol = iota
	HTTP
	SOCKS5
	WebSocket
)

func (p Protocol) String() string {
	switch p {
	case HTTP:
		return "http"
	case SOCKS5:
		return "socks5"
	case WebSocket:
		return "websocket"
	default:
		return "unknown"
	}
}

const peekCap = 8192

var httpMethods = []string{
	"GET ", "POST ", "PUT ", "DELETE ", "HEAD ", "OPTIONS ", "CONNECT ", "PATCH ",
}

// Sniffed wraps a net.Conn together with the bytes already peeked from it,
// so handlers can consume the peeked prefix before reading further from the
// underlying connection.
type Sniffed struct {
	net.Conn
	r *bufio.Reader
}

func (s *Sniffed) Read(p []byte) (int, error) {
	return s.r.Read(p)
}

// Detect reads at most peekCap bytes (bounded by a 5s deadline) and
// classifies the connection's protocol without consuming bytes the handler
// still needs: the returned Sniffed wraps the same peeked prefix. A single
// read is issued, so detection works on whatever the client's first segment
// carried rather than stalling for a full buffer.
func Detect(conn net.Conn) (Protocol, *Sniffed, error) {
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	r := bufio.NewReaderSize(conn, peekCap)

	if _, err := r.Peek(1); err != nil {
		conn.SetReadDeadline(time.Time{})
		return Unknown, &Sniffed{Conn: conn, r: r}, err
	}
	peek, _ := r.Peek(r.Buffered())

	conn.SetReadDeadline(time.Time{})
	sniffed := &Sniffed{Conn: conn, r: r}

	if isHTTP(peek) {
		return HTTP, sniffed, nil
	}
	if isSOCKS5(peek) {
		return SOCKS5, sniffed, nil
	}
	if isWebSocket(peek) {
		return WebSocket, sniffed, nil
	}
	return Unknown, sniffed, nil
}

func isHTTP(peek []byte) bool {
	for _, m := range httpMethods {
		if bytes.HasPrefix(peek, []byte(m)) {
			return true
		}
	}
	return false
}

func isSOCKS5(peek []byte) bool {
	return len(peek) >= 2 && peek[0] == 0x05
}

func isWebSocket(peek []byte) bool {
	text := decodeLossyUTF8(peek)
	return strings.Contains(strings.ToLower(text), "upgrade: websocket")
}

// decodeLossyUTF8 decodes buf as UTF-8, substituting the replacement
// character for invalid sequences rather than failing outright, since a
// WebSocket upgrade request is ASCII/UTF-8 text but the peeked buffer may
// cut a multi-byte sequence mid-stream.
func decodeLossyUTF8(buf []byte) string {
	var b strings.Builder
	for len(buf) > 0 {
		r, size := utf8.DecodeRune(buf)
		b.WriteRune(r)
		buf = buf[size:]
	}
	return b.String()
}

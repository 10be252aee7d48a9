package dnsresolve

import (
	"bytes"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/url"
	"strings"
	"time"
)

// DoHServer describes one DNS-over-HTTPS upstream (spec.md §3).
type DoHServer struct {
	Name string
	URL  string // supplies Host header and path
	IP   string // dial target; avoids bootstrap recursion if set
}

type dohAnswer struct {
	Type int    `json:"type"`
	Data string `json:"data"`
}

type dohResponse struct {
	Answer []dohAnswer `json:"Answer"`
}

// queryDoH performs a manually-driven DoH lookup per spec.md §4.5: a raw TLS
// connection, a hand-written HTTP/1.1 GET, and JSON parsing of the body for
// the first type==1 (A) answer. Timeouts are 5s on connect, 5s for the
// handshake and request write, and 5s for reading the whole response.
func queryDoH(server DoHServer, hostname string) (string, error) {
	u, err := url.Parse(server.URL)
	if err != nil {
		return "", fmt.Errorf("doh: invalid url %q: %w", server.URL, err)
	}

	dialTarget := server.IP
	if dialTarget == "" {
		dialTarget = u.Hostname()
	}

	dialer := &net.Dialer{Timeout: 5 * time.Second}
	rawConn, err := dialer.Dial("tcp", net.JoinHostPort(dialTarget, "443"))
	if err != nil {
		return "", fmt.Errorf("doh: dial %s: %w", dialTarget, err)
	}
	defer rawConn.Close()

	tlsConn := tls.Client(rawConn, &tls.Config{ServerName: u.Hostname()})
	tlsConn.SetDeadline(time.Now().Add(5 * time.Second))
	if err := tlsConn.Handshake(); err != nil {
		return "", fmt.Errorf("doh: tls handshake: %w", err)
	}
	defer tlsConn.Close()

	path := u.Path
	if path == "" {
		path = "/dns-query"
	}
	query := fmt.Sprintf("%s?name=%s&type=A", path, url.QueryEscape(hostname))

	request := fmt.Sprintf(
		"GET %s HTTP/1.1\r\nHost: %s\r\nAccept: application/dns-json\r\nConnection: close\r\n\r\n",
		query, u.Hostname(),
	)

	if _, err := tlsConn.Write([]byte(request)); err != nil {
		return "", fmt.Errorf("doh: write request: %w", err)
	}

	tlsConn.SetDeadline(time.Now().Add(5 * time.Second))

	var raw bytes.Buffer
	if _, err := io.Copy(&raw, tlsConn); err != nil && raw.Len() == 0 {
		return "", fmt.Errorf("doh: read response: %w", err)
	}

	parts := strings.SplitN(raw.String(), "\r\n\r\n", 2)
	if len(parts) != 2 {
		return "", fmt.Errorf("doh: malformed response (no header/body split)")
	}

	var body dohResponse
	if err := json.Unmarshal([]byte(parts[1]), &body); err != nil {
		return "", fmt.Errorf("doh: invalid json body: %w", err)
	}

	for _, ans := range body.Answer {
		if ans.Type == 1 {
			return ans.Data, nil
		}
	}

	return "", fmt.Errorf("doh: no A record in response")
}

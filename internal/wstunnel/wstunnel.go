// Package wstunnel implements the WebSocket tunnel handler (C10): a
// handshake followed by a framed relay that unwraps client frames and
// wraps remote bytes as unmasked binary frames, per spec.md §4.10.
package wstunnel

import (
	"bufio"
	"crypto/sha1"
	"encoding/base64"
	"encoding/binary"
	"io"
	"net"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"chaosproxy/internal/dnsresolve"
	"chaosproxy/internal/stats"
)

const websocketGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

var handshakesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "chaosproxy_websocket_handshakes_total",
	Help: "WebSocket tunnel handshakes by outcome.",
}, []string{"outcome"})

// Deps bundles the shared subsystems the handler consults.
type Deps struct {
	Resolver *dnsresolve.Resolver
	Stats    *stats.Tracker
}

// Handle services one connection already classified as WebSocket by the
// multiplexer.
func Handle(conn net.Conn, r *bufio.Reader, deps Deps) {
	deps.Stats.ConnectionStarted("websocket")
	started := time.Now()
	fail := func(host string) {
		deps.Stats.ConnectionEnded(stats.ConnectionRecord{
			Protocol:   "websocket",
			RemoteHost: host,
			Outcome:    stats.OutcomeFailed,
			StartedAt:  started,
			EndedAt:    time.Now(),
		})
	}

	headers, err := readHandshake(r)
	key := headers["sec-websocket-key"]
	host := headers["host"]
	if err != nil || key == "" || host == "" {
		conn.Close()
		handshakesTotal.WithLabelValues("bad_request").Inc()
		fail("")
		return
	}

	hostName, port := splitHostPort(host, "80")

	ip := deps.Resolver.Resolve(hostName)
	if ip == dnsresolve.Unresolved {
		conn.Close()
		handshakesTotal.WithLabelValues("unresolved").Inc()
		fail(hostName)
		return
	}

	dialer := &net.Dialer{Timeout: 10 * time.Second}
	remote, err := dialer.Dial("tcp", net.JoinHostPort(ip, port))
	if err != nil {
		conn.Close()
		handshakesTotal.WithLabelValues("dial_error").Inc()
		fail(hostName)
		return
	}

	accept := computeAccept(key)
	response := "HTTP/1.1 101 Switching Protocols\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Accept: " + accept + "\r\n\r\n"
	if _, err := conn.Write([]byte(response)); err != nil {
		conn.Close()
		remote.Close()
		fail(hostName)
		return
	}
	handshakesTotal.WithLabelValues("success").Inc()

	toRemote, toClient := pump(rewind(conn, r), remote)
	deps.Stats.ConnectionEnded(stats.ConnectionRecord{
		Protocol:      "websocket",
		RemoteHost:    hostName,
		Outcome:       stats.OutcomeSuccess,
		BytesToRemote: toRemote,
		BytesToClient: toClient,
		StartedAt:     started,
		EndedAt:       time.Now(),
	})
}

// readHandshake consumes the upgrade request line and headers, returning
// the headers keyed by lowercased name.
func readHandshake(r *bufio.Reader) (map[string]string, error) {
	headers := make(map[string]string)

	if _, err := r.ReadString('\n'); err != nil {
		return nil, err
	}
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return nil, err
		}
		trimmed := strings.TrimRight(line, "\r\n")
		if trimmed == "" {
			break
		}
		idx := strings.Index(trimmed, ":")
		if idx < 0 {
			continue
		}
		name := strings.TrimSpace(trimmed[:idx])
		value := strings.TrimSpace(trimmed[idx+1:])
		headers[strings.ToLower(name)] = value
	}

	return headers, nil
}

func computeAccept(key string) string {
	h := sha1.New()
	h.Write([]byte(key + websocketGUID))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

func splitHostPort(hostport, defaultPort string) (string, string) {
	host, port, err := net.SplitHostPort(hostport)
	if err != nil {
		return hostport, defaultPort
	}
	return host, port
}

// rewind wraps conn so that any bytes already buffered in r (handshake bytes
// peeked by the multiplexer but not yet consumed) are replayed before
// further reads hit the raw socket.
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

// pump runs the client<->remote framed tunnel until either side closes.
func pump(client net.Conn, remote net.Conn) (int64, int64) {
	done := make(chan int64, 2)

	go func() {
		n := clientToRemote(client, remote)
		remote.Close()
		done <- n
	}()
	go func() {
		n := remoteToClient(remote, client)
		client.Close()
		done <- n
	}()

	a := <-done
	b := <-done
	return a, b
}

// clientToRemote unwraps client WebSocket frames and forwards the payload
// raw to remote.
func clientToRemote(client net.Conn, remote net.Conn) int64 {
	r := bufio.NewReader(client)
	var total int64
	for {
		header := make([]byte, 2)
		if _, err := io.ReadFull(r, header); err != nil {
			return total
		}
		opcode := header[0] & 0x0F
		masked := header[1]&0x80 != 0
		length := uint64(header[1] & 0x7F)

		switch length {
		case 126:
			ext := make([]byte, 2)
			if _, err := io.ReadFull(r, ext); err != nil {
				return total
			}
			length = uint64(binary.BigEndian.Uint16(ext))
		case 127:
			ext := make([]byte, 8)
			if _, err := io.ReadFull(r, ext); err != nil {
				return total
			}
			length = binary.BigEndian.Uint64(ext)
		}

		var maskKey [4]byte
		if masked {
			if _, err := io.ReadFull(r, maskKey[:]); err != nil {
				return total
			}
		}

		payload := make([]byte, length)
		if _, err := io.ReadFull(r, payload); err != nil {
			return total
		}
		if masked {
			for i := range payload {
				payload[i] ^= maskKey[i%4]
			}
		}

		switch opcode {
		case 0x8: // close
			return total
		case 0x9, 0xA: // ping/pong
			continue
		default:
			n, err := remote.Write(payload)
			total += int64(n)
			if err != nil {
				return total
			}
		}
	}
}

// remoteToClient reads raw bytes from remote and wraps each chunk as an
// unmasked binary frame toward client.
func remoteToClient(remote net.Conn, client net.Conn) int64 {
	buf := make([]byte, 64*1024)
	var total int64
	for {
		n, err := remote.Read(buf)
		if n > 0 {
			frame := frameBinary(buf[:n])
			w, werr := client.Write(frame)
			total += int64(n)
			_ = w
			if werr != nil {
				return total
			}
		}
		if err != nil {
			return total
		}
	}
}

func frameBinary(payload []byte) []byte {
	var header []byte
	n := len(payload)
	switch {
	case n < 126:
		header = []byte{0x82, byte(n)}
	case n <= 0xFFFF:
		header = make([]byte, 4)
		header[0] = 0x82
		header[1] = 126
		binary.BigEndian.PutUint16(header[2:], uint16(n))
	default:
		header = make([]byte, 10)
		header[0] = 0x82
		header[1] = 127
		binary.BigEndian.PutUint64(header[2:], uint64(n))
	}
	return append(header, payload...)
}

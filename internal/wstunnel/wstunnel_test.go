package wstunnel

import (
	"bufio"
	"bytes"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"chaosproxy/internal/dnsresolve"
	"chaosproxy/internal/stats"
)

func clientServerPipe(t *testing.T) (client, server net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	ch := make(chan net.Conn, 1)
	go func() {
		c, _ := ln.Accept()
		ch <- c
	}()
	client, err = net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	server = <-ch
	return client, server
}

func echoUpstream(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go io.Copy(c, c)
		}
	}()
	return ln
}

func TestComputeAcceptKnownVector(t *testing.T) {
	// RFC 6455 section 1.3's worked example.
	got := computeAccept("dGhlIHNhbXBsZSBub25jZQ==")
	want := "s3pPLMBiTxaQ9kYGzzhZRbK+xOo="
	if got != want {
		t.Fatalf("computeAccept = %q, want %q", got, want)
	}
}

func TestHandleHandshakeAndEcho(t *testing.T) {
	upstream := echoUpstream(t)
	defer upstream.Close()
	_, upstreamPort, _ := net.SplitHostPort(upstream.Addr().String())

	client, server := clientServerPipe(t)
	defer client.Close()

	deps := Deps{
		Resolver: dnsresolve.New(dnsresolve.ModeDoH, nil, nil, 16, time.Minute),
		Stats:    stats.New(),
	}

	r := bufio.NewReader(server)
	done := make(chan struct{})
	go func() {
		Handle(server, r, deps)
		close(done)
	}()

	req := "GET /tunnel HTTP/1.1\r\n" +
		"Host: localhost:" + upstreamPort + "\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\n" +
		"Sec-WebSocket-Version: 13\r\n\r\n"
	client.Write([]byte(req))

	client.SetReadDeadline(time.Now().Add(3 * time.Second))
	resp := make([]byte, 256)
	n, err := readHandshakeResponse(client, resp)
	if err != nil {
		t.Fatal(err)
	}
	respStr := string(resp[:n])
	if !strings.Contains(respStr, "101 Switching Protocols") {
		t.Fatalf("response = %q, want 101 Switching Protocols", respStr)
	}
	if !strings.Contains(respStr, "s3pPLMBiTxaQ9kYGzzhZRbK+xOo=") {
		t.Fatalf("response missing expected Sec-WebSocket-Accept value: %q", respStr)
	}

	// Send one masked client frame; the echo comes back as an unmasked
	// binary frame carrying the same payload.
	payload := []byte("hello over websocket")
	mask := [4]byte{0x11, 0x22, 0x33, 0x44}
	frame := []byte{0x82, 0x80 | byte(len(payload))}
	frame = append(frame, mask[:]...)
	for i, b := range payload {
		frame = append(frame, b^mask[i%4])
	}
	client.Write(frame)
	echo := make([]byte, 2+len(payload))
	if _, err := io.ReadFull(client, echo); err != nil {
		t.Fatal(err)
	}
	if echo[0] != 0x82 || int(echo[1]) != len(payload) || !bytes.Equal(echo[2:], payload) {
		t.Fatalf("echoed frame = %x, want binary frame carrying %q", echo, payload)
	}

	client.(*net.TCPConn).CloseWrite()
	<-done
}

// readHandshakeResponse reads until the blank line terminating the HTTP
// response headers.
func readHandshakeResponse(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
		if total >= 4 && bytes.Contains(buf[:total], []byte("\r\n\r\n")) {
			return total, nil
		}
	}
}

package tlsinspect

import "testing"

// buildClientHello assembles a minimal-but-well-formed TLS 1.2 ClientHello
// record carrying a single server_name extension, for round-trip testing.
func buildClientHello(sni string) []byte {
	var body []byte
	body = append(body, 0x03, 0x03) // client_version
	body = append(body, make([]byte, 32)...) // random
	body = append(body, 0x00)      // session_id length = 0

	cipherSuites := []byte{0x00, 0x02, 0xC0, 0x2F}
	body = append(body, cipherSuites...)

	body = append(body, 0x01, 0x00) // compression methods: len=1, null

	var sniExt []byte
	nameBytes := []byte(sni)
	sniExt = append(sniExt, 0x00) // name_type = host_name
	sniExt = append(sniExt, byte(len(nameBytes)>>8), byte(len(nameBytes)))
	sniExt = append(sniExt, nameBytes...)

	var serverNameExt []byte
	serverNameExt = append(serverNameExt, byte(len(sniExt)>>8), byte(len(sniExt)))
	serverNameExt = append(serverNameExt, sniExt...)

	var ext []byte
	ext = append(ext, 0x00, 0x00) // extension type: server_name
	ext = append(ext, byte(len(serverNameExt)>>8), byte(len(serverNameExt)))
	ext = append(ext, serverNameExt...)

	body = append(body, byte(len(ext)>>8), byte(len(ext)))
	body = append(body, ext...)

	var handshake []byte
	handshake = append(handshake, 0x01) // ClientHello
	hlen := len(body)
	handshake = append(handshake, byte(hlen>>16), byte(hlen>>8), byte(hlen))
	handshake = append(handshake, body...)

	var record []byte
	record = append(record, 0x16, 0x03, 0x01)
	rlen := len(handshake)
	record = append(record, byte(rlen>>8), byte(rlen))
	record = append(record, handshake...)

	return record
}

func TestIsTLSHandshake(t *testing.T) {
	ch := buildClientHello("example.com")
	if !IsTLSHandshake(ch) {
		t.Fatal("expected IsTLSHandshake to be true for a real ClientHello record")
	}
	if IsTLSHandshake([]byte{0x17, 0x03, 0x01, 0x00, 0x05, 0x01}) {
		t.Fatal("content type 0x17 is not a handshake record")
	}
	if IsTLSHandshake([]byte{0x16, 0x03}) {
		t.Fatal("too-short buffer must not be recognized")
	}
}

func TestIsClientHelloImpliesTLSHandshake(t *testing.T) {
	ch := buildClientHello("example.com")
	if !IsClientHello(ch) {
		t.Fatal("expected IsClientHello true")
	}
	if !IsTLSHandshake(ch) {
		t.Fatal("is_client_hello(b) must imply is_tls_handshake(b)")
	}
}

func TestExtractSNIRoundTrip(t *testing.T) {
	for _, host := range []string{"example.com", "a.b.c.example.org", "x"} {
		ch := buildClientHello(host)
		got := ExtractSNI(ch)
		if got != host {
			t.Fatalf("ExtractSNI round-trip: got %q want %q", got, host)
		}
	}
}

func TestExtractSNIMalformedTruncated(t *testing.T) {
	buf := []byte{0x16, 0x03, 0x01, 0x00, 0x05, 0x01}
	if got := ExtractSNI(buf); got != "" {
		t.Fatalf("ExtractSNI on truncated buffer = %q, want empty", got)
	}
}

func TestExtractSNITruncatedMidClientHello(t *testing.T) {
	ch := buildClientHello("example.com")
	truncated := ch[:len(ch)-5]
	if got := ExtractSNI(truncated); got != "" {
		t.Fatalf("ExtractSNI on mid-truncated ClientHello = %q, want empty", got)
	}
}

func TestExtractSNINoExtensions(t *testing.T) {
	var body []byte
	body = append(body, 0x03, 0x03)
	body = append(body, make([]byte, 32)...)
	body = append(body, 0x00)
	body = append(body, 0x00, 0x02, 0xC0, 0x2F)
	body = append(body, 0x01, 0x00)
	body = append(body, 0x00, 0x00) // extensions length = 0

	var handshake []byte
	handshake = append(handshake, 0x01)
	hlen := len(body)
	handshake = append(handshake, byte(hlen>>16), byte(hlen>>8), byte(hlen))
	handshake = append(handshake, body...)

	var record []byte
	record = append(record, 0x16, 0x03, 0x01)
	rlen := len(handshake)
	record = append(record, byte(rlen>>8), byte(rlen))
	record = append(record, handshake...)

	if got := ExtractSNI(record); got != "" {
		t.Fatalf("ExtractSNI with no extensions = %q, want empty", got)
	}
}

func TestIsClientHelloRequiresHandshakeType1(t *testing.T) {
	ch := buildClientHello("example.com")
	// Flip the handshake message type byte (offset 5) to ServerHello (0x02).
	ch[5] = 0x02
	if IsClientHello(ch) {
		t.Fatal("IsClientHello must be false when handshake type != 0x01")
	}
}

// Package tlsinspect recognizes TLS handshake records and extracts the SNI
// hostname from a ClientHello without allocating and without trusting any
// length field in the buffer. Adapted from the teacher's
// internal/proxy/server.go extractSNI, generalized into a reusable,
// non-allocating parser per spec.md §4.2.
package tlsinspect

const (
	recordHandshake = 0x16
	handshakeClientHello = 0x01
)

// IsTLSHandshake reports whether buf begins a TLS handshake record.
func IsTLSHandshake(buf []byte) bool {
	if len(buf) < 6 {
		return false
	}
	if buf[0] != recordHandshake {
		return false
	}
	if buf[1] != 0x03 {
		return false
	}
	switch buf[2] {
	case 1, 2, 3:
	default:
		return false
	}
	return true
}

// IsClientHello reports whether buf is a TLS handshake record carrying a
// ClientHello message.
func IsClientHello(buf []byte) bool {
	if !IsTLSHandshake(buf) {
		return false
	}
	if len(buf) < 10 {
		return false
	}
	return buf[5] == handshakeClientHello
}

// ExtractSNI walks a ClientHello and returns the server_name extension's
// first hostname entry, or "" if absent or malformed. Every length field is
// treated as untrusted: any read that would exceed buf returns "".
func ExtractSNI(buf []byte) string {
	if !IsClientHello(buf) {
		return ""
	}

	pos := 5 // record header

	if len(buf) < pos+4 {
		return ""
	}
	pos += 4 // handshake header: type(1) + length(3)

	if len(buf) < pos+34 {
		return ""
	}
	pos += 34 // version(2) + random(32)

	if len(buf) < pos+1 {
		return ""
	}
	sessionIDLen := int(buf[pos])
	pos += 1 + sessionIDLen
	if pos > len(buf) {
		return ""
	}

	if len(buf) < pos+2 {
		return ""
	}
	cipherSuitesLen := int(buf[pos])<<8 | int(buf[pos+1])
	pos += 2 + cipherSuitesLen
	if pos > len(buf) {
		return ""
	}

	if len(buf) < pos+1 {
		return ""
	}
	compressionLen := int(buf[pos])
	pos += 1 + compressionLen
	if pos > len(buf) {
		return ""
	}

	if len(buf) < pos+2 {
		return ""
	}
	extensionsLen := int(buf[pos])<<8 | int(buf[pos+1])
	pos += 2

	end := pos + extensionsLen
	if end > len(buf) {
		end = len(buf)
	}

	for pos+4 <= end {
		extType := int(buf[pos])<<8 | int(buf[pos+1])
		extLen := int(buf[pos+2])<<8 | int(buf[pos+3])
		pos += 4

		if extType == 0x0000 {
			return parseServerNameExtension(buf[:end], pos)
		}
		pos += extLen
		if pos > end {
			return ""
		}
	}

	return ""
}

// parseServerNameExtension reads the server_name extension body starting at
// pos: a 2-byte list length, then repeated name_type(1) || name_len(2) ||
// name(name_len) entries. Returns the first name_type==0 entry.
func parseServerNameExtension(buf []byte, pos int) string {
	if pos+2 > len(buf) {
		return ""
	}
	listLen := int(buf[pos])<<8 | int(buf[pos+1])
	pos += 2
	listEnd := pos + listLen
	if listEnd > len(buf) {
		listEnd = len(buf)
	}

	for pos+3 <= listEnd {
		nameType := buf[pos]
		nameLen := int(buf[pos+1])<<8 | int(buf[pos+2])
		pos += 3
		if pos+nameLen > listEnd {
			return ""
		}
		if nameType == 0x00 {
			name := buf[pos : pos+nameLen]
			for len(name) > 0 && name[0] == 0x00 {
				name = name[1:]
			}
			return string(name)
		}
		pos += nameLen
	}

	return ""
}

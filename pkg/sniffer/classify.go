package sniffer

import "bytes"

// Protocol is the classification of a connection's first bytes.
type Protocol int

const (
	// ProtocolUnknown is any stream that is neither HTTP nor TLS.
	ProtocolUnknown Protocol = iota
	// ProtocolHTTP is a plaintext HTTP/1.x stream.
	ProtocolHTTP
	// ProtocolTLS is a TLS handshake.
	ProtocolTLS
)

// recordTypeHandshake is the TLS record content type of a ClientHello.
const recordTypeHandshake = 22

func (p Protocol) String() string {
	switch p {
	case ProtocolHTTP:
		return "http"
	case ProtocolTLS:
		return "tls"
	default:
		return "unknown"
	}
}

// Classify inspects the first buffer read from a connection.
func Classify(buf []byte) Protocol {
	if len(buf) == 0 {
		return ProtocolUnknown
	}

	first := buf[0]
	if first == recordTypeHandshake {
		return ProtocolTLS
	}
	if first > 32 && first < 127 {
		return ProtocolHTTP
	}

	line := buf
	if i := bytes.IndexByte(buf, '\n'); i >= 0 {
		line = buf[:i]
	}
	if bytes.HasPrefix(line, []byte("HTTP/1.1")) {
		return ProtocolHTTP
	}

	return ProtocolUnknown
}

// Package sniffer owns the forwarder's single TCP listen socket and splits
// accepted connections between the plain HTTP engine and the TLS engine.
//
// Each connection is classified from the first buffer read off the socket:
//
//	first byte 22                        -> TLS (handshake record)
//	32 < first byte < 127                -> HTTP (request line)
//	first line starts with "HTTP/1.1"    -> HTTP
//	anything else                        -> raw 505 answer, connection closed
//
// The bytes consumed by that read are replayed by Conn ahead of the rest of
// the stream, so the engine that receives the connection parses it from the
// first byte. Classification happens once per connection and is never
// retried: a read error or sniff timeout closes the socket.
//
// Engines receive connections through a Queue, a net.Listener fed by the
// accept loop, so each engine can run an unmodified http.Server.
package sniffer

// Package ipv4 holds the structured IPv4 datagram representation shared by
// the network interface and the router. Byte-level encoding and decoding of
// the header is an external collaborator's job (e.g. a TUN reader backed by
// gopacket's decoders); this module only ever constructs and inspects the
// already-decoded header.
package ipv4

import "github.com/google/gopacket/layers"

// Datagram is a decoded IPv4 packet: the ecosystem's layers.IPv4 header
// struct plus the payload bytes that follow it.
type Datagram struct {
	Header  layers.IPv4
	Payload []byte
}

package router

import (
	"encoding/binary"

	"github.com/google/gopacket/layers"
)

// headerChecksum recomputes the standard IPv4 header checksum (RFC 791
// §3.1) after a TTL decrement. No library in this module's dependency set
// offers a standalone IPv4 checksum routine decoupled from a full
// serialize-then-checksum pass over a packet buffer, so this is hand
// rolled directly against the decoded header fields.
func headerChecksum(h layers.IPv4) uint16 {
	ihl := h.IHL
	if ihl < 5 {
		ihl = 5
	}
	buf := make([]byte, int(ihl)*4)

	buf[0] = (h.Version << 4) | (h.IHL & 0x0f)
	buf[1] = h.TOS
	binary.BigEndian.PutUint16(buf[2:4], h.Length)
	binary.BigEndian.PutUint16(buf[4:6], h.Id)
	flagsAndFrag := uint16(h.Flags)<<13 | (h.FragOffset & 0x1fff)
	binary.BigEndian.PutUint16(buf[6:8], flagsAndFrag)
	buf[8] = h.TTL
	buf[9] = byte(h.Protocol)
	// buf[10:12] (checksum field) left zero for the computation.
	copy(buf[12:16], h.SrcIP.To4())
	copy(buf[16:20], h.DstIP.To4())
	// IP options, if any, are left zeroed; this router never originates or
	// preserves option bytes across a hop.

	var sum uint32
	for i := 0; i+1 < len(buf); i += 2 {
		sum += uint32(binary.BigEndian.Uint16(buf[i : i+2]))
	}
	if len(buf)%2 == 1 {
		sum += uint32(buf[len(buf)-1]) << 8
	}
	for sum>>16 != 0 {
		sum = (sum & 0xffff) + (sum >> 16)
	}
	return ^uint16(sum)
}

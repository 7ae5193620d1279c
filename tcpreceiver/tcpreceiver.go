// Package tcpreceiver implements the receiving half of a TCP connection: it
// consumes incoming segments, drives a Reassembler, and reports the
// acknowledgement number and advertised window a sender should see.
package tcpreceiver

import (
	"github.com/m-lab/netstack/bytestream"
	"github.com/m-lab/netstack/reassembler"
	"github.com/m-lab/netstack/segment"
	"github.com/m-lab/netstack/seqnum"
)

const maxWindowSize = 65535

// TCPReceiver consumes TCPSenderMessages, feeding their payloads into a
// Reassembler, and produces the ackno/window pair reported back to the peer.
type TCPReceiver struct {
	reassembler *reassembler.Reassembler
	stream      *bytestream.ByteStream

	synced bool
	isn    seqnum.Wrap32
}

// New returns a TCPReceiver that reassembles into stream.
func New(stream *bytestream.ByteStream) *TCPReceiver {
	return &TCPReceiver{
		reassembler: reassembler.New(),
		stream:      stream,
	}
}

// Receive consumes one inbound segment. The first segment with SYN set
// establishes the connection's ISN; a second SYN, once synced, is invalid
// and ignored (synced is sticky once true, per the module's resolution of
// the "reset on close" open question).
func (r *TCPReceiver) Receive(msg segment.SenderMessage) {
	if !r.synced {
		if !msg.SYN {
			return
		}
		r.synced = true
		r.isn = msg.Seqno
	} else if msg.SYN {
		return
	}

	checkpoint := r.nextAbsSeqno()
	unwrapped := msg.Seqno.Unwrap(r.isn, checkpoint)

	var streamIndex uint64
	if msg.SYN {
		streamIndex = 0
	} else {
		if unwrapped == 0 {
			// Cannot be a stream byte: SYN itself occupies 0.
			return
		}
		streamIndex = unwrapped - 1
	}

	r.reassembler.Insert(streamIndex, msg.Payload, msg.FIN, r.stream)
}

// nextAbsSeqno returns the absolute sequence number the receiver next wants:
// SYN (1) plus every delivered byte plus FIN (1) once the stream is closed.
func (r *TCPReceiver) nextAbsSeqno() uint64 {
	n := uint64(1) + r.stream.BytesPushed()
	if r.stream.IsClosed() {
		n++
	}
	return n
}

// Send returns the current acknowledgement number and advertised window.
// Ackno is unset until the connection has synced.
func (r *TCPReceiver) Send() segment.ReceiverMessage {
	if !r.synced {
		return segment.ReceiverMessage{}
	}
	window := r.stream.AvailableCapacity()
	if window > maxWindowSize {
		window = maxWindowSize
	}
	return segment.ReceiverMessage{
		Ackno:      seqnum.Wrap(r.nextAbsSeqno(), r.isn),
		HasAckno:   true,
		WindowSize: uint16(window),
	}
}

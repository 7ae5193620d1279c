// Package segment defines the value records exchanged across the TCP
// sender/receiver boundary: the logical contents of a TCP segment, with
// wire-level encoding left to an external collaborator.
package segment

import "github.com/m-lab/netstack/seqnum"

// SenderMessage is the logical content of a segment emitted by a TCPSender.
type SenderMessage struct {
	Seqno   seqnum.Wrap32
	SYN     bool
	Payload []byte
	FIN     bool
}

// SequenceLength returns the number of absolute sequence numbers this
// segment consumes: one for SYN, one per payload byte, one for FIN.
func (m SenderMessage) SequenceLength() uint64 {
	n := uint64(len(m.Payload))
	if m.SYN {
		n++
	}
	if m.FIN {
		n++
	}
	return n
}

// ReceiverMessage is the logical content of an acknowledgement/window
// advertisement emitted by a TCPReceiver.
type ReceiverMessage struct {
	Ackno      seqnum.Wrap32
	HasAckno   bool
	WindowSize uint16
}

// Package tcpsender implements the sending half of a TCP connection:
// segmenting an outbound byte stream, tracking the peer's advertised
// window, and retransmitting on exponential-backoff timeout.
package tcpsender

import (
	"log"
	"os"
	"time"

	"github.com/m-lab/go/logx"

	"github.com/m-lab/netstack/bytestream"
	"github.com/m-lab/netstack/internal/clock"
	"github.com/m-lab/netstack/metrics"
	"github.com/m-lab/netstack/segment"
	"github.com/m-lab/netstack/seqnum"
)

var (
	sparseLogger = log.New(os.Stdout, "tcpsender: ", log.LstdFlags|log.Lshortfile)
	sparse1      = logx.NewLogEvery(sparseLogger, 1000*time.Millisecond)
)

// MaxPayload is the largest payload, in bytes, carried by a single segment.
const MaxPayload = 1452

type outstandingSegment struct {
	absSeqno uint64
	msg      segment.SenderMessage
}

// TCPSender tracks an outbound byte stream's segmentation, sliding window,
// and retransmission timer.
type TCPSender struct {
	isn          seqnum.Wrap32
	initialRTOMs int64
	currentRTOMs int64

	nextAbsSeqno uint64
	ackAbsSeqno  uint64
	windowSize   uint16

	outstandingBytes uint64
	retransmitCount  int
	timer            clock.Timer

	sendQueue   []segment.SenderMessage
	outstanding []outstandingSegment

	synSent bool
	finSent bool
}

// New returns a TCPSender with the given ISN and initial retransmission
// timeout. The peer's window is assumed to be 1 (a single sequence number)
// until the first TCPReceiverMessage arrives.
func New(isn seqnum.Wrap32, initialRTOMs int64) *TCPSender {
	return &TCPSender{
		isn:          isn,
		initialRTOMs: initialRTOMs,
		currentRTOMs: initialRTOMs,
		windowSize:   1,
	}
}

// effectiveWindow returns how many more absolute sequence numbers may be
// assigned right now: the peer's advertised window, floored at 1 so a
// zero-window peer can still be probed, minus bytes already outstanding.
func (s *TCPSender) effectiveWindow() int64 {
	w := int64(s.windowSize)
	if w < 1 {
		w = 1
	}
	return w - int64(s.outstandingBytes)
}

// readUpTo pops up to n bytes from reader and returns a copy of them.
func readUpTo(reader *bytestream.ByteStream, n int) []byte {
	if n <= 0 {
		return nil
	}
	peeked := reader.Peek()
	if len(peeked) > n {
		peeked = peeked[:n]
	}
	out := make([]byte, len(peeked))
	copy(out, peeked)
	reader.Pop(len(out))
	return out
}

// Push segments as much of reader as the current effective window allows,
// enqueueing each new segment for transmission and retransmission tracking.
func (s *TCPSender) Push(reader *bytestream.ByteStream) {
	for {
		avail := s.effectiveWindow()
		if avail <= 0 {
			return
		}

		var msg segment.SenderMessage
		budget := avail
		if !s.synSent {
			msg.SYN = true
			budget--
		}
		if budget > 0 {
			take := budget
			if take > MaxPayload {
				take = MaxPayload
			}
			msg.Payload = readUpTo(reader, int(take))
			budget -= int64(len(msg.Payload))
		}
		if !s.finSent && reader.IsFinished() && int64(msg.SequenceLength()) < avail {
			msg.FIN = true
		}

		seqLen := msg.SequenceLength()
		if seqLen == 0 {
			return
		}

		msg.Seqno = seqnum.Wrap(s.nextAbsSeqno, s.isn)
		if msg.SYN {
			s.synSent = true
		}
		if msg.FIN {
			s.finSent = true
		}
		if s.windowSize == 0 {
			metrics.SenderZeroWindowProbes.Inc()
		}

		s.outstanding = append(s.outstanding, outstandingSegment{absSeqno: s.nextAbsSeqno, msg: msg})
		s.sendQueue = append(s.sendQueue, msg)
		s.nextAbsSeqno += seqLen
		s.outstandingBytes += seqLen

		s.timer.Start()
	}
}

// MaybeSend dequeues the next segment ready for transmission, if any.
func (s *TCPSender) MaybeSend() (segment.SenderMessage, bool) {
	if len(s.sendQueue) == 0 {
		return segment.SenderMessage{}, false
	}
	msg := s.sendQueue[0]
	s.sendQueue = s.sendQueue[1:]
	return msg, true
}

// SendEmptyMessage returns a bare ack-carrying segment at the current send
// sequence number. It has zero sequence length and is never tracked or
// retransmitted.
func (s *TCPSender) SendEmptyMessage() segment.SenderMessage {
	return segment.SenderMessage{Seqno: seqnum.Wrap(s.nextAbsSeqno, s.isn)}
}

// Receive processes an incoming TCPReceiverMessage: updates the advertised
// window and, if the ackno strictly advances and is in range, retires
// acknowledged segments and resets the backoff.
func (s *TCPSender) Receive(msg segment.ReceiverMessage) {
	s.windowSize = msg.WindowSize
	if !msg.HasAckno {
		return
	}

	ackAbs := msg.Ackno.Unwrap(s.isn, s.nextAbsSeqno)
	if ackAbs <= s.ackAbsSeqno || ackAbs > s.nextAbsSeqno {
		if ackAbs != s.ackAbsSeqno {
			metrics.SenderBadAcks.Inc()
			sparse1.Println("ignoring out-of-range ack", ackAbs, "have", s.ackAbsSeqno, "next", s.nextAbsSeqno)
		}
		return
	}
	s.ackAbsSeqno = ackAbs

	kept := s.outstanding[:0]
	for _, o := range s.outstanding {
		if o.absSeqno+o.msg.SequenceLength() <= s.ackAbsSeqno {
			s.outstandingBytes -= o.msg.SequenceLength()
			continue
		}
		kept = append(kept, o)
	}
	s.outstanding = kept

	s.currentRTOMs = s.initialRTOMs
	s.retransmitCount = 0

	if s.outstandingBytes > 0 {
		s.timer.Restart()
	} else {
		s.timer.Stop()
	}
}

// Tick advances elapsed time by ms milliseconds. If the retransmit timer
// fires, the outstanding segment with the lowest sequence number is
// re-enqueued for transmission, and the backoff is escalated unless the
// peer's window was zero when the retransmit fired (a zero-window probe
// must not escalate).
func (s *TCPSender) Tick(ms int64) {
	if !s.timer.Running() {
		return
	}
	if !s.timer.Tick(ms, s.currentRTOMs) {
		return
	}
	if len(s.outstanding) > 0 {
		lowest := s.outstanding[0].msg
		s.sendQueue = append(s.sendQueue, lowest)

		if s.windowSize > 0 {
			s.currentRTOMs *= 2
			s.retransmitCount++
			metrics.SenderRetransmits.WithLabelValues("yes").Inc()
		} else {
			metrics.SenderRetransmits.WithLabelValues("no").Inc()
		}
	}
	s.timer.Restart()
}

// Outstanding returns the number of sequence numbers currently unacked.
func (s *TCPSender) Outstanding() uint64 {
	return s.outstandingBytes
}

// CurrentRTOMs returns the sender's current retransmission timeout.
func (s *TCPSender) CurrentRTOMs() int64 {
	return s.currentRTOMs
}

// RetransmitCount returns the number of times the retransmission timer has
// escalated the backoff.
func (s *TCPSender) RetransmitCount() int {
	return s.retransmitCount
}

// NextAbsSeqno returns the next absolute sequence number to be assigned.
func (s *TCPSender) NextAbsSeqno() uint64 {
	return s.nextAbsSeqno
}

// AckAbsSeqno returns the highest absolute sequence number acknowledged.
func (s *TCPSender) AckAbsSeqno() uint64 {
	return s.ackAbsSeqno
}

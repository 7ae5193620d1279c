// Package reassembler orders out-of-order, overlapping substrings indexed
// by absolute byte offset and delivers them, in order, into a ByteStream.
//
// Fragments are kept as a sorted, disjoint slice, with disjointness
// maintained by trimming overlaps on every insert.
package reassembler

import (
	"log"
	"os"
	"sort"
	"time"

	"github.com/m-lab/go/logx"

	"github.com/m-lab/netstack/bytestream"
	"github.com/m-lab/netstack/metrics"
)

var (
	sparseLogger = log.New(os.Stdout, "reassembler: ", log.LstdFlags|log.Lshortfile)
	sparse1      = logx.NewLogEvery(sparseLogger, 1000*time.Millisecond)
)

type fragment struct {
	first uint64
	data  []byte
}

func (f fragment) end() uint64 {
	return f.first + uint64(len(f.data))
}

// Reassembler accumulates fragments and drains contiguous runs into an
// output ByteStream as they become available.
type Reassembler struct {
	fragments []fragment // sorted by first, pairwise disjoint

	unassembledIndex uint64
	bytesPending     int

	haveEOF  bool
	eofIndex uint64
}

// New returns an empty Reassembler.
func New() *Reassembler {
	return &Reassembler{}
}

// UnassembledIndex returns the absolute index of the next byte the
// reassembler still needs in order to make progress.
func (r *Reassembler) UnassembledIndex() uint64 {
	return r.unassembledIndex
}

// BytesPending returns the number of bytes currently buffered, waiting on
// earlier bytes to arrive before they can be delivered.
func (r *Reassembler) BytesPending() int {
	return r.bytesPending
}

// IsEOFKnown reports whether a fragment with isLast=true has been seen.
func (r *Reassembler) IsEOFKnown() bool {
	return r.haveEOF
}

// Insert incorporates a substring of the original byte stream: data begins
// at absolute index first. If isLast is true, first+len(data) is recorded as
// the stream's end index. Bytes are clipped to the window the output
// ByteStream currently has room for, merged into the fragment buffer, and
// then drained in order into output.
func (r *Reassembler) Insert(first uint64, data []byte, isLast bool, output *bytestream.ByteStream) {
	if isLast {
		r.haveEOF = true
		r.eofIndex = first + uint64(len(data))
	}

	windowEnd := r.unassembledIndex + uint64(output.AvailableCapacity())
	start, end := first, first+uint64(len(data))
	origLen := len(data)

	// Drop bytes already delivered.
	if start < r.unassembledIndex {
		skip := r.unassembledIndex - start
		if skip > uint64(len(data)) {
			skip = uint64(len(data))
		}
		data = data[skip:]
		start = r.unassembledIndex
	}
	// Drop bytes beyond the writer's current available capacity.
	if end > windowEnd {
		if start >= windowEnd {
			data = nil
		} else {
			data = data[:windowEnd-start]
		}
	}

	if dropped := origLen - len(data); dropped > 0 {
		metrics.ReassemblerBytesDropped.Add(float64(dropped))
		sparse1.Println("dropped", dropped, "bytes outside the assembly window at", first)
	}
	if len(data) > 0 {
		r.merge(fragment{first: start, data: data})
	}

	r.drain(output)
}

// merge inserts f into the sorted fragment list, trimming or discarding any
// existing fragment it overlaps, and discarding f itself if it is already
// entirely covered by an existing fragment. Overlap resolution assumes both
// copies agree on content for the same index, per the reassembler's
// documented protocol assumption.
func (r *Reassembler) merge(f fragment) {
	fStart, fEnd := f.first, f.end()
	var kept []fragment
	covered := false

	for _, existing := range r.fragments {
		switch {
		case existing.end() <= fStart || existing.first >= fEnd:
			// No overlap.
			kept = append(kept, existing)

		case existing.first <= fStart && existing.end() >= fEnd:
			// existing fully covers f: drop f, keep existing unchanged.
			kept = append(kept, existing)
			covered = true

		case existing.first < fStart:
			// existing overlaps f's left edge: keep existing's prefix.
			r.bytesPending -= len(existing.data) - int(fStart-existing.first)
			existing.data = existing.data[:fStart-existing.first]
			if len(existing.data) > 0 {
				kept = append(kept, existing)
			}

		case existing.end() > fEnd:
			// existing overlaps f's right edge: keep existing's suffix.
			r.bytesPending -= len(existing.data) - int(existing.end()-fEnd)
			existing.data = existing.data[fEnd-existing.first:]
			existing.first = fEnd
			if len(existing.data) > 0 {
				kept = append(kept, existing)
			}

		default:
			// existing is fully covered by f: drop existing.
			r.bytesPending -= len(existing.data)
		}
	}

	if !covered {
		kept = append(kept, f)
		r.bytesPending += len(f.data)
	}

	sort.Slice(kept, func(i, j int) bool { return kept[i].first < kept[j].first })
	r.fragments = kept
}

// drain pushes every contiguous run starting at unassembledIndex into
// output, advancing past delivered fragments and closing output once the
// known EOF index is reached.
func (r *Reassembler) drain(output *bytestream.ByteStream) {
	for len(r.fragments) > 0 && r.fragments[0].first == r.unassembledIndex {
		f := r.fragments[0]
		output.Push(f.data)
		r.unassembledIndex += uint64(len(f.data))
		r.bytesPending -= len(f.data)
		r.fragments = r.fragments[1:]
	}
	if r.haveEOF && r.unassembledIndex == r.eofIndex {
		output.Close()
	}
}

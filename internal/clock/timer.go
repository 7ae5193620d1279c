// Package clock provides a minimal countdown timer used by components that
// need retransmission or cache-expiry deadlines but must never consult the
// wall clock: time only advances when a caller reports elapsed milliseconds.
package clock

// Timer is a simple countdown timer driven by explicit tick() calls rather
// than a background goroutine. It has no notion of wall-clock time.
type Timer struct {
	running bool
	elapsed int64
}

// Start arms the timer. It is idempotent: starting an already-running timer
// has no effect, matching the "start is idempotent" rule in the design
// notes (a running timer keeps its accumulated elapsed time).
func (t *Timer) Start() {
	if t.running {
		return
	}
	t.running = true
	t.elapsed = 0
}

// Restart stops and immediately re-arms the timer, resetting elapsed time to
// zero regardless of whether it was previously running.
func (t *Timer) Restart() {
	t.running = true
	t.elapsed = 0
}

// Stop disarms the timer and clears its accumulated elapsed time.
func (t *Timer) Stop() {
	t.running = false
	t.elapsed = 0
}

// Running reports whether the timer is currently armed.
func (t *Timer) Running() bool {
	return t.running
}

// Tick advances the timer by ms milliseconds and reports whether it is now
// armed and has reached or exceeded deadlineMs. Ticking a stopped timer is a
// no-op that always reports false.
func (t *Timer) Tick(ms, deadlineMs int64) bool {
	if !t.running {
		return false
	}
	t.elapsed += ms
	return t.elapsed >= deadlineMs
}

// Elapsed returns the accumulated milliseconds since the timer was last
// started or restarted. It is meaningful only while Running is true.
func (t *Timer) Elapsed() int64 {
	return t.elapsed
}

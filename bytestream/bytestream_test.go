package bytestream_test

import (
	"testing"

	"github.com/go-test/deep"
	"github.com/m-lab/netstack/bytestream"
)

// TestCapacityClip verifies that a push larger than capacity is silently
// truncated at the writer.
func TestCapacityClip(t *testing.T) {
	s := bytestream.New(5)
	n := s.Push([]byte("hello world"))
	if n != 5 {
		t.Errorf("Push() = %d, want 5", n)
	}
	if s.BytesPushed() != 5 {
		t.Errorf("BytesPushed() = %d, want 5", s.BytesPushed())
	}
	if got := string(s.Peek()); got != "hello" {
		t.Errorf("Peek() = %q, want %q", got, "hello")
	}
}

func TestPushPopRoundTrip(t *testing.T) {
	s := bytestream.New(100)
	s.Push([]byte("abcdef"))
	if got, want := string(s.Peek()), "abcdef"; got != want {
		t.Fatalf("Peek() = %q, want %q", got, want)
	}
	s.Pop(3)
	if got, want := string(s.Peek()), "def"; got != want {
		t.Fatalf("Peek() after Pop(3) = %q, want %q", got, want)
	}
	if diff := deep.Equal(s.BytesPushed(), uint64(6)); diff != nil {
		t.Error(diff)
	}
	if diff := deep.Equal(s.BytesPopped(), uint64(3)); diff != nil {
		t.Error(diff)
	}
}

func TestCloseAndFinish(t *testing.T) {
	s := bytestream.New(10)
	s.Push([]byte("ab"))
	s.Close()
	if s.IsFinished() {
		t.Error("IsFinished() = true before drain, want false")
	}
	// Further pushes after close are no-ops.
	if n := s.Push([]byte("cd")); n != 0 {
		t.Errorf("Push() after Close() = %d, want 0", n)
	}
	s.Pop(2)
	if !s.IsFinished() {
		t.Error("IsFinished() = false after drain, want true")
	}
}

func TestSetErrorIsSticky(t *testing.T) {
	s := bytestream.New(10)
	s.SetError()
	s.SetError()
	if !s.HasError() {
		t.Error("HasError() = false, want true")
	}
}

func TestInvariants(t *testing.T) {
	s := bytestream.New(4)
	for i := 0; i < 10; i++ {
		s.Push([]byte{byte(i)})
		if s.BytesBuffered() > 4 {
			t.Fatalf("buffered = %d exceeds capacity 4", s.BytesBuffered())
		}
		if got, want := s.BytesPushed()-s.BytesPopped(), uint64(s.BytesBuffered()); got != want {
			t.Fatalf("pushed-popped = %d, want buffered = %d", got, want)
		}
		if s.BytesBuffered() > 0 {
			s.Pop(1)
		}
	}
}

func TestAvailableCapacity(t *testing.T) {
	s := bytestream.New(8)
	s.Push([]byte("1234"))
	if got, want := s.AvailableCapacity(), 4; got != want {
		t.Errorf("AvailableCapacity() = %d, want %d", got, want)
	}
}

package session

import (
	"testing"

	"github.com/bringyour/kvbroker/internal/id"
	"github.com/bringyour/kvbroker/internal/platform"
)

func TestSubscribeIsNoOpOnDuplicate(t *testing.T) {
	s := New(id.New(), platform.Browser)
	subject := Subject{Collection: "cart", Pattern: "u1"}

	if !s.Subscribe(subject) {
		t.Fatal("first subscribe should report added")
	}
	if s.Subscribe(subject) {
		t.Fatal("duplicate subscribe should report not-added")
	}
	if len(s.Subjects()) != 1 {
		t.Fatalf("expected exactly one subject, got %d", len(s.Subjects()))
	}
}

func TestUnsubscribeWhenNotSubscribed(t *testing.T) {
	s := New(id.New(), platform.Browser)
	if s.Unsubscribe(Subject{Collection: "cart", Pattern: "u1"}) {
		t.Fatal("unsubscribe of an absent subject should report not-removed")
	}
}

func TestSendPreservesOrderAndDropsWhenFull(t *testing.T) {
	s := New(id.New(), platform.Browser)

	for i := 0; i < OutboundBufferSize; i++ {
		if err := s.Send([]byte{byte(i)}); err != nil {
			t.Fatalf("unexpected error queuing frame %d: %v", i, err)
		}
	}
	if err := s.Send([]byte("overflow")); err != ErrOutboundFull {
		t.Fatalf("expected ErrOutboundFull once queue is saturated, got %v", err)
	}

	for i := 0; i < OutboundBufferSize; i++ {
		got := <-s.Outbound()
		if got[0] != byte(i) {
			t.Fatalf("expected frames drained in FIFO order, got %v at position %d", got, i)
		}
	}
}

func TestSendAfterCloseOutboundDoesNotPanic(t *testing.T) {
	s := New(id.New(), platform.Browser)
	s.CloseOutbound()
	s.CloseOutbound() // must tolerate a second call

	if err := s.Send([]byte("late")); err != ErrOutboundFull {
		t.Fatalf("expected ErrOutboundFull after teardown, got %v", err)
	}
}

func TestAliveDefaultsTrue(t *testing.T) {
	s := New(id.New(), platform.Browser)
	if !s.Alive() {
		t.Fatal("session should start alive")
	}
	s.SetAlive(false)
	if s.Alive() {
		t.Fatal("expected alive=false after SetAlive(false)")
	}
}

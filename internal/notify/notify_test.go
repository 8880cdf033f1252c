package notify

import (
	"testing"

	"github.com/dshills/repostatus/internal/vcs"
)

func TestSignalSubscribeEmit(t *testing.T) {
	sig := NewSignal[int]()

	var got []int
	sig.Subscribe(func(v int) {
		got = append(got, v)
	})

	sig.Emit(1)
	sig.Emit(2)
	sig.Emit(3)

	if len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Errorf("expected [1 2 3], got %v", got)
	}
}

func TestSignalMultipleSubscribers(t *testing.T) {
	sig := NewSignal[string]()

	var a, b int
	sig.Subscribe(func(string) { a++ })
	sig.Subscribe(func(string) { b++ })

	sig.Emit("x")

	if a != 1 || b != 1 {
		t.Errorf("expected both subscribers to observe the event, got a=%d b=%d", a, b)
	}
}

func TestSubscriptionCancelStopsOnlyThatSubscriber(t *testing.T) {
	sig := NewSignal[int]()

	var a, b int
	subA := sig.Subscribe(func(int) { a++ })
	sig.Subscribe(func(int) { b++ })

	sig.Emit(1)
	subA.Cancel()
	sig.Emit(2)

	if a != 1 {
		t.Errorf("cancelled subscriber received %d events, want 1", a)
	}
	if b != 2 {
		t.Errorf("remaining subscriber received %d events, want 2", b)
	}
	if subA.IsActive() {
		t.Error("cancelled subscription still reports active")
	}
}

func TestSubscriptionCancelIdempotent(t *testing.T) {
	sig := NewSignal[int]()
	sub := sig.Subscribe(func(int) {})

	sub.Cancel()
	sub.Cancel()

	if sig.Len() != 0 {
		t.Errorf("expected 0 subscriptions, got %d", sig.Len())
	}
}

func TestSignalClear(t *testing.T) {
	sig := NewSignal[int]()

	var count int
	sig.Subscribe(func(int) { count++ })
	sig.Subscribe(func(int) { count++ })

	sig.Clear()
	sig.Emit(1)

	if count != 0 {
		t.Errorf("expected no delivery after Clear, got %d", count)
	}
}

func TestNotifierClear(t *testing.T) {
	n := NewNotifier()

	var fired bool
	n.StatusChanged.Subscribe(func(PathStatusEvent) { fired = true })
	n.StatusesChanged.Subscribe(func(struct{}) { fired = true })

	n.Clear()
	n.StatusChanged.Emit(PathStatusEvent{Path: "/p", Status: vcs.StatusModified})
	n.StatusesChanged.Emit(struct{}{})

	if fired {
		t.Error("expected no delivery after notifier Clear")
	}
}

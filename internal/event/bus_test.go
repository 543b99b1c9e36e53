package event

import (
	"sync"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"
)

func TestPublish_FanOut(t *testing.T) {
	b := NewBus(zap.NewNop())
	var got int64
	for i := 0; i < 3; i++ {
		b.Subscribe(func(ev Event) { atomic.AddInt64(&got, 1) })
	}
	b.Publish(Event{Type: LoanCreated, LoanID: "l1"})
	b.Drain()
	if got != 3 {
		t.Fatalf("deliveries = %d, want 3", got)
	}
}

func TestPublish_PanickingSubscriberIsolated(t *testing.T) {
	b := NewBus(zap.NewNop())
	var ok int64
	b.Subscribe(func(ev Event) { panic("boom") })
	b.Subscribe(func(ev Event) { atomic.AddInt64(&ok, 1) })

	b.Publish(Event{Type: AlertTriggered})
	b.Drain()
	if ok != 1 {
		t.Fatal("healthy subscriber must still receive the event")
	}
}

func TestPublish_StampsIDAndTime(t *testing.T) {
	b := NewBus(nil)
	var mu sync.Mutex
	var seen Event
	b.Subscribe(func(ev Event) {
		mu.Lock()
		seen = ev
		mu.Unlock()
	})
	b.Publish(Event{Type: LoanRepaid})
	b.Drain()
	mu.Lock()
	defer mu.Unlock()
	if seen.ID == "" || seen.At.IsZero() {
		t.Fatalf("event not stamped: %+v", seen)
	}
}

func TestUnsubscribe(t *testing.T) {
	b := NewBus(zap.NewNop())
	var got int64
	off := b.Subscribe(func(ev Event) { atomic.AddInt64(&got, 1) })
	off()
	b.Publish(Event{Type: LoanClosed})
	b.Drain()
	if got != 0 {
		t.Fatal("unsubscribed handler must not fire")
	}
}

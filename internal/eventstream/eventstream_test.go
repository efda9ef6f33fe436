package eventstream

import (
	"sync"
	"testing"
	"time"

	"github.com/haasonsaas/agentcore/pkg/session"
)

func TestStreamModeOrderedDelivery(t *testing.T) {
	fo := New("s1")
	h := fo.SubscribeStream(8)

	for i := 0; i < 5; i++ {
		fo.Publish(session.Event{Type: session.EventTextDelta})
	}

	var seqs []uint64
	for i := 0; i < 5; i++ {
		e, ok := h.Pull()
		if !ok {
			t.Fatalf("expected event %d", i)
		}
		seqs = append(seqs, e.Sequence)
	}
	for i := 1; i < len(seqs); i++ {
		if seqs[i] <= seqs[i-1] {
			t.Fatalf("events out of order: %v", seqs)
		}
	}
}

func TestStreamModeDropOldestOnOverflow(t *testing.T) {
	fo := New("s1")
	h := fo.SubscribeStream(2)

	for i := 0; i < 5; i++ {
		fo.Publish(session.Event{Type: session.EventTextDelta})
	}

	if h.DroppedCount() == 0 {
		t.Fatal("expected dropped events under overflow")
	}

	// Whatever remains should still be the most recent, in order.
	var last uint64
	for {
		e, ok := h.Pull()
		if !ok {
			break
		}
		if last != 0 && e.Sequence <= last {
			t.Fatalf("survivors not in order")
		}
		last = e.Sequence
		if len(h.sub.ch) == 0 {
			break
		}
	}
}

func TestMailboxModeDelivers(t *testing.T) {
	fo := New("s1")
	var mu sync.Mutex
	var got []session.Event
	done := make(chan struct{}, 10)

	h := fo.SubscribeMailbox(8, func(e session.Event) {
		mu.Lock()
		got = append(got, e)
		mu.Unlock()
		done <- struct{}{}
	})
	defer h.Unsubscribe()

	fo.Publish(session.Event{Type: session.EventAgentStart})
	fo.Publish(session.Event{Type: session.EventTurnStart})

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for mailbox delivery")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 {
		t.Fatalf("expected 2 delivered events, got %d", len(got))
	}
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	fo := New("s1")
	h := fo.SubscribeStream(4)
	h.Unsubscribe()
	h.Unsubscribe() // must not panic

	if fo.SubscriberCount() != 0 {
		t.Fatalf("expected 0 subscribers after unsubscribe, got %d", fo.SubscriberCount())
	}
}

func TestSubscribersIsolated(t *testing.T) {
	fo := New("s1")
	full := fo.SubscribeStream(1)
	roomy := fo.SubscribeStream(8)

	for i := 0; i < 5; i++ {
		fo.Publish(session.Event{Type: session.EventTextDelta})
	}

	if full.DroppedCount() == 0 {
		t.Fatal("expected the small-queue subscriber to drop events")
	}
	if roomy.DroppedCount() != 0 {
		t.Fatal("a saturated subscriber must not affect another subscriber")
	}
}

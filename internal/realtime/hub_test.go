package realtime

import (
	"testing"
	"time"
)

func TestHubFanOut(t *testing.T) {
	h := NewHub(nil)
	id1, ch1 := h.Subscribe(4)
	id2, ch2 := h.Subscribe(4)
	defer h.Unsubscribe(id1)
	defer h.Unsubscribe(id2)

	h.Publish(Event{Type: EventRoundCreated, Variant: "pick10"})

	for i, ch := range []<-chan Event{ch1, ch2} {
		select {
		case got := <-ch:
			if got.Type != EventRoundCreated || got.Variant != "pick10" {
				t.Fatalf("subscriber %d got %+v", i, got)
			}
			if got.At.IsZero() {
				t.Fatalf("publish must stamp the event time")
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d never received the event", i)
		}
	}
}

func TestHubDropsSlowSubscriber(t *testing.T) {
	h := NewHub(nil)
	id, ch := h.Subscribe(1)
	defer h.Unsubscribe(id)

	h.Publish(Event{Type: EventEntryJoined})
	h.Publish(Event{Type: EventEntryJoined})

	if h.Dropped() != 1 {
		t.Fatalf("dropped = %d, want 1", h.Dropped())
	}
	// The first event is still deliverable.
	select {
	case <-ch:
	default:
		t.Fatalf("buffered event lost")
	}
}

func TestHubUnsubscribeClosesChannel(t *testing.T) {
	h := NewHub(nil)
	id, ch := h.Subscribe(1)
	h.Unsubscribe(id)

	if _, ok := <-ch; ok {
		t.Fatalf("channel must be closed after unsubscribe")
	}
	if h.Subscribers() != 0 {
		t.Fatalf("subscribers = %d, want 0", h.Subscribers())
	}
	// Publishing to an empty hub is a no-op.
	h.Publish(Event{Type: EventRewardClaimed})
}

package notify

import (
	"context"
	"testing"
	"time"
)

func TestNotifyFansOut(t *testing.T) {
	h := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := h.Subscribe(ctx)
	b := h.Subscribe(ctx)
	h.Notify(Notification{Title: "MOC submitted", Message: "MOC-24-001"})

	for _, ch := range []<-chan Notification{a, b} {
		select {
		case n := <-ch:
			if n.Title != "MOC submitted" || n.Type != LevelInfo {
				t.Fatalf("unexpected notification: %+v", n)
			}
			if n.Timestamp.IsZero() {
				t.Fatalf("timestamp not stamped")
			}
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive notification")
		}
	}
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	h := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := h.Subscribe(ctx)

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*3; i++ {
			h.Notify(Notification{Title: "tick"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Notify blocked on a slow subscriber")
	}
	if got := len(ch); got != subscriberBuffer {
		t.Fatalf("expected full buffer of %d, got %d", subscriberBuffer, got)
	}
}

func TestSubscriptionClosesWithContext(t *testing.T) {
	h := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	ch := h.Subscribe(ctx)
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after cancel")
	}
	deadline := time.Now().Add(time.Second)
	for h.Subscribers() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if h.Subscribers() != 0 {
		t.Fatalf("subscriber not removed")
	}
}

func TestRecentKeepsLatest(t *testing.T) {
	h := NewHub()
	for i := 0; i < recentCapacity+5; i++ {
		h.Notify(Notification{Title: "n", Message: string(rune('a' + i%26))})
	}
	all := h.Recent(0)
	if len(all) != recentCapacity {
		t.Fatalf("expected %d recent, got %d", recentCapacity, len(all))
	}
	last := h.Recent(1)
	if len(last) != 1 || last[0] != all[len(all)-1] {
		t.Fatalf("Recent(1) mismatch: %+v", last)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{"": LevelInfo, "Success": LevelSuccess, "error": LevelError}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Fatalf("ParseLevel(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseLevel("fatal"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

package ids

import (
	"strings"
	"testing"
	"time"
)

func TestNewIsMonotonic(t *testing.T) {
	prev := New()
	for i := 0; i < 1000; i++ {
		next := New()
		if next <= prev {
			t.Fatalf("ids not increasing: %s then %s", prev, next)
		}
		prev = next
	}
}

func TestWithPrefix(t *testing.T) {
	id := WithPrefix("moc")
	if !strings.HasPrefix(id, "MOC-") {
		t.Fatalf("unexpected id %q", id)
	}
	if got := WithPrefix("  "); strings.Contains(got, "-") {
		t.Fatalf("blank prefix should yield bare id, got %q", got)
	}
}

func TestTime(t *testing.T) {
	before := time.Now().Add(-time.Second)
	ts, ok := Time(WithPrefix("wo"))
	if !ok {
		t.Fatal("expected embedded time")
	}
	if ts.Before(before) || ts.After(time.Now().Add(time.Second)) {
		t.Fatalf("unexpected embedded time %v", ts)
	}
	if _, ok := Time("MOC-24-001"); ok {
		t.Fatal("legacy identifiers carry no time")
	}
}

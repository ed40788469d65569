package rate

import (
	"testing"
	"time"
)

func TestLimiterAllowsBurstThenBlocks(t *testing.T) {
	l := NewLimiter()
	base := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return base }

	for i := 0; i < 3; i++ {
		if !l.Allow("reports:10.0.0.1", 3, time.Minute) {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if l.Allow("reports:10.0.0.1", 3, time.Minute) {
		t.Fatalf("fourth request within the window should be blocked")
	}
	if !l.Allow("reports:10.0.0.2", 3, time.Minute) {
		t.Fatalf("other keys must have their own bucket")
	}

	l.now = func() time.Time { return base.Add(20 * time.Second) }
	if !l.Allow("reports:10.0.0.1", 3, time.Minute) {
		t.Fatalf("one token should refill after window/limit")
	}
}

func TestLimiterRejectsNonPositiveLimit(t *testing.T) {
	if NewLimiter().Allow("k", 0, time.Minute) {
		t.Fatalf("zero limit must block")
	}
}

func TestLimiterEvictsIdleKeys(t *testing.T) {
	l := NewLimiter()
	base := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return base }
	l.lastGC = base
	l.Allow("a", 1, time.Second)

	l.now = func() time.Time { return base.Add(2 * time.Minute) }
	l.Allow("b", 1, time.Second)
	if _, ok := l.entries["a"]; ok {
		t.Fatalf("idle key should be evicted")
	}
}

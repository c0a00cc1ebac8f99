package ratelimit

import (
	"testing"
	"time"
)

func TestAllowRefills(t *testing.T) {
	now := time.Unix(0, 0)
	l := New().WithClock(func() time.Time { return now })

	for i := 0; i < 3; i++ {
		if !l.Allow("m1", 3, 1) {
			t.Fatalf("call %d should pass within burst", i)
		}
	}
	if l.Allow("m1", 3, 1) {
		t.Fatalf("burst exhausted, expected deny")
	}
	if !l.Allow("m2", 3, 1) {
		t.Fatalf("keys must not share buckets")
	}

	now = now.Add(1500 * time.Millisecond)
	if !l.Allow("m1", 3, 1) {
		t.Fatalf("expected a refilled token")
	}
	if l.Allow("m1", 3, 1) {
		t.Fatalf("only one token should have refilled")
	}
}

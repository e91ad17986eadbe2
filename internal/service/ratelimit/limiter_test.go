package ratelimit

import (
	"testing"
	"time"
)

func TestAllowExhaustsBucket(t *testing.T) {
	l := New()
	for i := 0; i < 3; i++ {
		if !l.Allow("k", 3, 0) {
			t.Fatalf("request %d should pass within capacity", i+1)
		}
	}
	if l.Allow("k", 3, 0) {
		t.Fatalf("request over capacity should be denied")
	}
}

func TestAllowKeysAreIndependent(t *testing.T) {
	l := New()
	if !l.Allow("a", 1, 0) {
		t.Fatalf("first request on a should pass")
	}
	if l.Allow("a", 1, 0) {
		t.Fatalf("a is exhausted")
	}
	if !l.Allow("b", 1, 0) {
		t.Fatalf("b has its own bucket and should pass")
	}
}

func TestAllowRefills(t *testing.T) {
	l := New()
	if !l.Allow("r", 1, 100) {
		t.Fatalf("first request should pass")
	}
	if l.Allow("r", 1, 100) {
		t.Fatalf("bucket is empty right after the first request")
	}
	time.Sleep(50 * time.Millisecond)
	if !l.Allow("r", 1, 100) {
		t.Fatalf("bucket should have refilled")
	}
}

package cache

import (
	"bytes"
	"testing"
	"time"
)

func TestTTLCacheRoundTrip(t *testing.T) {
	c := NewTTLCache()
	if _, ok, _ := c.GetBytes("missing"); ok {
		t.Fatalf("unknown key must miss")
	}
	if err := c.SetBytes("k", []byte("v1"), 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := c.SetBytes("k", []byte("v2"), 0); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	b, ok, err := c.GetBytes("k")
	if err != nil || !ok || !bytes.Equal(b, []byte("v2")) {
		t.Fatalf("get after overwrite: %q ok=%v err=%v", b, ok, err)
	}
}

func TestTTLCacheDropsExpired(t *testing.T) {
	c := NewTTLCache()
	if err := c.SetBytes("k", []byte("v"), 5*time.Millisecond); err != nil {
		t.Fatalf("set: %v", err)
	}
	time.Sleep(15 * time.Millisecond)
	if _, ok, _ := c.GetBytes("k"); ok {
		t.Fatalf("expired entry must miss")
	}
}

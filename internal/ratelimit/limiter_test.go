package ratelimit

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestMemoryLimiterRejectsEleventhRequest(t *testing.T) {
	l := NewMemoryLimiter(10, time.Minute)
	for i := 0; i < 10; i++ {
		if !l.Allow("1.2.3.4") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if l.Allow("1.2.3.4") {
		t.Fatal("11th request within the window should be rejected")
	}
	// Other keys are unaffected.
	if !l.Allow("5.6.7.8") {
		t.Fatal("different key should be allowed")
	}
}

func TestMemoryLimiterWindowSlides(t *testing.T) {
	l := NewMemoryLimiter(2, time.Minute)
	current := time.Unix(1000, 0)
	l.now = func() time.Time { return current }

	if !l.Allow("k") || !l.Allow("k") {
		t.Fatal("first two requests should pass")
	}
	if l.Allow("k") {
		t.Fatal("third request should be rejected")
	}

	// After the window passes, the old timestamps fall out.
	current = current.Add(61 * time.Second)
	if !l.Allow("k") {
		t.Fatal("request after window should be allowed")
	}
}

func TestMemoryLimiterEvictsIdleKeys(t *testing.T) {
	l := NewMemoryLimiter(10, time.Minute)
	current := time.Unix(1000, 0)
	l.now = func() time.Time { return current }

	l.Allow("a")
	l.Allow("b")
	current = current.Add(2 * time.Minute)
	l.Allow("c")

	if _, ok := l.log["a"]; ok {
		t.Fatal("idle key should have been swept")
	}
	if len(l.log) != 1 {
		t.Fatalf("expected only the live key to remain, got %d entries", len(l.log))
	}
}

func TestRedisLimiter(t *testing.T) {
	redis := miniredis.RunT(t)
	l, err := NewRedisLimiter(redis.Addr(), "", "", 3, time.Minute)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	for i := 0; i < 3; i++ {
		if !l.Allow("ip-a") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if l.Allow("ip-a") {
		t.Fatal("request beyond limit should be rejected")
	}
	if !l.Allow("ip-b") {
		t.Fatal("other key should be allowed")
	}
}

func TestRedisLimiterFailsClosed(t *testing.T) {
	redis := miniredis.RunT(t)
	l, err := NewRedisLimiter(redis.Addr(), "", "", 3, time.Minute)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	redis.Close()
	if l.Allow("ip-a") {
		t.Fatal("limiter should fail closed when Redis is down")
	}
}

func TestNewRedisLimiterValidation(t *testing.T) {
	if _, err := NewRedisLimiter("", "", "", 3, time.Minute); err == nil {
		t.Fatal("expected error for missing addr")
	}
	if _, err := NewRedisLimiter("localhost:6379", "", "", 0, time.Minute); err == nil {
		t.Fatal("expected error for zero limit")
	}
}

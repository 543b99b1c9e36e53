package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestOpenRedis_RoundTripAndExpiry(t *testing.T) {
	s := miniredis.RunT(t)
	defer s.Close()

	c, err := OpenRedis(s.Addr(), 2)
	if err != nil {
		t.Fatalf("OpenRedis returned error: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })

	if got := c.Options().DB; got != 2 {
		t.Fatalf("client DB = %d, want 2", got)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	// the idempotency layer relies on SET with TTL + expiry
	if err := c.Set(ctx, "idemp:abc", "resp", 30*time.Second).Err(); err != nil {
		t.Fatalf("SET err: %v", err)
	}
	v, err := c.Get(ctx, "idemp:abc").Result()
	if err != nil || v != "resp" {
		t.Fatalf("GET = %q, %v", v, err)
	}

	s.FastForward(31 * time.Second)
	if err := c.Get(ctx, "idemp:abc").Err(); err == nil {
		t.Fatal("expected key to expire")
	}
}

func TestOpenRedis_UnreachableHost(t *testing.T) {
	if _, err := OpenRedis("not-a-real-host:6379", 0); err == nil {
		t.Fatal("expected error, got nil")
	}
}

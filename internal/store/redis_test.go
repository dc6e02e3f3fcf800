package store

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
)

func TestSessionKeyLayout(t *testing.T) {
	t.Parallel()

	if got := sessionKey("anon_42"); got != "aicare:session:anon_42" {
		t.Fatalf("sessionKey() = %q", got)
	}
}

func TestRedisStoreUnreachable(t *testing.T) {
	t.Parallel()

	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	s := NewRedis(client, time.Hour)
	t.Cleanup(func() { _ = s.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if got, err := s.Get(ctx, "u1"); err == nil || got != nil {
		t.Fatalf("Get() = %v, %v; want error", got, err)
	}
	if err := s.Put(ctx, testSession("u1", time.Now())); err == nil {
		t.Fatal("Put() succeeded against closed port")
	}
	if err := s.Ping(ctx); err == nil {
		t.Fatal("Ping() succeeded against closed port")
	}
	if n, err := s.CleanupExpired(ctx, time.Hour); n != 0 || err != nil {
		t.Fatalf("CleanupExpired() = %d, %v", n, err)
	}
}

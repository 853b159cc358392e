package cache

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jeogo/casnos-sub001/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func TestNilCacheIsNoop(t *testing.T) {
	var c *Cache
	ctx := context.Background()
	if err := c.SavePresence(ctx, Presence{DeviceID: "d1"}); err != nil {
		t.Fatalf("save presence: %v", err)
	}
	if _, ok, err := c.QueueCounts(ctx); ok || err != nil {
		t.Fatalf("expected empty counts, ok=%v err=%v", ok, err)
	}
	if n, err := c.Purge(ctx); n != 0 || err != nil {
		t.Fatalf("expected no-op purge, n=%d err=%v", n, err)
	}
	if New(nil, "x") != nil {
		t.Fatalf("expected nil cache without a client")
	}
}

func TestRedisRoundTrip(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR is required for redis tests")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("redis ping: %v", err)
	}

	prefix := "test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	c := New(client, prefix)

	if err := c.SavePresence(ctx, Presence{DeviceID: "d1", DeviceType: models.DeviceDisplay, LastSeenAt: time.Now().UTC()}); err != nil {
		t.Fatalf("save presence: %v", err)
	}
	entry, ok, err := c.Presence(ctx, "d1")
	if err != nil || !ok || entry.DeviceType != models.DeviceDisplay {
		t.Fatalf("unexpected presence %+v ok=%v err=%v", entry, ok, err)
	}

	counts := models.QueueCounts{Pending: 3, Total: 3}
	if err := c.SaveQueueCounts(ctx, counts); err != nil {
		t.Fatalf("save counts: %v", err)
	}
	got, ok, err := c.QueueCounts(ctx)
	if err != nil || !ok || got != counts {
		t.Fatalf("unexpected counts %+v ok=%v err=%v", got, ok, err)
	}

	deleted, err := c.Purge(ctx)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("expected 2 keys purged, got %d", deleted)
	}
	if _, ok, _ := c.Presence(ctx, "d1"); ok {
		t.Fatalf("expected presence gone after purge")
	}
}

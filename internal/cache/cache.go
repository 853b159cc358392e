package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jeogo/casnos-sub001/internal/models"

	"github.com/redis/go-redis/v9"
)

const (
	presenceTTL = 10 * time.Minute
	countsTTL   = 24 * time.Hour
)

// Cache mirrors presence and queue counts into Redis for out-of-process
// readers. A nil *Cache is valid and does nothing.
type Cache struct {
	client *redis.Client
	prefix string
}

type Presence struct {
	DeviceID     string    `json:"device_id"`
	DeviceType   string    `json:"device_type"`
	ConnectionID string    `json:"connection_id"`
	IPAddress    string    `json:"ip_address"`
	LastSeenAt   time.Time `json:"last_seen_at"`
}

func New(client *redis.Client, prefix string) *Cache {
	if client == nil {
		return nil
	}
	if prefix == "" {
		prefix = "casnos"
	}
	return &Cache{client: client, prefix: prefix}
}

func (c *Cache) presenceKey(deviceID string) string {
	return fmt.Sprintf("%s:presence:device:%s", c.prefix, deviceID)
}

func (c *Cache) countsKey() string {
	return c.prefix + ":queue:counts"
}

func (c *Cache) SavePresence(ctx context.Context, entry Presence) error {
	if c == nil {
		return nil
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal presence: %w", err)
	}
	if err := c.client.Set(ctx, c.presenceKey(entry.DeviceID), payload, presenceTTL).Err(); err != nil {
		return fmt.Errorf("save presence: %w", err)
	}
	return nil
}

func (c *Cache) Presence(ctx context.Context, deviceID string) (Presence, bool, error) {
	if c == nil {
		return Presence{}, false, nil
	}
	val, err := c.client.Get(ctx, c.presenceKey(deviceID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Presence{}, false, nil
		}
		return Presence{}, false, fmt.Errorf("get presence: %w", err)
	}
	var entry Presence
	if err := json.Unmarshal([]byte(val), &entry); err != nil {
		return Presence{}, false, fmt.Errorf("unmarshal presence: %w", err)
	}
	return entry, true, nil
}

func (c *Cache) DeletePresence(ctx context.Context, deviceID string) error {
	if c == nil {
		return nil
	}
	if err := c.client.Del(ctx, c.presenceKey(deviceID)).Err(); err != nil {
		return fmt.Errorf("delete presence: %w", err)
	}
	return nil
}

func (c *Cache) SaveQueueCounts(ctx context.Context, counts models.QueueCounts) error {
	if c == nil {
		return nil
	}
	payload, err := json.Marshal(counts)
	if err != nil {
		return fmt.Errorf("marshal counts: %w", err)
	}
	if err := c.client.Set(ctx, c.countsKey(), payload, countsTTL).Err(); err != nil {
		return fmt.Errorf("save counts: %w", err)
	}
	return nil
}

func (c *Cache) QueueCounts(ctx context.Context) (models.QueueCounts, bool, error) {
	if c == nil {
		return models.QueueCounts{}, false, nil
	}
	val, err := c.client.Get(ctx, c.countsKey()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return models.QueueCounts{}, false, nil
		}
		return models.QueueCounts{}, false, fmt.Errorf("get counts: %w", err)
	}
	var counts models.QueueCounts
	if err := json.Unmarshal([]byte(val), &counts); err != nil {
		return models.QueueCounts{}, false, fmt.Errorf("unmarshal counts: %w", err)
	}
	return counts, true, nil
}

// Purge deletes every key under the prefix and returns how many went.
func (c *Cache) Purge(ctx context.Context) (int, error) {
	if c == nil {
		return 0, nil
	}
	var cursor uint64
	deleted := 0
	for {
		keys, next, err := c.client.Scan(ctx, cursor, c.prefix+":*", 200).Result()
		if err != nil {
			return deleted, fmt.Errorf("scan cache: %w", err)
		}
		if len(keys) > 0 {
			n, err := c.client.Del(ctx, keys...).Result()
			if err != nil {
				return deleted, fmt.Errorf("purge cache: %w", err)
			}
			deleted += int(n)
		}
		cursor = next
		if cursor == 0 {
			return deleted, nil
		}
	}
}

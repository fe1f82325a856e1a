package webhook

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"leadgen-platform/pkg/utils"

	"github.com/redis/go-redis/v9"
)

const DefaultDedupTTL = 24 * time.Hour

// Deduper remembers which deliveries were already processed.
type Deduper interface {
	MarkOnce(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unmark(ctx context.Context, key string) error
}

// deliveryKey identifies one delivery for de-dup, or returns "" when the
// event cannot be told apart from a different event with the same bytes.
// Transcript lines repeat ("Yes."), so they are keyed on the vendor
// timestamp and skip de-dup without one. Other types key on the payload.
func deliveryKey(e Event, body []byte) string {
	if e.Call.ID == "" {
		return ""
	}
	if e.Type == TypeTranscript {
		if e.Timestamp == "" {
			return ""
		}
		sum := sha256.Sum256([]byte(e.Role + "\x00" + e.Content))
		return "vapi:" + e.Call.ID + ":" + e.Type + ":" + e.Timestamp + ":" + hex.EncodeToString(sum[:8])
	}
	sum := sha256.Sum256(body)
	return "vapi:" + e.Call.ID + ":" + e.Type + ":" + hex.EncodeToString(sum[:12])
}

type RedisDeduper struct {
	rdb redis.Cmdable
}

func NewRedisDeduper(rdb redis.Cmdable) *RedisDeduper {
	return &RedisDeduper{rdb: rdb}
}

func (d *RedisDeduper) MarkOnce(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return utils.MarkOnce(ctx, d.rdb, key, ttl)
}

func (d *RedisDeduper) Unmark(ctx context.Context, key string) error {
	return utils.Unmark(ctx, d.rdb, key)
}

// MemoryDeduper is the single-process fallback when Redis is not configured.
type MemoryDeduper struct {
	mu    sync.Mutex
	seen  map[string]time.Time
	clock func() time.Time
}

func NewMemoryDeduper() *MemoryDeduper {
	return &MemoryDeduper{seen: map[string]time.Time{}, clock: time.Now}
}

func (d *MemoryDeduper) MarkOnce(_ context.Context, key string, ttl time.Duration) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.clock()
	if exp, ok := d.seen[key]; ok && now.Before(exp) {
		return false, nil
	}
	d.seen[key] = now.Add(ttl)
	return true, nil
}

func (d *MemoryDeduper) Unmark(_ context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, key)
	return nil
}

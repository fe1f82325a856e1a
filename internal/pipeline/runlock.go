package pipeline

import (
	"context"
	"sync"
	"time"

	"leadgen-platform/pkg/utils"

	"github.com/redis/go-redis/v9"
)

// RunLock guards one scrape run per campaign across processes.
type RunLock interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

func runLockKey(campaignID string) string {
	return "campaign-run:" + campaignID
}

// RedisRunLock is a one-slot concurrency cap in Redis.
type RedisRunLock struct {
	rdb redis.Scripter
}

func NewRedisRunLock(rdb redis.Scripter) *RedisRunLock {
	return &RedisRunLock{rdb: rdb}
}

func (l *RedisRunLock) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return utils.AcquireConcurrencyCap(ctx, l.rdb, key, 1, ttl)
}

func (l *RedisRunLock) Release(ctx context.Context, key string) error {
	return utils.ReleaseConcurrencyCap(ctx, l.rdb, key)
}

// LocalRunLock is an in-process lock for single-instance runs and tests.
type LocalRunLock struct {
	mu    sync.Mutex
	held  map[string]time.Time
	clock func() time.Time
}

func NewLocalRunLock() *LocalRunLock {
	return &LocalRunLock{held: map[string]time.Time{}, clock: time.Now}
}

func (l *LocalRunLock) Acquire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.clock()
	if exp, ok := l.held[key]; ok && now.Before(exp) {
		return false, nil
	}
	l.held[key] = now.Add(ttl)
	return true, nil
}

func (l *LocalRunLock) Release(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
	return nil
}

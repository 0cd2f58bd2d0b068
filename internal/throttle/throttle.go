// Package throttle decides whether a state-changing write may trigger an
// outbound notification. State lives server-side so the cool-down holds
// across devices and reinstalls, not per browser.
package throttle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Window is the minimum interval between two notifications of the same class
// for the same conversation.
const Window = 10 * time.Second

// Throttler is a pure decision function plus a recorder. ShouldNotify and
// RecordAttempt are exposed separately for callers that act between them;
// Allow is the atomic composition and is what the append path uses.
type Throttler interface {
	ShouldNotify(ctx context.Context, conversationID, class string) (bool, error)
	RecordAttempt(ctx context.Context, conversationID, class string) error
	Allow(ctx context.Context, conversationID, class string) (bool, error)
}

func key(prefix, conversationID, class string) string {
	return fmt.Sprintf("%s:notify:%s:%s", prefix, conversationID, class)
}

// RedisThrottler stores lastSentAt per (conversation, class) with a TTL equal
// to the window; SET NX makes check-and-record atomic across instances.
type RedisThrottler struct {
	rdb    *redis.Client
	prefix string
	window time.Duration
}

func NewRedisThrottler(rdb *redis.Client, prefix string) *RedisThrottler {
	return &RedisThrottler{rdb: rdb, prefix: prefix, window: Window}
}

func (t *RedisThrottler) ShouldNotify(ctx context.Context, conversationID, class string) (bool, error) {
	n, err := t.rdb.Exists(ctx, key(t.prefix, conversationID, class)).Result()
	if err != nil {
		return false, err
	}
	return n == 0, nil
}

func (t *RedisThrottler) RecordAttempt(ctx context.Context, conversationID, class string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	return t.rdb.Set(ctx, key(t.prefix, conversationID, class), now, t.window).Err()
}

func (t *RedisThrottler) Allow(ctx context.Context, conversationID, class string) (bool, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	return t.rdb.SetNX(ctx, key(t.prefix, conversationID, class), now, t.window).Result()
}

// MemoryThrottler is the in-process variant for tests and single-node dev.
type MemoryThrottler struct {
	mu       sync.Mutex
	lastSent map[string]time.Time
	window   time.Duration
	now      func() time.Time
}

func NewMemoryThrottler() *MemoryThrottler {
	return &MemoryThrottler{
		lastSent: make(map[string]time.Time),
		window:   Window,
		now:      time.Now,
	}
}

// SetClock overrides the clock. Test helper.
func (t *MemoryThrottler) SetClock(now func() time.Time) { t.now = now }

func (t *MemoryThrottler) ShouldNotify(ctx context.Context, conversationID, class string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.allowLocked(conversationID, class), nil
}

func (t *MemoryThrottler) RecordAttempt(ctx context.Context, conversationID, class string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastSent[key("", conversationID, class)] = t.now()
	return nil
}

func (t *MemoryThrottler) Allow(ctx context.Context, conversationID, class string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.allowLocked(conversationID, class) {
		return false, nil
	}
	t.lastSent[key("", conversationID, class)] = t.now()
	return true, nil
}

func (t *MemoryThrottler) allowLocked(conversationID, class string) bool {
	last, ok := t.lastSent[key("", conversationID, class)]
	if !ok {
		return true
	}
	return t.now().Sub(last) > t.window
}

package throttle

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFirstAttemptAlwaysPasses(t *testing.T) {
	tr := NewMemoryThrottler()
	ok, err := tr.Allow(context.Background(), "conv1", "message")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSecondAttemptWithinWindowBlocked(t *testing.T) {
	tr := NewMemoryThrottler()
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	tr.SetClock(func() time.Time { return now })

	ok, _ := tr.Allow(context.Background(), "conv1", "message")
	require.True(t, ok)

	now = now.Add(5 * time.Second)
	ok, _ = tr.Allow(context.Background(), "conv1", "message")
	assert.False(t, ok)
}

func TestAttemptAfterWindowPasses(t *testing.T) {
	tr := NewMemoryThrottler()
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	tr.SetClock(func() time.Time { return now })

	ok, _ := tr.Allow(context.Background(), "conv1", "message")
	require.True(t, ok)

	now = now.Add(Window + time.Second)
	ok, _ = tr.Allow(context.Background(), "conv1", "message")
	assert.True(t, ok)
}

func TestClassesAndConversationsIndependent(t *testing.T) {
	tr := NewMemoryThrottler()
	ctx := context.Background()

	ok, _ := tr.Allow(ctx, "conv1", "message")
	require.True(t, ok)

	ok, _ = tr.Allow(ctx, "conv1", "support")
	assert.True(t, ok, "different class, same conversation")

	ok, _ = tr.Allow(ctx, "conv2", "message")
	assert.True(t, ok, "same class, different conversation")
}

func TestShouldNotifyDoesNotRecord(t *testing.T) {
	tr := NewMemoryThrottler()
	ctx := context.Background()

	ok, _ := tr.ShouldNotify(ctx, "conv1", "message")
	require.True(t, ok)
	ok, _ = tr.ShouldNotify(ctx, "conv1", "message")
	assert.True(t, ok, "pure check must not consume the window")

	require.NoError(t, tr.RecordAttempt(ctx, "conv1", "message"))
	ok, _ = tr.ShouldNotify(ctx, "conv1", "message")
	assert.False(t, ok)
}

func TestConcurrentAllowAdmitsExactlyOne(t *testing.T) {
	tr := NewMemoryThrottler()
	ctx := context.Background()

	const n = 32
	var wg sync.WaitGroup
	results := make([]bool, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := tr.Allow(ctx, "conv1", "message")
			require.NoError(t, err)
			results[i] = ok
		}(i)
	}
	wg.Wait()

	passed := 0
	for _, ok := range results {
		if ok {
			passed++
		}
	}
	assert.Equal(t, 1, passed, "near-simultaneous sends must not both pass")
}

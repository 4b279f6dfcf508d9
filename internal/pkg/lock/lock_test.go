package lock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// TestUserLock_MutualExclusion verifies that WithLock serializes access
// per user id: concurrent increments under the lock never lose updates.
func TestUserLock_MutualExclusion(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		workers := rapid.IntRange(2, 16).Draw(t, "workers")
		increments := rapid.IntRange(1, 50).Draw(t, "increments")

		ul := NewUserLock()
		counter := 0

		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < increments; j++ {
					_ = ul.WithLock("user-1", func() error {
						counter++
						return nil
					})
				}
			}()
		}
		wg.Wait()

		if counter != workers*increments {
			t.Fatalf("lost updates: got %d, want %d", counter, workers*increments)
		}
	})
}

func TestUserLock_IndependentKeys(t *testing.T) {
	ul := NewUserLock()

	ul.Lock("user-1")
	defer ul.Unlock("user-1")

	// A different user id must not be blocked.
	assert.True(t, ul.TryLock("user-2"))
	ul.Unlock("user-2")

	// The held id is blocked.
	assert.False(t, ul.TryLock("user-1"))
}

func TestUserLock_LockWithTimeout(t *testing.T) {
	ul := NewUserLock()
	ctx := context.Background()

	ul.Lock("user-1")
	acquired := ul.LockWithTimeout(ctx, "user-1", 50*time.Millisecond)
	assert.False(t, acquired)

	ul.Unlock("user-1")

	require.True(t, ul.LockWithTimeout(ctx, "user-1", 50*time.Millisecond))
	ul.Unlock("user-1")
}

func TestUserLock_WithLockContext(t *testing.T) {
	ul := NewUserLock()

	ul.Lock("user-1")
	err := ul.WithLockContext(context.Background(), "user-1", 20*time.Millisecond, func() error {
		t.Fatal("must not run while lock is held elsewhere")
		return nil
	})
	assert.ErrorIs(t, err, ErrLockTimeout)
	ul.Unlock("user-1")

	ran := false
	err = ul.WithLockContext(context.Background(), "user-1", 20*time.Millisecond, func() error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
}

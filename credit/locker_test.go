package credit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinkLocks_AcquireAndRelease(t *testing.T) {
	ll := newLinkLocks()
	ctx := context.Background()

	release, err := ll.acquire(ctx, "link-1", 10*time.Millisecond)
	require.NoError(t, err)
	release()

	// Released: a second acquire gets through immediately.
	release, err = ll.acquire(ctx, "link-1", 10*time.Millisecond)
	require.NoError(t, err)
	release()
}

func TestLinkLocks_ContentionTimesOut(t *testing.T) {
	ll := newLinkLocks()
	ctx := context.Background()

	release, err := ll.acquire(ctx, "link-1", 10*time.Millisecond)
	require.NoError(t, err)
	defer release()

	_, err = ll.acquire(ctx, "link-1", 20*time.Millisecond)
	assert.ErrorIs(t, err, ErrConcurrencyConflict)
	assert.True(t, IsRetryable(err))
}

func TestLinkLocks_IndependentLinksDoNotContend(t *testing.T) {
	ll := newLinkLocks()
	ctx := context.Background()

	releaseA, err := ll.acquire(ctx, "link-a", 10*time.Millisecond)
	require.NoError(t, err)
	defer releaseA()

	releaseB, err := ll.acquire(ctx, "link-b", 10*time.Millisecond)
	require.NoError(t, err)
	defer releaseB()
}

func TestLinkLocks_ContextCancellation(t *testing.T) {
	ll := newLinkLocks()

	release, err := ll.acquire(context.Background(), "link-1", time.Millisecond)
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = ll.acquire(ctx, "link-1", time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
}

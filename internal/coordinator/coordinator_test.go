package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestCoordinator(t *testing.T) *Coordinator {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return New(rdb, zerolog.Nop())
}

func TestAcquireFinalizeTokenGivesOneToFirstCallerOnly(t *testing.T) {
	c := newTestCoordinator(t)
	ctx := context.Background()

	first, err := c.AcquireFinalizeToken(ctx, "2026-08-06")
	require.NoError(t, err)
	require.EqualValues(t, 1, first)

	second, err := c.AcquireFinalizeToken(ctx, "2026-08-06")
	require.NoError(t, err)
	require.EqualValues(t, 2, second)
}

func TestAcquireJoinSlotRespectsCap(t *testing.T) {
	c := newTestCoordinator(t)
	ctx := context.Background()

	admitted, degraded := c.AcquireJoinSlot(ctx, "2026-08-06", 2)
	require.True(t, admitted)
	require.False(t, degraded)

	admitted, _ = c.AcquireJoinSlot(ctx, "2026-08-06", 2)
	require.True(t, admitted)

	admitted, _ = c.AcquireJoinSlot(ctx, "2026-08-06", 2)
	require.False(t, admitted)

	c.ReleaseJoinSlot(ctx, "2026-08-06")
	admitted, _ = c.AcquireJoinSlot(ctx, "2026-08-06", 2)
	require.True(t, admitted)
}

func TestAdvanceToAndRead(t *testing.T) {
	c := newTestCoordinator(t)
	ctx := context.Background()

	now := time.Now().Truncate(time.Second)
	require.NoError(t, c.AdvanceTo(ctx, "2026-08-06", 12, now))

	idx, err := c.CurrentIndex(ctx, "2026-08-06")
	require.NoError(t, err)
	require.Equal(t, 12, idx)

	started, ok, err := c.QuestionStartedAt(ctx, "2026-08-06")
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, started.Equal(now))
}

func TestWebhookFirstSeenIsOnceOnly(t *testing.T) {
	c := newTestCoordinator(t)
	ctx := context.Background()

	first, err := c.WebhookFirstSeen(ctx, "evt-1")
	require.NoError(t, err)
	require.True(t, first)

	second, err := c.WebhookFirstSeen(ctx, "evt-1")
	require.NoError(t, err)
	require.False(t, second)
}

func TestCurrentIndexFallsBackToZeroWhenAbsent(t *testing.T) {
	c := newTestCoordinator(t)
	idx, err := c.CurrentIndex(context.Background(), "2099-01-01")
	require.NoError(t, err)
	require.Equal(t, 0, idx)
}

// Package coordinator implements the Ephemeral Coordinator: cluster-visible
// counters and fences for the current question index, join admission, the
// finalization token, and webhook idempotency. It is a performance aid, not
// a source of truth — the State Store owns durable data. Per spec §4.5 and
// §5: fence paths fail closed (a Redis error must abort the caller, never
// silently permit a duplicate finalize); rate-limit paths fail open (a
// Redis error degrades to "allow" rather than blocking every participant).
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ErrCoordinatorUnavailable wraps any Redis failure on a fence path, where
// the caller must treat it as "do not proceed" rather than retry-forever.
var ErrCoordinatorUnavailable = errors.New("coordinator unavailable")

// dayTTL bounds how long any per-day coordinator key survives, well past
// the longest plausible quiz day, so a crashed process never leaves a
// permanent fence behind.
const dayTTL = 36 * time.Hour

// Coordinator wraps a Redis client with the fence/counter operations the
// engine's hot paths need.
type Coordinator struct {
	rdb *redis.Client
	log zerolog.Logger
}

// New builds a Coordinator.
func New(rdb *redis.Client, log zerolog.Logger) *Coordinator {
	return &Coordinator{rdb: rdb, log: log.With().Str("component", "coordinator").Logger()}
}

// CurrentIndex returns the day's current slot index. Callers on the read
// path must fall back to a store-derived value when err != nil — the
// Coordinator's absence must never block a read.
func (c *Coordinator) CurrentIndex(ctx context.Context, date string) (int, error) {
	val, err := c.rdb.Get(ctx, Key.CurrentIndexKey(date)).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("read current index: %w", err)
	}
	return val, nil
}

// QuestionStartedAt returns when the current slot began, if recorded.
func (c *Coordinator) QuestionStartedAt(ctx context.Context, date string) (time.Time, bool, error) {
	val, err := c.rdb.Get(ctx, Key.QuestionStartedAtKey(date)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("read question started at: %w", err)
	}
	t, err := time.Parse(time.RFC3339Nano, val)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse question started at: %w", err)
	}
	return t, true, nil
}

// AdvanceTo atomically sets the current index and its start time. Called by
// the Scheduler's advancement loop every 15s while LIVE, and by recovery on
// startup to resume from where a crashed process left off.
func (c *Coordinator) AdvanceTo(ctx context.Context, date string, slot int, startedAt time.Time) error {
	pipe := c.rdb.TxPipeline()
	pipe.Set(ctx, Key.CurrentIndexKey(date), slot, dayTTL)
	pipe.Set(ctx, Key.QuestionStartedAtKey(date), startedAt.Format(time.RFC3339Nano), dayTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("advance to slot %d: %w", slot, err)
	}
	return nil
}

// AcquireFinalizeToken increments the day's finalize-token counter and
// returns the post-increment value. Exactly one caller per day ever sees 1;
// every other caller (concurrent or a later crash-recovery retry) sees a
// value > 1 and must not finalize. Fails closed: any Redis error here is
// returned verbatim and the caller must not proceed.
func (c *Coordinator) AcquireFinalizeToken(ctx context.Context, date string) (int64, error) {
	key := Key.FinalizeTokenKey(date)
	val, err := c.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: acquire finalize token: %v", ErrCoordinatorUnavailable, err)
	}
	if val == 1 {
		c.rdb.Expire(ctx, key, dayTTL)
	}
	return val, nil
}

// AcquireJoinSlot increments the day's in-flight admission counter and
// reports whether the caller is within the soft cap. Fails open: a Redis
// error is logged and treated as "admit", since join throttling is a
// protective measure, not a correctness requirement.
func (c *Coordinator) AcquireJoinSlot(ctx context.Context, date string, cap int64) (admitted bool, degraded bool) {
	key := Key.JoinSlotKey(date)
	val, err := c.rdb.Incr(ctx, key).Result()
	if err != nil {
		c.log.Warn().Err(err).Str("date", date).Msg("join slot counter unavailable, failing open")
		return true, true
	}
	if val == 1 {
		c.rdb.Expire(ctx, key, dayTTL)
	}
	if val > cap {
		c.rdb.Decr(ctx, key)
		return false, false
	}
	return true, false
}

// ReleaseJoinSlot decrements the day's in-flight admission counter once an
// admission attempt has completed (success or failure).
func (c *Coordinator) ReleaseJoinSlot(ctx context.Context, date string) {
	if err := c.rdb.Decr(ctx, Key.JoinSlotKey(date)).Err(); err != nil {
		c.log.Warn().Err(err).Str("date", date).Msg("failed to release join slot")
	}
}

// WebhookFirstSeen reports whether this event-id has not been processed in
// the last 7 days, claiming it atomically if so. Fails closed: a Redis
// error here must cause the webhook handler to reject with Upstream rather
// than risk double-processing a payment capture.
func (c *Coordinator) WebhookFirstSeen(ctx context.Context, eventID string) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, Key.WebhookSeenKey(eventID), time.Now().Format(time.RFC3339), 7*24*time.Hour).Result()
	if err != nil {
		return false, fmt.Errorf("%w: webhook idempotency check: %v", ErrCoordinatorUnavailable, err)
	}
	return ok, nil
}

// ReplayFirstSeen reports whether (orderID, createdAt) has not been seen in
// the last 5 minutes, claiming it atomically if so.
func (c *Coordinator) ReplayFirstSeen(ctx context.Context, orderID string, createdAt time.Time) (bool, error) {
	key := Key.WebhookReplayKey(orderID, createdAt.Format(time.RFC3339Nano))
	ok, err := c.rdb.SetNX(ctx, key, "1", 5*time.Minute).Result()
	if err != nil {
		return false, fmt.Errorf("%w: webhook replay check: %v", ErrCoordinatorUnavailable, err)
	}
	return ok, nil
}

// ResetDay clears all coordinator state for a date. Used by test harnesses
// that need a clean slate between runs; never called on the hot path.
func (c *Coordinator) ResetDay(ctx context.Context, date string) error {
	keys := []string{
		Key.CurrentIndexKey(date),
		Key.QuestionStartedAtKey(date),
		Key.FinalizeTokenKey(date),
		Key.JoinSlotKey(date),
	}
	return c.rdb.Del(ctx, keys...).Err()
}

// forceFinalizeLockTTL bounds how long one force-finalize call holds
// exclusive rights to reset the day's finalize token. Long enough to cover
// a normal finalize run, short enough that a genuinely stuck caller doesn't
// wedge recovery for the rest of the day.
const forceFinalizeLockTTL = 10 * time.Second

// ReclaimFinalizeToken clears the day's finalize-token counter so a
// disaster-recovery force-finalize can actually re-run a finalize the
// Scheduler started but crashed before completing — AcquireFinalizeToken is
// a one-shot INCR, so once that automatic call has claimed token 1, every
// later caller sees 2+ and Finalize silently no-ops.
//
// The reset itself is gated behind a short-lived SETNX lock: only the first
// of any concurrent set of force-finalize calls performs it. Without this,
// two admins double-clicking force-finalize could both reset the token,
// both win the resulting AcquireFinalizeToken race, and both run the
// finalize transaction and FSM transition concurrently — the second
// transition would then fail against a quiz already moved to FINALIZED by
// the first. A caller that loses the lock still calls Finalize normally; it
// simply doesn't get to reset the token itself, and rides whichever run is
// already in flight.
func (c *Coordinator) ReclaimFinalizeToken(ctx context.Context, date string) error {
	ok, err := c.rdb.SetNX(ctx, Key.ForceFinalizeLockKey(date), "1", forceFinalizeLockTTL).Result()
	if err != nil {
		return fmt.Errorf("%w: acquire force-finalize lock: %v", ErrCoordinatorUnavailable, err)
	}
	if !ok {
		return nil
	}
	return c.rdb.Del(ctx, Key.FinalizeTokenKey(date)).Err()
}

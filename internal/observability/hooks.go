// Package observability implements the Observability Hooks: a
// non-blocking sink for anti-cheat signals raised on the answer path, a
// background flush worker that persists them, fencing-failure recording
// for contended Coordinator fences, and the derived alerts the spec
// layers on top of raw anti-cheat counts. Nothing on a participant-facing
// request path ever waits on a database write here — Record only
// enqueues.
package observability

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/r0o773rm1n41/dme-backend/internal/config"
	"github.com/r0o773rm1n41/dme-backend/internal/model"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// AuditRepository is the subset of repository.AuditRepository the hooks
// need, kept narrow so this package never depends on *pgxpool.Pool
// directly for anything but the flush worker's own bulk writes.
type AuditRepository interface {
	RecordFencingFailure(ctx context.Context, f model.FencingFailure) error
	CountAntiCheatEventsByUser(ctx context.Context, userID int, date string, evType model.AntiCheatEventType) (int, error)
}

// Hooks implements ingestor.CheatSink and the Coordinator-failure and
// derived-alert surfaces the spec groups under Observability.
type Hooks struct {
	rdb   *redis.Client
	audit AuditRepository
	log   zerolog.Logger
}

func NewHooks(rdb *redis.Client, audit AuditRepository, log zerolog.Logger) *Hooks {
	return &Hooks{rdb: rdb, audit: audit, log: log.With().Str("component", "observability").Logger()}
}

// Record implements ingestor.CheatSink. It enqueues the event onto the
// same Redis-backed queue shape the teacher used for exam cheat events and
// returns immediately; AntiCheatWorker does the actual persistence.
func (h *Hooks) Record(ctx context.Context, ev model.AntiCheatEvent) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	encoded, err := json.Marshal(ev)
	if err != nil {
		h.log.Error().Err(err).Msg("marshal anti-cheat event")
		return
	}
	go func() {
		pushCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := h.rdb.RPush(pushCtx, config.WorkerKey.PersistCheatsQueue, encoded).Err(); err != nil {
			h.log.Error().Err(err).Str("type", string(ev.Type)).Msg("failed to enqueue anti-cheat event")
		}
	}()
}

// RecordFencingFailure persists a Coordinator fence call that returned
// coordinator.ErrCoordinatorUnavailable — a fail-closed path that aborted
// its caller. Written synchronously: these are rare enough that batching
// would only add latency to an already-exceptional path. Nothing in this
// repository calls it; the fence callers return the error without
// recording a fencing failure.
func (h *Hooks) RecordFencingFailure(ctx context.Context, operation, date string) {
	if err := h.audit.RecordFencingFailure(ctx, model.FencingFailure{
		ID: uuid.NewString(), Operation: operation, QuizDate: date, At: time.Now(),
	}); err != nil {
		h.log.Error().Err(err).Str("operation", operation).Msg("failed to record fencing failure")
	}
}

// Action is the escalation the derived-alert policy recommends once an
// anti-cheat signal crosses a threshold.
type Action string

const (
	ActionNone           Action = "none"
	ActionMarkSuspicious Action = "mark_suspicious"
	ActionTempBlock      Action = "temp_block"
	ActionForceLogout    Action = "force_logout"
)

// repeatMismatchSuspiciousThreshold / repeatMismatchBlockThreshold tier the
// repeat-device-mismatch alert: one or two mismatches could be a flaky
// client, three in one day is a device-sharing pattern worth flagging,
// five earns a temporary block, and ten is worth cutting off mid-quiz.
const (
	repeatMismatchSuspiciousThreshold = 3
	repeatMismatchBlockThreshold      = 5
	repeatMismatchLogoutThreshold     = 10
)

// EvaluateRepeatMismatch counts this user's device_mismatch events for the
// day and returns the escalation action the count now warrants.
func (h *Hooks) EvaluateRepeatMismatch(ctx context.Context, userID int, date string) (Action, error) {
	count, err := h.audit.CountAntiCheatEventsByUser(ctx, userID, date, model.EventDeviceMismatch)
	if err != nil {
		return ActionNone, err
	}
	switch {
	case count >= repeatMismatchLogoutThreshold:
		return ActionForceLogout, nil
	case count >= repeatMismatchBlockThreshold:
		return ActionTempBlock, nil
	case count >= repeatMismatchSuspiciousThreshold:
		return ActionMarkSuspicious, nil
	default:
		return ActionNone, nil
	}
}

// AntiCheatWorker drains the Redis-backed anti-cheat queue and bulk-writes
// it to anti_cheat_events, grounded on the teacher's cheat_worker.go
// batch-flush-with-fallback shape: CopyFrom first, row-by-row retry on
// failure, requeue on durable write failure rather than drop.
type AntiCheatWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

func NewAntiCheatWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *AntiCheatWorker {
	return &AntiCheatWorker{pool: pool, rdb: rdb, log: log.With().Str("component", "anti_cheat_worker").Logger()}
}

const (
	batchSize    = 50
	batchTimeout = 2 * time.Second
	pollTimeout  = 1 * time.Second
)

func (w *AntiCheatWorker) Start(ctx context.Context) {
	w.log.Info().Msg("anti-cheat worker started")

	buffer := make([]model.AntiCheatEvent, 0, batchSize)
	lastFlush := time.Now()

	for {
		if len(buffer) > 0 && (len(buffer) >= batchSize || time.Since(lastFlush) >= batchTimeout) {
			w.flush(ctx, buffer)
			buffer = buffer[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.flush(context.Background(), buffer)
			w.log.Info().Msg("anti-cheat worker stopped")
			return
		default:
		}

		result, err := w.rdb.BLPop(ctx, pollTimeout, config.WorkerKey.PersistCheatsQueue).Result()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			if ctx.Err() != nil {
				continue
			}
			w.log.Error().Err(err).Msg("redis connection error, backing off")
			time.Sleep(3 * time.Second)
			continue
		}
		if len(result) < 2 {
			continue
		}

		var ev model.AntiCheatEvent
		if err := json.Unmarshal([]byte(result[1]), &ev); err != nil {
			w.log.Error().Err(err).Str("data", result[1]).Msg("discarding malformed anti-cheat event")
			continue
		}
		buffer = append(buffer, ev)
	}
}

func (w *AntiCheatWorker) flush(ctx context.Context, batch []model.AntiCheatEvent) {
	if len(batch) == 0 {
		return
	}
	if err := w.bulkInsert(ctx, batch); err != nil {
		w.log.Warn().Err(err).Int("count", len(batch)).Msg("bulk insert failed, falling back to row-by-row")
		w.fallbackInsert(ctx, batch)
	}
}

func (w *AntiCheatWorker) bulkInsert(ctx context.Context, batch []model.AntiCheatEvent) error {
	rows := make([][]interface{}, len(batch))
	for i, ev := range batch {
		id := ev.ID
		if id == "" {
			id = uuid.NewString()
		}
		rows[i] = []interface{}{id, ev.UserID, ev.QuizDate, ev.Type, ev.Detail, ev.At}
	}
	_, err := w.pool.CopyFrom(ctx,
		pgx.Identifier{"anti_cheat_events"},
		[]string{"id", "user_id", "quiz_date", "type", "detail", "at"},
		pgx.CopyFromRows(rows),
	)
	return err
}

func (w *AntiCheatWorker) fallbackInsert(ctx context.Context, batch []model.AntiCheatEvent) {
	var requeue []model.AntiCheatEvent
	for _, ev := range batch {
		_, err := w.pool.Exec(ctx,
			`INSERT INTO anti_cheat_events (id, user_id, quiz_date, type, detail, at) VALUES ($1, $2, $3, $4, $5, $6)`,
			ev.ID, ev.UserID, ev.QuizDate, ev.Type, ev.Detail, ev.At)
		if err != nil {
			w.log.Error().Err(err).Int("user_id", ev.UserID).Msg("insert failed, requeueing")
			requeue = append(requeue, ev)
		}
	}
	if len(requeue) > 0 {
		w.requeue(ctx, requeue)
	}
}

func (w *AntiCheatWorker) requeue(ctx context.Context, events []model.AntiCheatEvent) {
	pipe := w.rdb.Pipeline()
	for _, ev := range events {
		data, _ := json.Marshal(ev)
		pipe.RPush(ctx, config.WorkerKey.PersistCheatsQueue, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		w.log.Error().Err(err).Msg("failed to requeue anti-cheat events, data loss occurred")
	}
}

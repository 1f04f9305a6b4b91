package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/r0o773rm1n41/dme-backend/internal/config"
	"github.com/r0o773rm1n41/dme-backend/internal/model"
	"github.com/r0o773rm1n41/dme-backend/internal/repository"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ProgressWorker consumes the progress queue and upserts Progress rows.
// Progress is diagnostic only — nothing on the answer path waits for
// this worker, which is why question-sent/answered events are queued
// here instead of written inline by the Question Server and Answer
// Ingestor.
type ProgressWorker struct {
	repo *repository.ProgressRepository
	rdb  *redis.Client
	log  zerolog.Logger
}

func NewProgressWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *ProgressWorker {
	return &ProgressWorker{
		repo: repository.NewProgressRepository(pool),
		rdb:  rdb,
		log:  log.With().Str("component", "progress_worker").Logger(),
	}
}

// Enqueue pushes a progress update without blocking the caller.
func (w *ProgressWorker) Enqueue(ctx context.Context, p model.Progress) {
	data, err := json.Marshal(p)
	if err != nil {
		w.log.Error().Err(err).Msg("marshal progress event")
		return
	}
	go func() {
		pushCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := w.rdb.RPush(pushCtx, config.WorkerKey.PersistAnswersQueue, data).Err(); err != nil {
			w.log.Error().Err(err).Msg("failed to enqueue progress event")
		}
	}()
}

// Start begins the infinite worker loop. Call in a goroutine.
func (w *ProgressWorker) Start(ctx context.Context) {
	w.log.Info().Msg("progress worker started")

	for {
		select {
		case <-ctx.Done():
			w.drain(context.Background())
			w.log.Info().Msg("progress worker stopped")
			return
		default:
			w.processNext(ctx)
		}
	}
}

func (w *ProgressWorker) processNext(ctx context.Context) {
	result, err := w.rdb.BLPop(ctx, time.Second, config.WorkerKey.PersistAnswersQueue).Result()
	if err != nil {
		return
	}
	if len(result) < 2 {
		return
	}

	var p model.Progress
	if err := json.Unmarshal([]byte(result[1]), &p); err != nil {
		w.log.Error().Err(err).Msg("unmarshal progress event")
		return
	}

	if err := w.repo.Upsert(ctx, p); err != nil {
		w.log.Error().Err(err).Int("user_id", p.UserID).Msg("persist error, retrying in 5s")
		w.rdb.RPush(ctx, config.WorkerKey.PersistAnswersQueue, result[1])
		time.Sleep(5 * time.Second)
	}
}

// drain processes all remaining items in the queue before shutdown.
func (w *ProgressWorker) drain(ctx context.Context) {
	drained := 0
	for {
		result, err := w.rdb.LPop(ctx, config.WorkerKey.PersistAnswersQueue).Result()
		if err != nil {
			break
		}

		var p model.Progress
		if err := json.Unmarshal([]byte(result), &p); err != nil {
			w.log.Error().Err(err).Msg("drain unmarshal error")
			continue
		}

		if err := w.repo.Upsert(ctx, p); err != nil {
			w.log.Error().Err(err).Msg("drain persist error")
			w.rdb.RPush(ctx, config.WorkerKey.PersistAnswersQueue, result)
			break
		}
		drained++
	}

	if drained > 0 {
		w.log.Info().Int("count", drained).Msg("drained remaining progress events")
	}
}

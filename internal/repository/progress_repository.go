package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/r0o773rm1n41/dme-backend/internal/model"
)

// ProgressRepository persists Progress rows: an append-only, ephemeral,
// audit-only trail of when each slot was sent and answered. Nothing in
// this engine reads these rows to decide whether a slot is "already
// answered" — that question is answered solely by the Attempt row's
// Answers[slot] pointer. Progress exists for observability and dispute
// resolution only.
type ProgressRepository struct {
	pool *pgxpool.Pool
}

func NewProgressRepository(pool *pgxpool.Pool) *ProgressRepository {
	return &ProgressRepository{pool: pool}
}

// Upsert records a slot's send/answer timestamps. Called from
// worker.ProgressWorker as it drains its queue, never on the request hot path.
func (r *ProgressRepository) Upsert(ctx context.Context, p model.Progress) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO progress (user_id, quiz_date, slot, question_sent_at, answered_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (user_id, quiz_date, slot) DO UPDATE SET
		   question_sent_at = COALESCE(progress.question_sent_at, EXCLUDED.question_sent_at),
		   answered_at = COALESCE(EXCLUDED.answered_at, progress.answered_at)`,
		p.UserID, p.QuizDate, p.Slot, p.QuestionSentAt, p.AnsweredAt)
	return err
}

func (r *ProgressRepository) ListForUser(ctx context.Context, userID int, date string) ([]model.Progress, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT user_id, quiz_date, slot, question_sent_at, answered_at
		 FROM progress WHERE user_id = $1 AND quiz_date = $2 ORDER BY slot`, userID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Progress
	for rows.Next() {
		var p model.Progress
		if err := rows.Scan(&p.UserID, &p.QuizDate, &p.Slot, &p.QuestionSentAt, &p.AnsweredAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// PruneOlderThan deletes progress rows whose question_sent_at is before
// cutoff. Nothing in this repository schedules it, so progress rows stay
// until it is called.
func (r *ProgressRepository) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM progress WHERE question_sent_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

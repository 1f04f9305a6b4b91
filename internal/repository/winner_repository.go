package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/r0o773rm1n41/dme-backend/internal/model"
	"golang.org/x/sync/singleflight"
)

// WinnerRepository is the State Store's persistence for the Finalizer's
// published leaderboard rows.
type WinnerRepository struct {
	pool *pgxpool.Pool
	sf   singleflight.Group
}

func NewWinnerRepository(pool *pgxpool.Pool) *WinnerRepository {
	return &WinnerRepository{pool: pool}
}

// Copier is satisfied by both *pgxpool.Pool and pgx.Tx, mirroring Querier
// but for the bulk-insert path, which pgx exposes as a separate method.
type Copier interface {
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// DeleteForDate clears any partial winner rows left by a crashed finalize
// attempt before the Finalizer recomputes and re-inserts. db is the
// Finalizer's transaction, so the delete and the re-insert either both
// land or neither does.
func (r *WinnerRepository) DeleteForDate(ctx context.Context, db Querier, date string) error {
	_, err := db.Exec(ctx, `DELETE FROM winners WHERE quiz_date = $1`, date)
	return err
}

// InsertAll writes the ranked winner set in a single round trip via
// CopyFrom, mirroring the teacher's bulk-insert pattern for exam results.
func (r *WinnerRepository) InsertAll(ctx context.Context, db Copier, winners []model.Winner) error {
	if len(winners) == 0 {
		return nil
	}
	rows := make([][]interface{}, len(winners))
	for i, w := range winners {
		rows[i] = []interface{}{
			w.QuizDate, w.Rank, w.UserID, w.Score, w.TotalTimeMs, w.Accuracy,
			w.QuizIntegrityHash, w.AttemptIntegrityHash,
		}
	}
	_, err := db.CopyFrom(ctx,
		[]string{"winners"},
		[]string{"quiz_date", "rank", "user_id", "score", "total_time_ms", "accuracy", "quiz_integrity_hash", "attempt_integrity_hash"},
		pgx.CopyFromRows(rows),
	)
	return err
}

// ListForDate is the published leaderboard read, hit by every client
// polling GET /quiz/leaderboard once a quiz reaches ENDED — the same
// thundering-herd shape as GetByDate, so it's collapsed the same way.
func (r *WinnerRepository) ListForDate(ctx context.Context, date string) ([]model.Winner, error) {
	v, err, _ := r.sf.Do(date, func() (interface{}, error) {
		return r.listForDate(ctx, date)
	})
	if err != nil {
		return nil, err
	}
	return v.([]model.Winner), nil
}

func (r *WinnerRepository) listForDate(ctx context.Context, date string) ([]model.Winner, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT quiz_date, rank, user_id, score, total_time_ms, accuracy,
		        quiz_integrity_hash, attempt_integrity_hash, created_at
		 FROM winners WHERE quiz_date = $1 ORDER BY rank`, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Winner
	for rows.Next() {
		var w model.Winner
		if err := rows.Scan(&w.QuizDate, &w.Rank, &w.UserID, &w.Score, &w.TotalTimeMs, &w.Accuracy,
			&w.QuizIntegrityHash, &w.AttemptIntegrityHash, &w.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

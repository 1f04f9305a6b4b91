package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/r0o773rm1n41/dme-backend/internal/model"
)

// AttemptRepository is the State Store's persistence for the per-user,
// per-day Attempt aggregate. The four positional slot arrays (permutation,
// option permutations, answers, timestamps) are stored as jsonb so the
// fixed-size-array shape round-trips exactly: a nil slot in Go serializes
// to JSON null and never collapses the array's length.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

// Querier is satisfied by both *pgxpool.Pool and pgx.Tx, letting the
// Finalizer's transactionally-scoped methods run either standalone or
// inside a caller-managed transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

type attemptRow struct {
	permutation        []byte
	optionPermutations []byte
	answers            []byte
	questionStartedAt  []byte
	answerTimestamps   []byte
	reasonCodes        []byte
}

func scanAttempt(row pgx.Row) (*model.Attempt, error) {
	a := &model.Attempt{}
	cols := attemptRow{}
	err := row.Scan(
		&a.ID, &a.UserID, &a.QuizDate,
		&cols.permutation, &cols.optionPermutations, &cols.answers,
		&cols.questionStartedAt, &cols.answerTimestamps,
		&a.DeviceHash, &a.Eligibility.Eligible, &a.Eligibility.Reason,
		&a.QuizStartedAt, &a.CompletedAt, &a.FinalizedAt, &a.Score, &a.Counted,
		&cols.reasonCodes, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(cols.permutation, &a.Permutation); err != nil {
		return nil, fmt.Errorf("unmarshal permutation: %w", err)
	}
	if err := json.Unmarshal(cols.optionPermutations, &a.OptionPermutations); err != nil {
		return nil, fmt.Errorf("unmarshal option permutations: %w", err)
	}
	if err := json.Unmarshal(cols.answers, &a.Answers); err != nil {
		return nil, fmt.Errorf("unmarshal answers: %w", err)
	}
	if err := json.Unmarshal(cols.questionStartedAt, &a.QuestionStartedAt); err != nil {
		return nil, fmt.Errorf("unmarshal question started at: %w", err)
	}
	if err := json.Unmarshal(cols.answerTimestamps, &a.AnswerTimestamps); err != nil {
		return nil, fmt.Errorf("unmarshal answer timestamps: %w", err)
	}
	if cols.reasonCodes != nil {
		if err := json.Unmarshal(cols.reasonCodes, &a.ReasonCodes); err != nil {
			return nil, fmt.Errorf("unmarshal reason codes: %w", err)
		}
	}
	return a, nil
}

const attemptColumns = `id, user_id, quiz_date, permutation, option_permutations, answers,
	question_started_at, answer_timestamps, device_hash, eligible, eligibility_reason,
	quiz_started_at, completed_at, finalized_at, score, counted, reason_codes, created_at, updated_at`

func (r *AttemptRepository) GetByUserAndDate(ctx context.Context, userID int, date string) (*model.Attempt, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+attemptColumns+` FROM attempts WHERE user_id = $1 AND quiz_date = $2`, userID, date)
	a, err := scanAttempt(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return a, nil
}

// CreateIfAbsent inserts a brand-new attempt and returns it with
// created=true, or re-fetches and returns the existing row with
// created=false when a concurrent join already won the insert race. The
// State Store never
// resolves that race itself — the Admission Service decides what a
// concurrent-join collision means for device-hash and eligibility.
func (r *AttemptRepository) CreateIfAbsent(ctx context.Context, a *model.Attempt) (*model.Attempt, bool, error) {
	permutation, err := json.Marshal(a.Permutation)
	if err != nil {
		return nil, false, err
	}
	optionPermutations, err := json.Marshal(a.OptionPermutations)
	if err != nil {
		return nil, false, err
	}
	answers, err := json.Marshal(a.Answers)
	if err != nil {
		return nil, false, err
	}
	questionStartedAt, err := json.Marshal(a.QuestionStartedAt)
	if err != nil {
		return nil, false, err
	}
	answerTimestamps, err := json.Marshal(a.AnswerTimestamps)
	if err != nil {
		return nil, false, err
	}
	reasonCodes, err := json.Marshal(a.ReasonCodes)
	if err != nil {
		return nil, false, err
	}

	row := r.pool.QueryRow(ctx,
		`INSERT INTO attempts (id, user_id, quiz_date, permutation, option_permutations, answers,
		        question_started_at, answer_timestamps, device_hash, eligible, eligibility_reason,
		        quiz_started_at, reason_codes)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 ON CONFLICT (user_id, quiz_date) DO NOTHING
		 RETURNING `+attemptColumns,
		a.ID, a.UserID, a.QuizDate, permutation, optionPermutations, answers,
		questionStartedAt, answerTimestamps, a.DeviceHash, a.Eligibility.Eligible, a.Eligibility.Reason,
		a.QuizStartedAt, reasonCodes,
	)
	created, err := scanAttempt(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			existing, getErr := r.GetByUserAndDate(ctx, a.UserID, a.QuizDate)
			return existing, false, getErr
		}
		return nil, false, err
	}
	return created, true, nil
}

// RecordAnswer writes a single slot's answer and timestamp. The WHERE
// clause requires the slot to still be unanswered, making this the
// database-level enforcement of "answers are write-once per slot" — a
// concurrent duplicate submission affects zero rows rather than
// overwriting data.
func (r *AttemptRepository) RecordAnswer(ctx context.Context, attemptID string, slot, selectedOptionIdx int, answeredAt time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE attempts SET
		   answers = jsonb_set(answers, $2, $3::jsonb),
		   answer_timestamps = jsonb_set(answer_timestamps, $2, to_jsonb($4::timestamptz)),
		   updated_at = NOW()
		 WHERE id = $1 AND answers #> $2 = 'null'::jsonb`,
		attemptID, fmt.Sprintf("{%d}", slot), selectedOptionIdx, answeredAt,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// StampQuestionStartedAt records when a slot was first served, best-effort:
// losing the race to a concurrent duplicate-fetch is not an error, since
// only the earliest stamp matters for the 15-second expiry check.
func (r *AttemptRepository) StampQuestionStartedAt(ctx context.Context, attemptID string, slot int, startedAt time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE attempts SET question_started_at = jsonb_set(question_started_at, $2, to_jsonb($3::timestamptz)), updated_at = NOW()
		 WHERE id = $1 AND question_started_at #> $2 = 'null'::jsonb`,
		attemptID, fmt.Sprintf("{%d}", slot), startedAt,
	)
	return err
}

func (r *AttemptRepository) MarkCompleted(ctx context.Context, attemptID string, completedAt time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE attempts SET completed_at = $2, updated_at = NOW() WHERE id = $1 AND completed_at IS NULL`,
		attemptID, completedAt)
	return err
}

// ListForDate returns every attempt for a date, used by the Finalizer to
// recompute scores and rank winners inside its fenced transaction. It
// intentionally returns all attempts, not a pre-filtered eligible subset —
// the Finalizer re-evaluates eligibility itself rather than trusting a
// stored snapshot that may predate a late refund. db is the transaction
// the Finalizer opened for the whole clear-recompute-insert sequence, so
// this read observes the same snapshot the delete and re-insert commit
// together.
func (r *AttemptRepository) ListForDate(ctx context.Context, db Querier, date string) ([]model.Attempt, error) {
	rows, err := db.Query(ctx, `SELECT `+attemptColumns+` FROM attempts WHERE quiz_date = $1`, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (r *AttemptRepository) FinalizeScore(ctx context.Context, db Querier, attemptID string, score int, counted bool, finalizedAt time.Time, reasonCodes []string) error {
	encoded, err := json.Marshal(reasonCodes)
	if err != nil {
		return err
	}
	_, err = db.Exec(ctx,
		`UPDATE attempts SET score = $2, counted = $3, finalized_at = $4, reason_codes = $5, updated_at = NOW() WHERE id = $1`,
		attemptID, score, counted, finalizedAt, encoded)
	return err
}

// ClearFinalization resets score/counted/finalized_at for a date, used by
// the Finalizer when re-running after a crash mid-finalize: it deletes
// partial winners and must also un-finalize attempts before recomputing,
// all inside the same transaction so a second crash mid-clear cannot leave
// the day half-cleared.
func (r *AttemptRepository) ClearFinalization(ctx context.Context, db Querier, date string) error {
	_, err := db.Exec(ctx,
		`UPDATE attempts SET score = NULL, counted = NULL, finalized_at = NULL WHERE quiz_date = $1`, date)
	return err
}

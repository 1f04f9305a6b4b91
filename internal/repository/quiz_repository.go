package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/r0o773rm1n41/dme-backend/internal/model"
	"golang.org/x/sync/singleflight"
)

// ErrNotFound is returned by single-row lookups that find nothing.
var ErrNotFound = errors.New("not found")

// QuizRepository is the State Store's persistence for the Quiz aggregate.
// CASQuizState is the Lifecycle FSM's only write path onto this table: the
// WHERE clause scopes the update to the expected current state, so
// concurrent transition attempts for the same date are serialized by
// Postgres row-level locking rather than by application logic.
type QuizRepository struct {
	pool *pgxpool.Pool
	sf   singleflight.Group
}

func NewQuizRepository(pool *pgxpool.Pool) *QuizRepository {
	return &QuizRepository{pool: pool}
}

// GetByDate is the read every participant hits via GET /quiz/today and the
// public /quiz/status poll, so it sees the heaviest concurrent traffic of
// any State Store read — the whole cohort can land on it within the same
// second at quiz go-live. singleflight collapses concurrent callers for
// the same date onto one query instead of letting each open its own round
// trip to Postgres.
func (r *QuizRepository) GetByDate(ctx context.Context, date string) (*model.Quiz, error) {
	v, err, _ := r.sf.Do(date, func() (interface{}, error) {
		return r.loadByDate(ctx, date)
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.Quiz), nil
}

func (r *QuizRepository) loadByDate(ctx context.Context, date string) (*model.Quiz, error) {
	q := &model.Quiz{}
	var questionIDs []byte
	err := r.pool.QueryRow(ctx,
		`SELECT date, class_grade_tag, question_ids, state, locked_at, payment_closed_at,
		        live_at, ended_at, finalized_at, result_published_at, created_at, updated_at
		 FROM quizzes WHERE date = $1`, date,
	).Scan(&q.Date, &q.ClassGradeTag, &questionIDs, &q.State, &q.LockedAt, &q.PaymentClosedAt,
		&q.LiveAt, &q.EndedAt, &q.FinalizedAt, &q.ResultPublishedAt, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(questionIDs, &q.QuestionIDs); err != nil {
		return nil, fmt.Errorf("unmarshal question_ids: %w", err)
	}
	return q, nil
}

// Create inserts a new DRAFT quiz for a date with its fixed question list.
func (r *QuizRepository) Create(ctx context.Context, date, classGradeTag string, questionIDs []string) (*model.Quiz, error) {
	if len(questionIDs) != model.TotalSlots {
		return nil, fmt.Errorf("quiz must carry exactly %d questions, got %d", model.TotalSlots, len(questionIDs))
	}
	encoded, err := json.Marshal(questionIDs)
	if err != nil {
		return nil, err
	}

	q := &model.Quiz{Date: date, ClassGradeTag: classGradeTag, QuestionIDs: questionIDs, State: model.QuizDraft}
	err = r.pool.QueryRow(ctx,
		`INSERT INTO quizzes (date, class_grade_tag, question_ids, state)
		 VALUES ($1, $2, $3, $4)
		 RETURNING created_at, updated_at`,
		date, classGradeTag, encoded, model.QuizDraft,
	).Scan(&q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return q, nil
}

// timestampColumn returns the column name that records the instant of
// entering state `to`, per the FSM's one-write-sets-state-and-timestamp
// invariant.
func timestampColumn(to model.QuizState) (string, bool) {
	switch to {
	case model.QuizLocked:
		return "locked_at", true
	case model.QuizPaymentClosed:
		return "payment_closed_at", true
	case model.QuizLive:
		return "live_at", true
	case model.QuizEnded:
		return "ended_at", true
	case model.QuizFinalized:
		return "finalized_at", true
	case model.QuizResultPublished:
		return "result_published_at", true
	default:
		return "", false
	}
}

// CASQuizState implements fsm.Store: it sets state and the matching
// timestamp column in a single atomic write, scoped by the expected
// current state.
func (r *QuizRepository) CASQuizState(ctx context.Context, date string, from, to model.QuizState, at time.Time) (*model.Quiz, error) {
	col, ok := timestampColumn(to)
	if !ok {
		return nil, fmt.Errorf("no timestamp column for target state %s", to)
	}

	query := fmt.Sprintf(
		`UPDATE quizzes SET state = $1, %s = $2, updated_at = NOW()
		 WHERE date = $3 AND state = $4
		 RETURNING date`, col)

	var gotDate string
	err := r.pool.QueryRow(ctx, query, to, at, date, from).Scan(&gotDate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("quiz %s is not in state %s (concurrent transition or stale caller)", date, from)
		}
		return nil, err
	}
	return r.GetByDate(ctx, date)
}

// ListScheduledOnOrBefore returns quizzes dated on or before date in any
// state other than FINALIZED or RESULT_PUBLISHED. The Scheduler does not
// call it; its startup recovery is the first tick() on today's quiz.
func (r *QuizRepository) ListScheduledOnOrBefore(ctx context.Context, date string) ([]model.Quiz, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT date, class_grade_tag, question_ids, state, locked_at, payment_closed_at,
		        live_at, ended_at, finalized_at, result_published_at, created_at, updated_at
		 FROM quizzes WHERE date <= $1 AND state NOT IN ($2, $3)
		 ORDER BY date`, date, model.QuizResultPublished, model.QuizFinalized,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Quiz
	for rows.Next() {
		var q model.Quiz
		var questionIDs []byte
		if err := rows.Scan(&q.Date, &q.ClassGradeTag, &questionIDs, &q.State, &q.LockedAt, &q.PaymentClosedAt,
			&q.LiveAt, &q.EndedAt, &q.FinalizedAt, &q.ResultPublishedAt, &q.CreatedAt, &q.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(questionIDs, &q.QuestionIDs); err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

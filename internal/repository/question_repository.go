package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/r0o773rm1n41/dme-backend/internal/model"
)

// QuestionRepository is the State Store's persistence for the question
// bank. Questions are content, never tied to a date — a Quiz references
// fifty of them by id in its fixed question_ids list.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

func (r *QuestionRepository) Create(ctx context.Context, req model.AddQuestionRequest) (*model.Question, error) {
	q := &model.Question{Text: req.Text, Options: req.Options, CorrectIndex: req.CorrectIndex}
	err := r.pool.QueryRow(ctx,
		`INSERT INTO questions (text, option_0, option_1, option_2, option_3, correct_index)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at`,
		req.Text, req.Options[0], req.Options[1], req.Options[2], req.Options[3], req.CorrectIndex,
	).Scan(&q.ID, &q.CreatedAt)
	if err != nil {
		return nil, err
	}
	return q, nil
}

func (r *QuestionRepository) GetByID(ctx context.Context, id string) (*model.Question, error) {
	q := &model.Question{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, text, option_0, option_1, option_2, option_3, correct_index, created_at
		 FROM questions WHERE id = $1`, id,
	).Scan(&q.ID, &q.Text, &q.Options[0], &q.Options[1], &q.Options[2], &q.Options[3], &q.CorrectIndex, &q.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return q, nil
}

// GetByIDs returns the questions keyed by id; the map carries no order, so
// callers index it through a quiz's positional question_ids list.
func (r *QuestionRepository) GetByIDs(ctx context.Context, ids []string) (map[string]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, text, option_0, option_1, option_2, option_3, correct_index, created_at
		 FROM questions WHERE id = ANY($1)`, ids,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]model.Question, len(ids))
	for rows.Next() {
		var q model.Question
		if err := rows.Scan(&q.ID, &q.Text, &q.Options[0], &q.Options[1], &q.Options[2], &q.Options[3], &q.CorrectIndex, &q.CreatedAt); err != nil {
			return nil, err
		}
		out[q.ID] = q
	}
	return out, rows.Err()
}

// PickRandomPool returns n random question ids, used by cmd/seed to build a
// day's fixed fifty-question list.
func (r *QuestionRepository) PickRandomPool(ctx context.Context, n int) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM questions ORDER BY random() LIMIT $1`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

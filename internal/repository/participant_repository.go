package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/r0o773rm1n41/dme-backend/internal/model"
)

// ParticipantRepository is the State Store's persistence for paying
// participants, the quiz-domain analog of the teacher's student records.
type ParticipantRepository struct {
	pool *pgxpool.Pool
}

func NewParticipantRepository(pool *pgxpool.Pool) *ParticipantRepository {
	return &ParticipantRepository{pool: pool}
}

const participantColumns = `id, email, phone, password_hash, profile_complete, subscription_active, answer_streak, created_at, updated_at`

func (r *ParticipantRepository) GetByID(ctx context.Context, id int) (*model.Participant, error) {
	p := &model.Participant{}
	err := r.pool.QueryRow(ctx, `SELECT `+participantColumns+` FROM participants WHERE id = $1`, id).
		Scan(&p.ID, &p.Email, &p.Phone, &p.PasswordHash, &p.ProfileComplete, &p.SubscriptionActive, &p.AnswerStreak, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

func (r *ParticipantRepository) GetByEmail(ctx context.Context, email string) (*model.Participant, error) {
	p := &model.Participant{}
	err := r.pool.QueryRow(ctx, `SELECT `+participantColumns+` FROM participants WHERE email = $1`, email).
		Scan(&p.ID, &p.Email, &p.Phone, &p.PasswordHash, &p.ProfileComplete, &p.SubscriptionActive, &p.AnswerStreak, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

func (r *ParticipantRepository) Create(ctx context.Context, email, phone, passwordHash string) (*model.Participant, error) {
	p := &model.Participant{Email: email, Phone: phone, PasswordHash: passwordHash}
	err := r.pool.QueryRow(ctx,
		`INSERT INTO participants (email, phone, password_hash) VALUES ($1, $2, $3)
		 RETURNING id, profile_complete, subscription_active, answer_streak, created_at, updated_at`,
		email, phone, passwordHash,
	).Scan(&p.ID, &p.ProfileComplete, &p.SubscriptionActive, &p.AnswerStreak, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// IncrementStreak adds one to a participant's answer_streak, the field
// behind the free-entry-credit rule in internal/admission. Nothing in this
// repository calls it or ResetStreak, so answer_streak keeps the value the
// row was created or seeded with.
func (r *ParticipantRepository) IncrementStreak(ctx context.Context, userID int) error {
	_, err := r.pool.Exec(ctx, `UPDATE participants SET answer_streak = answer_streak + 1, updated_at = NOW() WHERE id = $1`, userID)
	return err
}

func (r *ParticipantRepository) ResetStreak(ctx context.Context, userID int) error {
	_, err := r.pool.Exec(ctx, `UPDATE participants SET answer_streak = 0, updated_at = NOW() WHERE id = $1`, userID)
	return err
}

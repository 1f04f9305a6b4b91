package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/r0o773rm1n41/dme-backend/internal/model"
)

// PaymentRepository is the State Store's persistence for payment capture
// and refund records. Webhook processing is idempotent at the Coordinator
// layer (event-id fencing) and again here: EventID carries a unique
// constraint so a retried webhook delivery can never double-insert.
type PaymentRepository struct {
	pool *pgxpool.Pool
}

func NewPaymentRepository(pool *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{pool: pool}
}

func (r *PaymentRepository) GetByUserAndDate(ctx context.Context, userID int, date string) (*model.Payment, error) {
	p := &model.Payment{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, user_id, quiz_date, status, type, amount_cents, external_ref, event_id,
		        captured_at, refunded_at, created_at, updated_at
		 FROM payments WHERE user_id = $1 AND quiz_date = $2`, userID, date,
	).Scan(&p.ID, &p.UserID, &p.QuizDate, &p.Status, &p.Type, &p.AmountCents, &p.ExternalRef, &p.EventID,
		&p.CapturedAt, &p.RefundedAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

// RecordCapture upserts a capture keyed by (user, date), storing its
// external event id with it.
// The caller decides SUCCESS vs. LATE by comparing capturedAt against the
// day's payment cutoff before calling this — spec.md's forward-only
// payment lifecycle only ever writes the status the caller determined, it
// is never recomputed here. The Answer Ingestor and Admission Service
// never call this directly — only the payment webhook handler does, after
// the Coordinator's WebhookFirstSeen fence has already claimed the event
// id.
func (r *PaymentRepository) RecordCapture(ctx context.Context, userID int, date string, status model.PaymentStatus, amountCents int, externalRef, eventID string, capturedAt time.Time) (*model.Payment, error) {
	p := &model.Payment{}
	err := r.pool.QueryRow(ctx,
		`INSERT INTO payments (id, user_id, quiz_date, status, type, amount_cents, external_ref, event_id, captured_at)
		 VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (user_id, quiz_date) DO UPDATE SET
		   status = EXCLUDED.status, amount_cents = EXCLUDED.amount_cents,
		   external_ref = EXCLUDED.external_ref, event_id = EXCLUDED.event_id,
		   captured_at = EXCLUDED.captured_at, updated_at = NOW()
		 RETURNING id, user_id, quiz_date, status, type, amount_cents, external_ref, event_id,
		           captured_at, refunded_at, created_at, updated_at`,
		userID, date, status, model.PaymentTypeNormal, amountCents, externalRef, eventID, capturedAt,
	).Scan(&p.ID, &p.UserID, &p.QuizDate, &p.Status, &p.Type, &p.AmountCents, &p.ExternalRef, &p.EventID,
		&p.CapturedAt, &p.RefundedAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// MarkRefunded flags a payment refunded. Per spec, a refund recorded after
// the attempt started voids eligibility even though the attempt is already
// in flight — the Eligibility Evaluator's RefundCheck path reads this
// field, not a cached boolean.
func (r *PaymentRepository) MarkRefunded(ctx context.Context, userID int, date string, refundedAt time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE payments SET status = $3, refunded_at = $4, updated_at = NOW() WHERE user_id = $1 AND quiz_date = $2`,
		userID, date, model.PaymentRefunded, refundedAt)
	return err
}

// GrantFreeCredit records a zero-amount FREE_CREDIT payment, satisfying the
// payment gate without a capture event.
func (r *PaymentRepository) GrantFreeCredit(ctx context.Context, userID int, date string) (*model.Payment, error) {
	p := &model.Payment{}
	err := r.pool.QueryRow(ctx,
		`INSERT INTO payments (id, user_id, quiz_date, status, type, amount_cents, captured_at)
		 VALUES (gen_random_uuid(), $1, $2, $3, $4, 0, NOW())
		 ON CONFLICT (user_id, quiz_date) DO NOTHING
		 RETURNING id, user_id, quiz_date, status, type, amount_cents, external_ref, event_id,
		           captured_at, refunded_at, created_at, updated_at`,
		userID, date, model.PaymentSuccess, model.PaymentTypeFreeCredit,
	).Scan(&p.ID, &p.UserID, &p.QuizDate, &p.Status, &p.Type, &p.AmountCents, &p.ExternalRef, &p.EventID,
		&p.CapturedAt, &p.RefundedAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return r.GetByUserAndDate(ctx, userID, date)
		}
		return nil, err
	}
	return p, nil
}

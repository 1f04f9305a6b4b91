package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/r0o773rm1n41/dme-backend/internal/model"
)

// AuditRepository persists AuditRecord rows (the FSM's transition log and
// any admin-initiated state change) and AntiCheatEvent/FencingFailure rows
// (the Observability Hooks' derived-alert inputs).
type AuditRepository struct {
	pool *pgxpool.Pool
}

func NewAuditRepository(pool *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{pool: pool}
}

func (r *AuditRepository) RecordTransition(ctx context.Context, rec model.AuditRecord) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO audit_records (id, actor, actor_id, action, target_type, target_id, before, after, at)
		 VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.Actor, rec.ActorID, rec.Action, rec.TargetType, rec.TargetID, rec.Before, rec.After, rec.At)
	return err
}

func (r *AuditRepository) ListForTarget(ctx context.Context, targetType, targetID string) ([]model.AuditRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, actor, actor_id, action, target_type, target_id, before, after, at
		 FROM audit_records WHERE target_type = $1 AND target_id = $2 ORDER BY at DESC`, targetType, targetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.AuditRecord
	for rows.Next() {
		var rec model.AuditRecord
		if err := rows.Scan(&rec.ID, &rec.Actor, &rec.ActorID, &rec.Action, &rec.TargetType, &rec.TargetID,
			&rec.Before, &rec.After, &rec.At); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// RecordAntiCheatEvent persists a single anti-cheat signal raised by the
// Answer Ingestor or Admission Service.
func (r *AuditRepository) RecordAntiCheatEvent(ctx context.Context, ev model.AntiCheatEvent) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO anti_cheat_events (id, user_id, quiz_date, type, detail, at)
		 VALUES (gen_random_uuid(), $1, $2, $3, $4, $5)`,
		ev.UserID, ev.QuizDate, ev.Type, ev.Detail, ev.At)
	return err
}

// CountAntiCheatEventsByUser supports the Observability Hooks' repeat-
// device-mismatch derived alert.
func (r *AuditRepository) CountAntiCheatEventsByUser(ctx context.Context, userID int, date string, evType model.AntiCheatEventType) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM anti_cheat_events WHERE user_id = $1 AND quiz_date = $2 AND type = $3`,
		userID, date, evType).Scan(&count)
	return count, err
}

func (r *AuditRepository) RecordFencingFailure(ctx context.Context, f model.FencingFailure) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO fencing_failures (id, operation, quiz_date, at) VALUES (gen_random_uuid(), $1, $2, $3)`,
		f.Operation, f.QuizDate, f.At)
	return err
}

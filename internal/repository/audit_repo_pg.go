package repository

import (
	"context"
	"time"

	"github.com/Domenick1991/shortlet/internal/domain"
)

type PGAuditRepository struct {
	db DB
}

func NewAuditRepository(db DB) AuditRepository {
	return &PGAuditRepository{db: db}
}

func (r *PGAuditRepository) Insert(ctx context.Context, entry *domain.AuditEntry) error {
	_, err := r.db.Exec(ctx, `INSERT INTO audit_log (id, action, entity_type, entity_id, actor_id, before, after, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.ID, entry.Action, entry.EntityType, entry.EntityID, entry.ActorID,
		jsonArg(entry.Before), jsonArg(entry.After), entry.CreatedAt)
	return classify(err)
}

func (r *PGAuditRepository) ListByEntity(ctx context.Context, entityType, entityID string) ([]domain.AuditEntry, error) {
	rows, err := r.db.Query(ctx, `SELECT id, action, entity_type, entity_id, actor_id, before, after, created_at
		FROM audit_log WHERE entity_type=$1 AND entity_id=$2 ORDER BY created_at`, entityType, entityID)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []domain.AuditEntry
	for rows.Next() {
		var (
			e             domain.AuditEntry
			before, after []byte
		)
		if err := rows.Scan(&e.ID, &e.Action, &e.EntityType, &e.EntityID, &e.ActorID, &before, &after, &e.CreatedAt); err != nil {
			return nil, classify(err)
		}
		e.Before, e.After = before, after
		out = append(out, e)
	}
	return out, classify(rows.Err())
}

// jsonArg sends empty payloads as NULL instead of an invalid jsonb literal.
func jsonArg(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

var _ AuditRepository = (*PGAuditRepository)(nil)

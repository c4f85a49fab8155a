package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Domenick1991/shortlet/internal/domain"
	"github.com/Domenick1991/shortlet/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Recorder writes before/after snapshots of changed entities to the audit log.
type Recorder struct {
	repo repository.AuditRepository
	log  *zap.Logger
	now  func() time.Time
}

func NewRecorder(repo repository.AuditRepository, log *zap.Logger) *Recorder {
	return &Recorder{repo: repo, log: log, now: time.Now}
}

// Record never fails the calling operation; a lost entry is logged.
func (r *Recorder) Record(ctx context.Context, actorID, action, entityType, entityID string, before, after any) {
	if r == nil {
		return
	}
	entry := &domain.AuditEntry{
		ID:         uuid.NewString(),
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		ActorID:    actorID,
		Before:     marshal(before),
		After:      marshal(after),
		CreatedAt:  r.now(),
	}
	if err := r.repo.Insert(ctx, entry); err != nil {
		r.log.Error("audit entry lost",
			zap.String("action", action), zap.String("entity_id", entityID), zap.Error(err))
	}
}

func marshal(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}

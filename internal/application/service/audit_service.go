package service

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/taskops/workflow/internal/application/port"
	"github.com/taskops/workflow/internal/domain/entity"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Auditor is the write-side contract the engine services depend on. Record is
// fire-and-forget: a sink failure must never roll back or fail the transition
// that produced the entry, so the method carries no error back.
type Auditor interface {
	Record(ctx context.Context, action, entityKind, entityID, actorID, before, after string)
}

// AuditService manages the append-only audit log
type AuditService interface {
	Auditor

	// ListByEntity returns the audit trail for one entity in append order
	ListByEntity(ctx context.Context, entityKind, entityID string) ([]*entity.AuditEntry, error)
}

type auditServiceImpl struct {
	auditRepo port.AuditRepository
	logger    Logger
}

// NewAuditService creates a new AuditService
func NewAuditService(auditRepo port.AuditRepository, logger Logger) AuditService {
	return &auditServiceImpl{
		auditRepo: auditRepo,
		logger:    logger,
	}
}

// Record appends one audit entry. A failure is surfaced to operational
// logging for later reconciliation and otherwise swallowed.
func (s *auditServiceImpl) Record(ctx context.Context, action, entityKind, entityID, actorID, before, after string) {
	e := &entity.AuditEntry{
		ID:         ulid.Make().String(),
		Action:     action,
		EntityKind: entityKind,
		EntityID:   entityID,
		ActorID:    actorID,
		Before:     before,
		After:      after,
		CreatedAt:  time.Now(),
	}

	if err := s.auditRepo.Create(ctx, e); err != nil {
		s.logger.Error("Audit sink unavailable, entry dropped",
			"error", err,
			"action", action,
			"entity_kind", entityKind,
			"entity_id", entityID,
			"actor_id", actorID)
	}
}

// ListByEntity returns the audit trail for one entity.
func (s *auditServiceImpl) ListByEntity(ctx context.Context, entityKind, entityID string) ([]*entity.AuditEntry, error) {
	entries, err := s.auditRepo.ListByEntity(ctx, entityKind, entityID)
	if err != nil {
		s.logger.Error("Failed to list audit entries",
			"error", err,
			"entity_kind", entityKind,
			"entity_id", entityID)
		return nil, err
	}
	return entries, nil
}

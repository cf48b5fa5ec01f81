package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/taskops/workflow/internal/application/port"
	"github.com/taskops/workflow/internal/domain/entity"
	"github.com/taskops/workflow/internal/infrastructure/persistence/sqlite"
)

// AuditRepository implements port.AuditRepository on SQLite. The table is
// append-only; there is no update or delete path.
type AuditRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *sqlite.DB, logger *zap.Logger) port.AuditRepository {
	return &AuditRepository{
		db:     db,
		logger: logger,
	}
}

// Create appends one audit entry
func (r *AuditRepository) Create(ctx context.Context, e *entity.AuditEntry) error {
	query := `
		INSERT INTO audit_log (id, action, entity_kind, entity_id, actor_id, old_value, new_value, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.Executor(ctx).ExecContext(ctx, query,
		e.ID,
		e.Action,
		e.EntityKind,
		e.EntityID,
		e.ActorID,
		nullString(e.Before),
		nullString(e.After),
		e.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create audit entry",
			zap.String("action", e.Action),
			zap.String("entity_id", e.EntityID),
			zap.Error(err))
		return fmt.Errorf("create audit entry: %w", err)
	}
	return nil
}

// ListByEntity retrieves all entries for one entity in append order
func (r *AuditRepository) ListByEntity(ctx context.Context, entityKind, entityID string) ([]*entity.AuditEntry, error) {
	query := `
		SELECT id, action, entity_kind, entity_id, actor_id, old_value, new_value, created_at
		FROM audit_log
		WHERE entity_kind = ? AND entity_id = ?
		ORDER BY created_at, id
	`

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, entityKind, entityID)
	if err != nil {
		r.logger.Error("Failed to list audit entries",
			zap.String("entity_kind", entityKind),
			zap.String("entity_id", entityID),
			zap.Error(err))
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []*entity.AuditEntry
	for rows.Next() {
		e := &entity.AuditEntry{}
		var before, after sql.NullString
		if err := rows.Scan(&e.ID, &e.Action, &e.EntityKind, &e.EntityID, &e.ActorID, &before, &after, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.Before = before.String
		e.After = after.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

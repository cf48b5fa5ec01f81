package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/taskops/workflow/internal/application/port"
	"github.com/taskops/workflow/internal/domain/entity"
	"github.com/taskops/workflow/internal/infrastructure/persistence/sqlite"
)

// NotificationRepository implements port.NotificationRepository on SQLite
type NotificationRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewNotificationRepository creates a new notification repository
func NewNotificationRepository(db *sqlite.DB, logger *zap.Logger) port.NotificationRepository {
	return &NotificationRepository{
		db:     db,
		logger: logger,
	}
}

const notificationColumns = `
	id, actor_id, task_id, kind, title, body, action, metadata, read,
	created_at, updated_at`

// Create inserts a new feed record
func (r *NotificationRepository) Create(ctx context.Context, n *entity.Notification) error {
	query := `
		INSERT INTO notifications (` + notificationColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.Executor(ctx).ExecContext(ctx, query,
		n.ID,
		n.ActorID,
		nullString(n.TaskID),
		n.Kind,
		n.Title,
		nullString(n.Body),
		nullString(n.Action),
		nullString(n.Metadata),
		n.Read,
		n.CreatedAt,
		n.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create notification",
			zap.String("notification_id", n.ID),
			zap.String("actor_id", n.ActorID),
			zap.Error(err))
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

// GetByID retrieves a notification by ID, nil when absent
func (r *NotificationRepository) GetByID(ctx context.Context, id string) (*entity.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE id = ?`

	n, err := r.scanNotification(r.db.Executor(ctx).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get notification",
			zap.String("notification_id", id),
			zap.Error(err))
		return nil, fmt.Errorf("get notification: %w", err)
	}
	return n, nil
}

// GetUnread returns the unread notification matching the duplicate
// suppression key (actor, task, action), nil when none exists
func (r *NotificationRepository) GetUnread(ctx context.Context, actorID, taskID, action string) (*entity.Notification, error) {
	query := `
		SELECT ` + notificationColumns + `
		FROM notifications
		WHERE actor_id = ? AND task_id = ? AND action = ? AND read = FALSE
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`

	n, err := r.scanNotification(r.db.Executor(ctx).QueryRowContext(ctx, query, actorID, taskID, action))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get unread notification",
			zap.String("actor_id", actorID),
			zap.String("task_id", taskID),
			zap.String("action", action),
			zap.Error(err))
		return nil, fmt.Errorf("get unread notification: %w", err)
	}
	return n, nil
}

// ListByActor retrieves the actor's feed newest first
func (r *NotificationRepository) ListByActor(ctx context.Context, actorID string, limit, offset int) ([]*entity.Notification, error) {
	query := `
		SELECT ` + notificationColumns + `
		FROM notifications
		WHERE actor_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, actorID, limit, offset)
	if err != nil {
		r.logger.Error("Failed to list notifications",
			zap.String("actor_id", actorID),
			zap.Error(err))
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var notifications []*entity.Notification
	for rows.Next() {
		n, err := r.scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

// Update rewrites the mutable fields of a feed record
func (r *NotificationRepository) Update(ctx context.Context, n *entity.Notification) error {
	query := `
		UPDATE notifications SET
			title = ?, body = ?, action = ?, metadata = ?, read = ?, updated_at = ?
		WHERE id = ?
	`

	_, err := r.db.Executor(ctx).ExecContext(ctx, query,
		n.Title,
		nullString(n.Body),
		nullString(n.Action),
		nullString(n.Metadata),
		n.Read,
		n.UpdatedAt,
		n.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update notification",
			zap.String("notification_id", n.ID),
			zap.Error(err))
		return fmt.Errorf("update notification: %w", err)
	}
	return nil
}

// MarkRead marks one notification read
func (r *NotificationRepository) MarkRead(ctx context.Context, id string) error {
	query := `UPDATE notifications SET read = TRUE, updated_at = ? WHERE id = ?`

	_, err := r.db.Executor(ctx).ExecContext(ctx, query, time.Now(), id)
	if err != nil {
		r.logger.Error("Failed to mark notification read",
			zap.String("notification_id", id),
			zap.Error(err))
		return fmt.Errorf("mark notification read: %w", err)
	}
	return nil
}

// DeleteByTaskID removes all feed records of a task (cascade delete)
func (r *NotificationRepository) DeleteByTaskID(ctx context.Context, taskID string) error {
	_, err := r.db.Executor(ctx).ExecContext(ctx, `DELETE FROM notifications WHERE task_id = ?`, taskID)
	if err != nil {
		r.logger.Error("Failed to delete notifications by task",
			zap.String("task_id", taskID),
			zap.Error(err))
		return fmt.Errorf("delete notifications: %w", err)
	}
	return nil
}

func (r *NotificationRepository) scanNotification(row rowScanner) (*entity.Notification, error) {
	n := &entity.Notification{}
	var taskID, body, action, metadata sql.NullString

	err := row.Scan(
		&n.ID,
		&n.ActorID,
		&taskID,
		&n.Kind,
		&n.Title,
		&body,
		&action,
		&metadata,
		&n.Read,
		&n.CreatedAt,
		&n.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	n.TaskID = taskID.String
	n.Body = body.String
	n.Action = action.String
	n.Metadata = metadata.String
	return n, nil
}

package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/taskops/workflow/internal/application/port"
	"github.com/taskops/workflow/internal/domain/entity"
	"github.com/taskops/workflow/internal/infrastructure/persistence/sqlite"
)

// TaskRepository implements port.TaskRepository on SQLite. The pool request
// and assignee sets are stored as JSON arrays in their own columns; they are
// small and always read together with the row.
type TaskRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewTaskRepository creates a new task repository
func NewTaskRepository(db *sqlite.DB, logger *zap.Logger) port.TaskRepository {
	return &TaskRepository{
		db:     db,
		logger: logger,
	}
}

const taskColumns = `
	id, title, description, created_by,
	status, status_updated_by, status_updated_at,
	approval_status, approval_requested_by,
	approved_by, approved_at, rejected_by, rejected_at, approval_rejection_reason,
	is_in_pool, pool_requests, assigned_users,
	created_at, updated_at`

// Create inserts a new task row
func (r *TaskRepository) Create(ctx context.Context, task *entity.Task) error {
	query := `
		INSERT INTO tasks (` + taskColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	poolRequests, err := encodeStrings(task.PoolRequests)
	if err != nil {
		return fmt.Errorf("encode pool requests: %w", err)
	}
	assignedUsers, err := encodeStrings(task.AssignedUsers)
	if err != nil {
		return fmt.Errorf("encode assigned users: %w", err)
	}

	_, err = r.db.Executor(ctx).ExecContext(ctx, query,
		task.ID,
		task.Title,
		nullString(task.Description),
		task.CreatedBy,
		task.Status,
		nullString(task.StatusUpdatedBy),
		nullTime(task.StatusUpdatedAt),
		task.ApprovalStatus,
		nullString(task.ApprovalRequestedBy),
		nullString(task.ApprovedBy),
		nullTime(task.ApprovedAt),
		nullString(task.RejectedBy),
		nullTime(task.RejectedAt),
		nullString(task.ApprovalRejectionReason),
		task.IsInPool,
		poolRequests,
		assignedUsers,
		task.CreatedAt,
		task.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create task",
			zap.String("task_id", task.ID),
			zap.Error(err))
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

// GetByID retrieves a task by ID, nil when absent
func (r *TaskRepository) GetByID(ctx context.Context, id string) (*entity.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = ?`

	task, err := r.scanTask(r.db.Executor(ctx).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get task",
			zap.String("task_id", id),
			zap.Error(err))
		return nil, fmt.Errorf("get task: %w", err)
	}
	return task, nil
}

// Update rewrites the full task row
func (r *TaskRepository) Update(ctx context.Context, task *entity.Task) error {
	query := `
		UPDATE tasks SET
			title = ?, description = ?,
			status = ?, status_updated_by = ?, status_updated_at = ?,
			approval_status = ?, approval_requested_by = ?,
			approved_by = ?, approved_at = ?, rejected_by = ?, rejected_at = ?,
			approval_rejection_reason = ?,
			is_in_pool = ?, pool_requests = ?, assigned_users = ?,
			updated_at = ?
		WHERE id = ?
	`

	poolRequests, err := encodeStrings(task.PoolRequests)
	if err != nil {
		return fmt.Errorf("encode pool requests: %w", err)
	}
	assignedUsers, err := encodeStrings(task.AssignedUsers)
	if err != nil {
		return fmt.Errorf("encode assigned users: %w", err)
	}

	_, err = r.db.Executor(ctx).ExecContext(ctx, query,
		task.Title,
		nullString(task.Description),
		task.Status,
		nullString(task.StatusUpdatedBy),
		nullTime(task.StatusUpdatedAt),
		task.ApprovalStatus,
		nullString(task.ApprovalRequestedBy),
		nullString(task.ApprovedBy),
		nullTime(task.ApprovedAt),
		nullString(task.RejectedBy),
		nullTime(task.RejectedAt),
		nullString(task.ApprovalRejectionReason),
		task.IsInPool,
		poolRequests,
		assignedUsers,
		task.UpdatedAt,
		task.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update task",
			zap.String("task_id", task.ID),
			zap.Error(err))
		return fmt.Errorf("update task: %w", err)
	}
	return nil
}

// Delete removes the task row. Dependent rows go through the cascade in the
// service layer; only the audit trail of a deleted task remains queryable.
func (r *TaskRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.Executor(ctx).ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		r.logger.Error("Failed to delete task",
			zap.String("task_id", id),
			zap.Error(err))
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}

// DeleteStatusHistoryByTaskID removes the task's status history rows
func (r *TaskRepository) DeleteStatusHistoryByTaskID(ctx context.Context, taskID string) error {
	_, err := r.db.Executor(ctx).ExecContext(ctx, `DELETE FROM task_status_history WHERE task_id = ?`, taskID)
	if err != nil {
		r.logger.Error("Failed to delete status history",
			zap.String("task_id", taskID),
			zap.Error(err))
		return fmt.Errorf("delete status history: %w", err)
	}
	return nil
}

// List retrieves tasks newest first
func (r *TaskRepository) List(ctx context.Context, limit, offset int) ([]*entity.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks ORDER BY created_at DESC LIMIT ? OFFSET ?`

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, limit, offset)
	if err != nil {
		r.logger.Error("Failed to list tasks", zap.Error(err))
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*entity.Task
	for rows.Next() {
		task, err := r.scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// AppendStatusHistory appends one status history entry
func (r *TaskRepository) AppendStatusHistory(ctx context.Context, change *entity.StatusChange) error {
	query := `
		INSERT INTO task_status_history (id, task_id, status, actor, timestamp)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := r.db.Executor(ctx).ExecContext(ctx, query,
		change.ID, change.TaskID, change.Status, change.Actor, change.Timestamp)
	if err != nil {
		r.logger.Error("Failed to append status history",
			zap.String("task_id", change.TaskID),
			zap.Error(err))
		return fmt.Errorf("append status history: %w", err)
	}
	return nil
}

// GetStatusHistory returns the task's status history in append order
func (r *TaskRepository) GetStatusHistory(ctx context.Context, taskID string) ([]*entity.StatusChange, error) {
	query := `
		SELECT id, task_id, status, actor, timestamp
		FROM task_status_history
		WHERE task_id = ?
		ORDER BY timestamp, id
	`

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, taskID)
	if err != nil {
		r.logger.Error("Failed to get status history",
			zap.String("task_id", taskID),
			zap.Error(err))
		return nil, fmt.Errorf("get status history: %w", err)
	}
	defer rows.Close()

	var history []*entity.StatusChange
	for rows.Next() {
		change := &entity.StatusChange{}
		if err := rows.Scan(&change.ID, &change.TaskID, &change.Status, &change.Actor, &change.Timestamp); err != nil {
			return nil, fmt.Errorf("scan status change: %w", err)
		}
		history = append(history, change)
	}
	return history, rows.Err()
}

// rowScanner covers *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *TaskRepository) scanTask(row rowScanner) (*entity.Task, error) {
	task := &entity.Task{}
	var description, statusUpdatedBy sql.NullString
	var approvalRequestedBy, approvedBy, rejectedBy, rejectionReason sql.NullString
	var statusUpdatedAt, approvedAt, rejectedAt sql.NullTime
	var poolRequests, assignedUsers sql.NullString

	err := row.Scan(
		&task.ID,
		&task.Title,
		&description,
		&task.CreatedBy,
		&task.Status,
		&statusUpdatedBy,
		&statusUpdatedAt,
		&task.ApprovalStatus,
		&approvalRequestedBy,
		&approvedBy,
		&approvedAt,
		&rejectedBy,
		&rejectedAt,
		&rejectionReason,
		&task.IsInPool,
		&poolRequests,
		&assignedUsers,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	task.Description = description.String
	task.StatusUpdatedBy = statusUpdatedBy.String
	task.ApprovalRequestedBy = approvalRequestedBy.String
	task.ApprovedBy = approvedBy.String
	task.RejectedBy = rejectedBy.String
	task.ApprovalRejectionReason = rejectionReason.String
	task.StatusUpdatedAt = timePtr(statusUpdatedAt)
	task.ApprovedAt = timePtr(approvedAt)
	task.RejectedAt = timePtr(rejectedAt)

	if task.PoolRequests, err = decodeStrings(poolRequests.String); err != nil {
		return nil, fmt.Errorf("decode pool requests: %w", err)
	}
	if task.AssignedUsers, err = decodeStrings(assignedUsers.String); err != nil {
		return nil, fmt.Errorf("decode assigned users: %w", err)
	}
	return task, nil
}

// encodeStrings serializes a string set to its JSON column form; an empty set
// stores NULL
func encodeStrings(values []string) (sql.NullString, error) {
	if len(values) == 0 {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(values)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func decodeStrings(raw string) ([]string, error) {
	if raw == "" {
		return nil, nil
	}
	var values []string
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil, err
	}
	return values, nil
}

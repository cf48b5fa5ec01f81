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

// AssignmentRepository implements port.AssignmentRepository on SQLite
type AssignmentRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewAssignmentRepository creates a new assignment repository
func NewAssignmentRepository(db *sqlite.DB, logger *zap.Logger) port.AssignmentRepository {
	return &AssignmentRepository{
		db:     db,
		logger: logger,
	}
}

const assignmentColumns = `
	id, task_id, actor_id, assigned_by,
	status, accepted_at, rejection_reason,
	rejection_approved_by, rejection_approved_at,
	rejection_rejected_by, rejection_rejected_at, rejection_rejection_reason,
	created_at, updated_at`

// Create inserts a new assignment row
func (r *AssignmentRepository) Create(ctx context.Context, assignment *entity.Assignment) error {
	query := `
		INSERT INTO assignments (` + assignmentColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.Executor(ctx).ExecContext(ctx, query,
		assignment.ID,
		assignment.TaskID,
		assignment.ActorID,
		assignment.AssignedBy,
		assignment.Status,
		nullTime(assignment.AcceptedAt),
		nullString(assignment.RejectionReason),
		nullString(assignment.RejectionApprovedBy),
		nullTime(assignment.RejectionApprovedAt),
		nullString(assignment.RejectionRejectedBy),
		nullTime(assignment.RejectionRejectedAt),
		nullString(assignment.RejectionRejectionReason),
		assignment.CreatedAt,
		assignment.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create assignment",
			zap.String("assignment_id", assignment.ID),
			zap.String("task_id", assignment.TaskID),
			zap.Error(err))
		return fmt.Errorf("create assignment: %w", err)
	}
	return nil
}

// GetByID retrieves an assignment by ID, nil when absent
func (r *AssignmentRepository) GetByID(ctx context.Context, id string) (*entity.Assignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM assignments WHERE id = ?`

	assignment, err := r.scanAssignment(r.db.Executor(ctx).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get assignment",
			zap.String("assignment_id", id),
			zap.Error(err))
		return nil, fmt.Errorf("get assignment: %w", err)
	}
	return assignment, nil
}

// GetByTaskID retrieves all assignments for a task in creation order
func (r *AssignmentRepository) GetByTaskID(ctx context.Context, taskID string) ([]*entity.Assignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM assignments WHERE task_id = ? ORDER BY created_at, id`

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, taskID)
	if err != nil {
		r.logger.Error("Failed to get assignments by task",
			zap.String("task_id", taskID),
			zap.Error(err))
		return nil, fmt.Errorf("get assignments: %w", err)
	}
	defer rows.Close()

	var assignments []*entity.Assignment
	for rows.Next() {
		assignment, err := r.scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		assignments = append(assignments, assignment)
	}
	return assignments, rows.Err()
}

// GetByTaskAndActor retrieves the actor's latest assignment on the task, nil
// when none exists
func (r *AssignmentRepository) GetByTaskAndActor(ctx context.Context, taskID, actorID string) (*entity.Assignment, error) {
	query := `
		SELECT ` + assignmentColumns + `
		FROM assignments
		WHERE task_id = ? AND actor_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`

	assignment, err := r.scanAssignment(r.db.Executor(ctx).QueryRowContext(ctx, query, taskID, actorID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get assignment by task and actor",
			zap.String("task_id", taskID),
			zap.String("actor_id", actorID),
			zap.Error(err))
		return nil, fmt.Errorf("get assignment: %w", err)
	}
	return assignment, nil
}

// Update rewrites the full assignment row
func (r *AssignmentRepository) Update(ctx context.Context, assignment *entity.Assignment) error {
	query := `
		UPDATE assignments SET
			status = ?, accepted_at = ?, rejection_reason = ?,
			rejection_approved_by = ?, rejection_approved_at = ?,
			rejection_rejected_by = ?, rejection_rejected_at = ?,
			rejection_rejection_reason = ?,
			updated_at = ?
		WHERE id = ?
	`

	_, err := r.db.Executor(ctx).ExecContext(ctx, query,
		assignment.Status,
		nullTime(assignment.AcceptedAt),
		nullString(assignment.RejectionReason),
		nullString(assignment.RejectionApprovedBy),
		nullTime(assignment.RejectionApprovedAt),
		nullString(assignment.RejectionRejectedBy),
		nullTime(assignment.RejectionRejectedAt),
		nullString(assignment.RejectionRejectionReason),
		assignment.UpdatedAt,
		assignment.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update assignment",
			zap.String("assignment_id", assignment.ID),
			zap.Error(err))
		return fmt.Errorf("update assignment: %w", err)
	}
	return nil
}

// Delete removes the assignment row
func (r *AssignmentRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.Executor(ctx).ExecContext(ctx, `DELETE FROM assignments WHERE id = ?`, id)
	if err != nil {
		r.logger.Error("Failed to delete assignment",
			zap.String("assignment_id", id),
			zap.Error(err))
		return fmt.Errorf("delete assignment: %w", err)
	}
	return nil
}

// DeleteByTaskID removes all assignments of a task (cascade delete)
func (r *AssignmentRepository) DeleteByTaskID(ctx context.Context, taskID string) error {
	_, err := r.db.Executor(ctx).ExecContext(ctx, `DELETE FROM assignments WHERE task_id = ?`, taskID)
	if err != nil {
		r.logger.Error("Failed to delete assignments by task",
			zap.String("task_id", taskID),
			zap.Error(err))
		return fmt.Errorf("delete assignments: %w", err)
	}
	return nil
}

func (r *AssignmentRepository) scanAssignment(row rowScanner) (*entity.Assignment, error) {
	assignment := &entity.Assignment{}
	var rejectionReason, rejApprovedBy, rejRejectedBy, rejRejReason sql.NullString
	var acceptedAt, rejApprovedAt, rejRejectedAt sql.NullTime

	err := row.Scan(
		&assignment.ID,
		&assignment.TaskID,
		&assignment.ActorID,
		&assignment.AssignedBy,
		&assignment.Status,
		&acceptedAt,
		&rejectionReason,
		&rejApprovedBy,
		&rejApprovedAt,
		&rejRejectedBy,
		&rejRejectedAt,
		&rejRejReason,
		&assignment.CreatedAt,
		&assignment.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	assignment.AcceptedAt = timePtr(acceptedAt)
	assignment.RejectionReason = rejectionReason.String
	assignment.RejectionApprovedBy = rejApprovedBy.String
	assignment.RejectionApprovedAt = timePtr(rejApprovedAt)
	assignment.RejectionRejectedBy = rejRejectedBy.String
	assignment.RejectionRejectedAt = timePtr(rejRejectedAt)
	assignment.RejectionRejectionReason = rejRejReason.String
	return assignment, nil
}

// nullString maps "" to NULL
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullTime maps nil to NULL
func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

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

// ActorRepository implements port.ActorRepository on SQLite. The directory is
// read-mostly; rows are seeded out of band.
type ActorRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewActorRepository creates a new actor repository
func NewActorRepository(db *sqlite.DB, logger *zap.Logger) port.ActorRepository {
	return &ActorRepository{
		db:     db,
		logger: logger,
	}
}

const actorColumns = `id, name, email, role, department, created_at`

// GetByID retrieves an actor by ID, nil when absent
func (r *ActorRepository) GetByID(ctx context.Context, id string) (*entity.Actor, error) {
	query := `SELECT ` + actorColumns + ` FROM actors WHERE id = ?`

	actor, err := r.scanActor(r.db.Executor(ctx).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get actor",
			zap.String("actor_id", id),
			zap.Error(err))
		return nil, fmt.Errorf("get actor: %w", err)
	}
	return actor, nil
}

// List retrieves all actors
func (r *ActorRepository) List(ctx context.Context) ([]*entity.Actor, error) {
	query := `SELECT ` + actorColumns + ` FROM actors ORDER BY name, id`

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query)
	if err != nil {
		r.logger.Error("Failed to list actors", zap.Error(err))
		return nil, fmt.Errorf("list actors: %w", err)
	}
	defer rows.Close()

	return r.scanActors(rows)
}

// ListByRoleAndDepartment retrieves actors holding the role in the department
func (r *ActorRepository) ListByRoleAndDepartment(ctx context.Context, role, department string) ([]*entity.Actor, error) {
	query := `SELECT ` + actorColumns + ` FROM actors WHERE role = ? AND department = ? ORDER BY name, id`

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, role, department)
	if err != nil {
		r.logger.Error("Failed to list actors by role and department",
			zap.String("role", role),
			zap.String("department", department),
			zap.Error(err))
		return nil, fmt.Errorf("list actors: %w", err)
	}
	defer rows.Close()

	return r.scanActors(rows)
}

func (r *ActorRepository) scanActors(rows *sql.Rows) ([]*entity.Actor, error) {
	var actors []*entity.Actor
	for rows.Next() {
		actor, err := r.scanActor(rows)
		if err != nil {
			return nil, fmt.Errorf("scan actor: %w", err)
		}
		actors = append(actors, actor)
	}
	return actors, rows.Err()
}

func (r *ActorRepository) scanActor(row rowScanner) (*entity.Actor, error) {
	actor := &entity.Actor{}
	var email, department sql.NullString

	err := row.Scan(&actor.ID, &actor.Name, &email, &actor.Role, &department, &actor.CreatedAt)
	if err != nil {
		return nil, err
	}

	actor.Email = email.String
	actor.Department = department.String
	return actor, nil
}

// Package container wires the application together: database, repositories,
// dispatcher, services, and the email mirror, with ordered initialization and
// reverse-order teardown.
package container

import (
	"database/sql"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/taskops/workflow/internal/application/dispatcher"
	"github.com/taskops/workflow/internal/application/port"
	"github.com/taskops/workflow/internal/application/service"
	"github.com/taskops/workflow/internal/config"
	"github.com/taskops/workflow/internal/infrastructure/email"
	"github.com/taskops/workflow/internal/infrastructure/permission"
	"github.com/taskops/workflow/internal/infrastructure/persistence/repository"
	"github.com/taskops/workflow/internal/infrastructure/persistence/sqlite"
	"github.com/taskops/workflow/pkg/database"
	"github.com/taskops/workflow/pkg/utils"
)

// Repositories groups the persistence adapters
type Repositories struct {
	Task         port.TaskRepository
	Assignment   port.AssignmentRepository
	Notification port.NotificationRepository
	Audit        port.AuditRepository
	Actor        port.ActorRepository
}

// Services groups the application services
type Services struct {
	Task         service.TaskService
	Assignment   service.AssignmentService
	Approval     service.ApprovalService
	Pool         service.PoolService
	Notification service.NotificationService
	Audit        service.AuditService
}

// Container holds every wired component
type Container struct {
	Config *config.Config
	Logger *zap.Logger

	SQLDB        *sql.DB
	DB           *sqlite.DB
	Repositories Repositories

	Dispatcher dispatcher.Dispatcher
	Services   Services

	closed atomic.Bool
}

// New builds the container: opens the database, runs migrations, and wires
// repositories, dispatcher, and services.
func New(cfg *config.Config, logger *zap.Logger) (*Container, error) {
	sqlDB, err := database.Open(database.Config{
		Path:            cfg.Database.Path,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.NewMigrator(sqlDB, logger).Run(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db := sqlite.NewDB(sqlDB, logger)

	repos := Repositories{
		Task:         repository.NewTaskRepository(db, logger),
		Assignment:   repository.NewAssignmentRepository(db, logger),
		Notification: repository.NewNotificationRepository(db, logger),
		Audit:        repository.NewAuditRepository(db, logger),
		Actor:        repository.NewActorRepository(db, logger),
	}

	kvLogger := utils.NewKVLogger(logger)
	disp := dispatcher.NewDispatcher(dispatcher.WithLogger(kvLogger))

	oracle := permission.NewRoleOracle(repos.Actor, logger)
	directory := permission.NewDepartmentDirectory(repos.Actor, logger)

	notifier := service.NewNotificationService(repos.Notification, disp, kvLogger)
	auditor := service.NewAuditService(repos.Audit, kvLogger)

	services := Services{
		Notification: notifier,
		Audit:        auditor,
		Task: service.NewTaskService(
			repos.Task, repos.Assignment, repos.Notification,
			oracle, notifier, auditor, db, disp, kvLogger),
		Assignment: service.NewAssignmentService(
			repos.Task, repos.Assignment,
			oracle, directory, notifier, auditor, db, kvLogger),
		Approval: service.NewApprovalService(
			repos.Task, repos.Assignment,
			oracle, notifier, auditor, db, disp, kvLogger),
		Pool: service.NewPoolService(
			repos.Task, repos.Assignment,
			oracle, notifier, auditor, db, kvLogger),
	}

	// Email mirror is a dispatcher subscriber; the feed works without it
	sender := email.NewSMTPSender(email.Config{
		Host:     cfg.Email.Host,
		Port:     cfg.Email.Port,
		Username: cfg.Email.Username,
		Password: cfg.Email.Password,
		From:     cfg.Email.From,
		Enabled:  cfg.Email.Enabled,
	}, logger)
	email.NewMirror(sender, repos.Actor, logger).Register(disp)

	return &Container{
		Config:       cfg,
		Logger:       logger,
		SQLDB:        sqlDB,
		DB:           db,
		Repositories: repos,
		Dispatcher:   disp,
		Services:     services,
	}, nil
}

// Close tears the container down in reverse order: the dispatcher first so
// in-flight async handlers finish before the database goes away.
func (c *Container) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	var firstErr error
	if err := c.Dispatcher.Close(); err != nil {
		c.Logger.Error("Failed to close dispatcher", zap.Error(err))
		firstErr = err
	}
	if err := c.SQLDB.Close(); err != nil {
		c.Logger.Error("Failed to close database", zap.Error(err))
		if firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

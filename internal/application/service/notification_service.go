package service

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/taskops/workflow/internal/application/dispatcher"
	"github.com/taskops/workflow/internal/application/port"
	"github.com/taskops/workflow/internal/domain/entity"
	"github.com/taskops/workflow/internal/domain/event"
)

// NotificationRequest carries everything needed to create one feed record
type NotificationRequest struct {
	ActorID  string
	TaskID   string
	Kind     string
	Title    string
	Body     string
	Action   string
	Metadata event.Metadata
}

// Notifier is the fan-out contract the engine services depend on. All three
// methods are best-effort: a delivery failure is logged and swallowed, never
// propagated into the transition that triggered it.
type Notifier interface {
	// Notify creates a feed record for the target actor
	Notify(ctx context.Context, req NotificationRequest)

	// NotifyDedup creates a feed record unless an unread one with the same
	// (actor, task, action) key already exists
	NotifyDedup(ctx context.Context, req NotificationRequest)

	// MarkActioned updates the outstanding unread notification matching
	// (actor, task, fromAction) in place: marks it read and retags it with
	// toAction, instead of creating a duplicate
	MarkActioned(ctx context.Context, actorID, taskID, fromAction, toAction string)
}

// NotificationService manages the in-app notification feed
type NotificationService interface {
	Notifier

	ListByActor(ctx context.Context, actorID string, limit, offset int) ([]*entity.Notification, error)
	MarkRead(ctx context.Context, id string) error
}

type notificationServiceImpl struct {
	notificationRepo port.NotificationRepository
	dispatcher       dispatcher.Dispatcher
	logger           Logger
}

// NewNotificationService creates a new NotificationService. The dispatcher is
// optional; when set, every created record is announced for best-effort
// mirroring (email delivery subscribes there).
func NewNotificationService(
	notificationRepo port.NotificationRepository,
	d dispatcher.Dispatcher,
	logger Logger,
) NotificationService {
	return &notificationServiceImpl{
		notificationRepo: notificationRepo,
		dispatcher:       d,
		logger:           logger,
	}
}

// Notify creates a feed record for the target actor.
func (s *notificationServiceImpl) Notify(ctx context.Context, req NotificationRequest) {
	now := time.Now()
	n := &entity.Notification{
		ID:        ulid.Make().String(),
		ActorID:   req.ActorID,
		TaskID:    req.TaskID,
		Kind:      req.Kind,
		Title:     req.Title,
		Body:      req.Body,
		Action:    req.Action,
		Metadata:  event.EncodeMetadata(req.Metadata),
		Read:      false,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.notificationRepo.Create(ctx, n); err != nil {
		s.logger.Error("Notification sink unavailable, record dropped",
			"error", err,
			"actor_id", req.ActorID,
			"task_id", req.TaskID,
			"action", req.Action)
		return
	}

	if s.dispatcher != nil {
		s.dispatcher.DispatchAsync(ctx, event.NewNotificationEvent(n))
	}
}

// NotifyDedup suppresses the record if an unread one with the same key exists.
func (s *notificationServiceImpl) NotifyDedup(ctx context.Context, req NotificationRequest) {
	existing, err := s.notificationRepo.GetUnread(ctx, req.ActorID, req.TaskID, req.Action)
	if err != nil {
		s.logger.Error("Failed to check for duplicate notification",
			"error", err,
			"actor_id", req.ActorID,
			"task_id", req.TaskID,
			"action", req.Action)
		return
	}
	if existing != nil {
		return
	}
	s.Notify(ctx, req)
}

// MarkActioned updates an outstanding unread notification in place.
func (s *notificationServiceImpl) MarkActioned(ctx context.Context, actorID, taskID, fromAction, toAction string) {
	existing, err := s.notificationRepo.GetUnread(ctx, actorID, taskID, fromAction)
	if err != nil {
		s.logger.Error("Failed to look up notification for in-place update",
			"error", err,
			"actor_id", actorID,
			"task_id", taskID,
			"from_action", fromAction)
		return
	}
	if existing == nil {
		return
	}

	existing.Read = true
	existing.Action = toAction
	existing.UpdatedAt = time.Now()

	if err := s.notificationRepo.Update(ctx, existing); err != nil {
		s.logger.Error("Failed to update notification in place",
			"error", err,
			"notification_id", existing.ID)
	}
}

// ListByActor returns a page of the actor's feed, newest first.
func (s *notificationServiceImpl) ListByActor(ctx context.Context, actorID string, limit, offset int) ([]*entity.Notification, error) {
	notifications, err := s.notificationRepo.ListByActor(ctx, actorID, limit, offset)
	if err != nil {
		s.logger.Error("Failed to list notifications", "error", err, "actor_id", actorID)
		return nil, err
	}
	return notifications, nil
}

// MarkRead marks one feed record as read.
func (s *notificationServiceImpl) MarkRead(ctx context.Context, id string) error {
	if err := s.notificationRepo.MarkRead(ctx, id); err != nil {
		s.logger.Error("Failed to mark notification read", "error", err, "notification_id", id)
		return err
	}
	return nil
}

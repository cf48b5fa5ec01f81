package service

import (
	"context"
	"sync"

	"github.com/taskops/workflow/internal/application/port"
	"github.com/taskops/workflow/internal/domain/entity"
)

// Func-field mocks: each method delegates to its field when set and falls
// back to a benign default otherwise.

type mockTaskRepo struct {
	createFunc           func(ctx context.Context, task *entity.Task) error
	getByIDFunc          func(ctx context.Context, id string) (*entity.Task, error)
	updateFunc           func(ctx context.Context, task *entity.Task) error
	deleteFunc           func(ctx context.Context, id string) error
	listFunc             func(ctx context.Context, limit, offset int) ([]*entity.Task, error)
	appendHistoryFunc    func(ctx context.Context, change *entity.StatusChange) error
	getStatusHistoryFunc func(ctx context.Context, taskID string) ([]*entity.StatusChange, error)
	deleteHistoryFunc    func(ctx context.Context, taskID string) error

	history []entity.StatusChange
}

func (m *mockTaskRepo) Create(ctx context.Context, task *entity.Task) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, task)
	}
	return nil
}

func (m *mockTaskRepo) GetByID(ctx context.Context, id string) (*entity.Task, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *mockTaskRepo) Update(ctx context.Context, task *entity.Task) error {
	if m.updateFunc != nil {
		return m.updateFunc(ctx, task)
	}
	return nil
}

func (m *mockTaskRepo) Delete(ctx context.Context, id string) error {
	if m.deleteFunc != nil {
		return m.deleteFunc(ctx, id)
	}
	return nil
}

func (m *mockTaskRepo) List(ctx context.Context, limit, offset int) ([]*entity.Task, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx, limit, offset)
	}
	return nil, nil
}

func (m *mockTaskRepo) AppendStatusHistory(ctx context.Context, change *entity.StatusChange) error {
	if m.appendHistoryFunc != nil {
		return m.appendHistoryFunc(ctx, change)
	}
	m.history = append(m.history, *change)
	return nil
}

func (m *mockTaskRepo) GetStatusHistory(ctx context.Context, taskID string) ([]*entity.StatusChange, error) {
	if m.getStatusHistoryFunc != nil {
		return m.getStatusHistoryFunc(ctx, taskID)
	}
	var out []*entity.StatusChange
	for i := range m.history {
		out = append(out, &m.history[i])
	}
	return out, nil
}

func (m *mockTaskRepo) DeleteStatusHistoryByTaskID(ctx context.Context, taskID string) error {
	if m.deleteHistoryFunc != nil {
		return m.deleteHistoryFunc(ctx, taskID)
	}
	m.history = nil
	return nil
}

type mockAssignmentRepo struct {
	createFunc            func(ctx context.Context, assignment *entity.Assignment) error
	getByIDFunc           func(ctx context.Context, id string) (*entity.Assignment, error)
	getByTaskIDFunc       func(ctx context.Context, taskID string) ([]*entity.Assignment, error)
	getByTaskAndActorFunc func(ctx context.Context, taskID, actorID string) (*entity.Assignment, error)
	updateFunc            func(ctx context.Context, assignment *entity.Assignment) error
	deleteFunc            func(ctx context.Context, id string) error
	deleteByTaskIDFunc    func(ctx context.Context, taskID string) error
}

func (m *mockAssignmentRepo) Create(ctx context.Context, assignment *entity.Assignment) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, assignment)
	}
	return nil
}

func (m *mockAssignmentRepo) GetByID(ctx context.Context, id string) (*entity.Assignment, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *mockAssignmentRepo) GetByTaskID(ctx context.Context, taskID string) ([]*entity.Assignment, error) {
	if m.getByTaskIDFunc != nil {
		return m.getByTaskIDFunc(ctx, taskID)
	}
	return nil, nil
}

func (m *mockAssignmentRepo) GetByTaskAndActor(ctx context.Context, taskID, actorID string) (*entity.Assignment, error) {
	if m.getByTaskAndActorFunc != nil {
		return m.getByTaskAndActorFunc(ctx, taskID, actorID)
	}
	return nil, nil
}

func (m *mockAssignmentRepo) Update(ctx context.Context, assignment *entity.Assignment) error {
	if m.updateFunc != nil {
		return m.updateFunc(ctx, assignment)
	}
	return nil
}

func (m *mockAssignmentRepo) Delete(ctx context.Context, id string) error {
	if m.deleteFunc != nil {
		return m.deleteFunc(ctx, id)
	}
	return nil
}

func (m *mockAssignmentRepo) DeleteByTaskID(ctx context.Context, taskID string) error {
	if m.deleteByTaskIDFunc != nil {
		return m.deleteByTaskIDFunc(ctx, taskID)
	}
	return nil
}

type mockNotificationRepo struct {
	createFunc         func(ctx context.Context, n *entity.Notification) error
	getByIDFunc        func(ctx context.Context, id string) (*entity.Notification, error)
	getUnreadFunc      func(ctx context.Context, actorID, taskID, action string) (*entity.Notification, error)
	listByActorFunc    func(ctx context.Context, actorID string, limit, offset int) ([]*entity.Notification, error)
	updateFunc         func(ctx context.Context, n *entity.Notification) error
	markReadFunc       func(ctx context.Context, id string) error
	deleteByTaskIDFunc func(ctx context.Context, taskID string) error

	created []entity.Notification
	updated []entity.Notification
}

func (m *mockNotificationRepo) Create(ctx context.Context, n *entity.Notification) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, n)
	}
	m.created = append(m.created, *n)
	return nil
}

func (m *mockNotificationRepo) GetByID(ctx context.Context, id string) (*entity.Notification, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *mockNotificationRepo) GetUnread(ctx context.Context, actorID, taskID, action string) (*entity.Notification, error) {
	if m.getUnreadFunc != nil {
		return m.getUnreadFunc(ctx, actorID, taskID, action)
	}
	return nil, nil
}

func (m *mockNotificationRepo) ListByActor(ctx context.Context, actorID string, limit, offset int) ([]*entity.Notification, error) {
	if m.listByActorFunc != nil {
		return m.listByActorFunc(ctx, actorID, limit, offset)
	}
	return nil, nil
}

func (m *mockNotificationRepo) Update(ctx context.Context, n *entity.Notification) error {
	if m.updateFunc != nil {
		return m.updateFunc(ctx, n)
	}
	m.updated = append(m.updated, *n)
	return nil
}

func (m *mockNotificationRepo) MarkRead(ctx context.Context, id string) error {
	if m.markReadFunc != nil {
		return m.markReadFunc(ctx, id)
	}
	return nil
}

func (m *mockNotificationRepo) DeleteByTaskID(ctx context.Context, taskID string) error {
	if m.deleteByTaskIDFunc != nil {
		return m.deleteByTaskIDFunc(ctx, taskID)
	}
	return nil
}

type mockAuditRepo struct {
	createFunc func(ctx context.Context, e *entity.AuditEntry) error

	mu      sync.Mutex
	entries []entity.AuditEntry
}

func (m *mockAuditRepo) Create(ctx context.Context, e *entity.AuditEntry) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, e)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, *e)
	return nil
}

func (m *mockAuditRepo) ListByEntity(ctx context.Context, entityKind, entityID string) ([]*entity.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.AuditEntry
	for i := range m.entries {
		if m.entries[i].EntityKind == entityKind && m.entries[i].EntityID == entityID {
			out = append(out, &m.entries[i])
		}
	}
	return out, nil
}

// mockOracle allows everything unless canPerformFunc says otherwise
type mockOracle struct {
	canPerformFunc func(ctx context.Context, actorID string, task *entity.Task, op port.Operation) (bool, error)
}

func (m *mockOracle) CanPerform(ctx context.Context, actorID string, task *entity.Task, op port.Operation) (bool, error) {
	if m.canPerformFunc != nil {
		return m.canPerformFunc(ctx, actorID, task, op)
	}
	return true, nil
}

type mockDirectory struct {
	leads []string
	err   error
}

func (m *mockDirectory) TeamLeads(ctx context.Context, task *entity.Task) ([]string, error) {
	return m.leads, m.err
}

type mockTxManager struct {
	withTransactionFunc func(ctx context.Context, fn func(ctx context.Context) error) error
}

func (m *mockTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if m.withTransactionFunc != nil {
		return m.withTransactionFunc(ctx, fn)
	}
	return fn(ctx)
}

type mockLogger struct{}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{})  {}
func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {}

// recordingNotifier captures every fan-out call in order
type recordingNotifier struct {
	notified []NotificationRequest
	deduped  []NotificationRequest
	actioned [][4]string // actorID, taskID, fromAction, toAction
}

func (r *recordingNotifier) Notify(ctx context.Context, req NotificationRequest) {
	r.notified = append(r.notified, req)
}

func (r *recordingNotifier) NotifyDedup(ctx context.Context, req NotificationRequest) {
	r.deduped = append(r.deduped, req)
}

func (r *recordingNotifier) MarkActioned(ctx context.Context, actorID, taskID, fromAction, toAction string) {
	r.actioned = append(r.actioned, [4]string{actorID, taskID, fromAction, toAction})
}

// recordingAuditor captures audit records in order
type recordingAuditor struct {
	records [][6]string // action, entityKind, entityID, actorID, before, after
}

func (r *recordingAuditor) Record(ctx context.Context, action, entityKind, entityID, actorID, before, after string) {
	r.records = append(r.records, [6]string{action, entityKind, entityID, actorID, before, after})
}

package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskops/workflow/internal/application/service"
	"github.com/taskops/workflow/internal/domain/entity"
)

type nopLogger struct{}

func (nopLogger) Info(msg string, keysAndValues ...interface{})  {}
func (nopLogger) Error(msg string, keysAndValues ...interface{}) {}

// Func-field service stubs; unset methods return zero values.

type stubTaskService struct {
	createTaskFunc   func(ctx context.Context, title, description, createdBy string) (*entity.Task, error)
	getTaskFunc      func(ctx context.Context, taskID string) (*entity.Task, error)
	listTasksFunc    func(ctx context.Context, limit, offset int) ([]*entity.Task, error)
	updateStatusFunc func(ctx context.Context, taskID, newStatus, actorID string) error
	deleteTaskFunc   func(ctx context.Context, taskID, actorID string) error
}

func (s *stubTaskService) CreateTask(ctx context.Context, title, description, createdBy string) (*entity.Task, error) {
	if s.createTaskFunc != nil {
		return s.createTaskFunc(ctx, title, description, createdBy)
	}
	return &entity.Task{ID: "task-1", Title: title, CreatedBy: createdBy}, nil
}

func (s *stubTaskService) GetTask(ctx context.Context, taskID string) (*entity.Task, error) {
	if s.getTaskFunc != nil {
		return s.getTaskFunc(ctx, taskID)
	}
	return &entity.Task{ID: taskID}, nil
}

func (s *stubTaskService) ListTasks(ctx context.Context, limit, offset int) ([]*entity.Task, error) {
	if s.listTasksFunc != nil {
		return s.listTasksFunc(ctx, limit, offset)
	}
	return nil, nil
}

func (s *stubTaskService) GetStatusHistory(ctx context.Context, taskID string) ([]*entity.StatusChange, error) {
	return nil, nil
}

func (s *stubTaskService) UpdateStatus(ctx context.Context, taskID, newStatus, actorID string) error {
	if s.updateStatusFunc != nil {
		return s.updateStatusFunc(ctx, taskID, newStatus, actorID)
	}
	return nil
}

func (s *stubTaskService) DeleteTask(ctx context.Context, taskID, actorID string) error {
	if s.deleteTaskFunc != nil {
		return s.deleteTaskFunc(ctx, taskID, actorID)
	}
	return nil
}

type stubAssignmentService struct {
	assignFunc func(ctx context.Context, taskID, actorID, assignedBy string) (*entity.Assignment, error)
	acceptFunc func(ctx context.Context, assignmentID, actorID string) error
	rejectFunc func(ctx context.Context, assignmentID, actorID, reason string) error
}

func (s *stubAssignmentService) Assign(ctx context.Context, taskID, actorID, assignedBy string) (*entity.Assignment, error) {
	if s.assignFunc != nil {
		return s.assignFunc(ctx, taskID, actorID, assignedBy)
	}
	return &entity.Assignment{ID: "a-1", TaskID: taskID, ActorID: actorID, AssignedBy: assignedBy}, nil
}

func (s *stubAssignmentService) Accept(ctx context.Context, assignmentID, actorID string) error {
	if s.acceptFunc != nil {
		return s.acceptFunc(ctx, assignmentID, actorID)
	}
	return nil
}

func (s *stubAssignmentService) Reject(ctx context.Context, assignmentID, actorID, reason string) error {
	if s.rejectFunc != nil {
		return s.rejectFunc(ctx, assignmentID, actorID, reason)
	}
	return nil
}

func (s *stubAssignmentService) ApproveRejection(ctx context.Context, assignmentID, actorID string) error {
	return nil
}

func (s *stubAssignmentService) DisputeRejection(ctx context.Context, assignmentID, actorID, reason string) error {
	return nil
}

func (s *stubAssignmentService) Remove(ctx context.Context, taskID, actorID, removedBy string) error {
	return nil
}

func (s *stubAssignmentService) GetByTask(ctx context.Context, taskID string) ([]*entity.Assignment, error) {
	return nil, nil
}

type stubApprovalService struct {
	rejectApprovalFunc func(ctx context.Context, taskID, actorID, reason string) error
}

func (s *stubApprovalService) RequestApproval(ctx context.Context, taskID, actorID string) error {
	return nil
}

func (s *stubApprovalService) Approve(ctx context.Context, taskID, actorID string) error {
	return nil
}

func (s *stubApprovalService) RejectApproval(ctx context.Context, taskID, actorID, reason string) error {
	if s.rejectApprovalFunc != nil {
		return s.rejectApprovalFunc(ctx, taskID, actorID, reason)
	}
	return nil
}

type stubPoolService struct {
	approveClaimFunc func(ctx context.Context, taskID, approverID, claimantID string, keepInPool bool) error
}

func (s *stubPoolService) AddToPool(ctx context.Context, taskID, actorID string, eligible []string) error {
	return nil
}

func (s *stubPoolService) RequestClaim(ctx context.Context, taskID, claimantID string) error {
	return nil
}

func (s *stubPoolService) ApproveClaim(ctx context.Context, taskID, approverID, claimantID string, keepInPool bool) error {
	if s.approveClaimFunc != nil {
		return s.approveClaimFunc(ctx, taskID, approverID, claimantID, keepInPool)
	}
	return nil
}

func (s *stubPoolService) RejectClaim(ctx context.Context, taskID, approverID, claimantID string) error {
	return nil
}

type stubNotificationService struct {
	listByActorFunc func(ctx context.Context, actorID string, limit, offset int) ([]*entity.Notification, error)
}

func (s *stubNotificationService) Notify(ctx context.Context, req service.NotificationRequest)      {}
func (s *stubNotificationService) NotifyDedup(ctx context.Context, req service.NotificationRequest) {}
func (s *stubNotificationService) MarkActioned(ctx context.Context, actorID, taskID, fromAction, toAction string) {
}

func (s *stubNotificationService) ListByActor(ctx context.Context, actorID string, limit, offset int) ([]*entity.Notification, error) {
	if s.listByActorFunc != nil {
		return s.listByActorFunc(ctx, actorID, limit, offset)
	}
	return nil, nil
}

func (s *stubNotificationService) MarkRead(ctx context.Context, id string) error {
	return nil
}

type stubAuditService struct{}

func (s *stubAuditService) Record(ctx context.Context, action, entityKind, entityID, actorID, before, after string) {
}

func (s *stubAuditService) ListByEntity(ctx context.Context, entityKind, entityID string) ([]*entity.AuditEntry, error) {
	return nil, nil
}

func defaultServices() Services {
	return Services{
		Tasks:         &stubTaskService{},
		Assignments:   &stubAssignmentService{},
		Approvals:     &stubApprovalService{},
		Pool:          &stubPoolService{},
		Notifications: &stubNotificationService{},
		Audit:         &stubAuditService{},
	}
}

func newTestServer(services Services) *Server {
	return NewServer(DefaultServerConfig(), services, nopLogger{})
}

type jsonBody map[string]interface{}

func doRequest(t *testing.T, server *Server, method, path, actor string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if actor != "" {
		req.Header.Set("X-Actor-ID", actor)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealthCheck(t *testing.T) {
	server := newTestServer(defaultServices())
	rec := doRequest(t, server, http.MethodGet, "/health", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
}

func TestCreateTask(t *testing.T) {
	t.Run("creates task", func(t *testing.T) {
		services := defaultServices()
		var gotTitle, gotActor string
		services.Tasks = &stubTaskService{
			createTaskFunc: func(ctx context.Context, title, description, createdBy string) (*entity.Task, error) {
				gotTitle, gotActor = title, createdBy
				return &entity.Task{ID: "task-1", Title: title, CreatedBy: createdBy}, nil
			},
		}
		server := newTestServer(services)

		rec := doRequest(t, server, http.MethodPost, "/api/tasks", "alice", jsonBody{"title": "Quarterly report"})

		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, "Quarterly report", gotTitle)
		assert.Equal(t, "alice", gotActor)
	})

	t.Run("requires actor header", func(t *testing.T) {
		server := newTestServer(defaultServices())
		rec := doRequest(t, server, http.MethodPost, "/api/tasks", "", jsonBody{"title": "Quarterly report"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("requires title", func(t *testing.T) {
		server := newTestServer(defaultServices())
		rec := doRequest(t, server, http.MethodPost, "/api/tasks", "alice", jsonBody{"description": "no title"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestErrorTaxonomyMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"not found", fmt.Errorf("%w: task missing", entity.ErrNotFound), http.StatusNotFound},
		{"permission denied", fmt.Errorf("%w: nope", entity.ErrPermissionDenied), http.StatusForbidden},
		{"invalid state", fmt.Errorf("%w: conflict", entity.ErrInvalidState), http.StatusConflict},
		{"validation", fmt.Errorf("%w: bad input", entity.ErrValidation), http.StatusBadRequest},
		{"unknown", fmt.Errorf("disk on fire"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			services := defaultServices()
			services.Tasks = &stubTaskService{
				updateStatusFunc: func(ctx context.Context, taskID, newStatus, actorID string) error {
					return tt.err
				},
			}
			server := newTestServer(services)

			rec := doRequest(t, server, http.MethodPut, "/api/tasks/task-1/status", "alice",
				jsonBody{"status": entity.TaskStatusInProgress})

			assert.Equal(t, tt.wantStatus, rec.Code)

			var resp Response
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.False(t, resp.Success)
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestAcceptAssignmentRoute(t *testing.T) {
	services := defaultServices()
	var gotAssignment, gotActor string
	services.Assignments = &stubAssignmentService{
		acceptFunc: func(ctx context.Context, assignmentID, actorID string) error {
			gotAssignment, gotActor = assignmentID, actorID
			return nil
		},
	}
	server := newTestServer(services)

	rec := doRequest(t, server, http.MethodPost, "/api/assignments/a-1/accept", "bob", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "a-1", gotAssignment)
	assert.Equal(t, "bob", gotActor)
}

func TestRejectAssignmentPassesReason(t *testing.T) {
	services := defaultServices()
	var gotReason string
	services.Assignments = &stubAssignmentService{
		rejectFunc: func(ctx context.Context, assignmentID, actorID, reason string) error {
			gotReason = reason
			return nil
		},
	}
	server := newTestServer(services)

	rec := doRequest(t, server, http.MethodPost, "/api/assignments/a-1/reject", "bob",
		jsonBody{"reason": "too busy this sprint, sorry"})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "too busy this sprint, sorry", gotReason)
}

func TestRejectApprovalBodyIsOptional(t *testing.T) {
	services := defaultServices()
	called := false
	services.Approvals = &stubApprovalService{
		rejectApprovalFunc: func(ctx context.Context, taskID, actorID, reason string) error {
			called = true
			assert.Empty(t, reason)
			return nil
		},
	}
	server := newTestServer(services)

	rec := doRequest(t, server, http.MethodPost, "/api/tasks/task-1/approval/reject", "alice", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, called)
}

func TestApproveClaimRoute(t *testing.T) {
	t.Run("empty body defaults to leaving the pool", func(t *testing.T) {
		services := defaultServices()
		var gotClaimant string
		var gotKeep bool
		services.Pool = &stubPoolService{
			approveClaimFunc: func(ctx context.Context, taskID, approverID, claimantID string, keepInPool bool) error {
				gotClaimant, gotKeep = claimantID, keepInPool
				return nil
			},
		}
		server := newTestServer(services)

		rec := doRequest(t, server, http.MethodPost, "/api/tasks/task-1/pool/claims/bob/approve", "alice", nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "bob", gotClaimant)
		assert.False(t, gotKeep)
	})

	t.Run("keep_in_pool passes through", func(t *testing.T) {
		services := defaultServices()
		var gotKeep bool
		services.Pool = &stubPoolService{
			approveClaimFunc: func(ctx context.Context, taskID, approverID, claimantID string, keepInPool bool) error {
				gotKeep = keepInPool
				return nil
			},
		}
		server := newTestServer(services)

		rec := doRequest(t, server, http.MethodPost, "/api/tasks/task-1/pool/claims/bob/approve", "alice",
			jsonBody{"keep_in_pool": true})

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, gotKeep)
	})
}

func TestListNotificationsPagination(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantLimit  int
		wantOffset int
	}{
		{"defaults", "", 20, 0},
		{"explicit", "?limit=50&offset=10", 50, 10},
		{"limit capped", "?limit=500", 20, 0},
		{"negative offset clamped", "?offset=-5", 20, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			services := defaultServices()
			var gotLimit, gotOffset int
			services.Notifications = &stubNotificationService{
				listByActorFunc: func(ctx context.Context, actorID string, limit, offset int) ([]*entity.Notification, error) {
					gotLimit, gotOffset = limit, offset
					return nil, nil
				},
			}
			server := newTestServer(services)

			rec := doRequest(t, server, http.MethodGet, "/api/notifications"+tt.query, "bob", nil)

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.wantLimit, gotLimit)
			assert.Equal(t, tt.wantOffset, gotOffset)
		})
	}
}

func TestGetTaskNotFound(t *testing.T) {
	services := defaultServices()
	services.Tasks = &stubTaskService{
		getTaskFunc: func(ctx context.Context, taskID string) (*entity.Task, error) {
			return nil, fmt.Errorf("%w: task %s", entity.ErrNotFound, taskID)
		},
	}
	server := newTestServer(services)

	rec := doRequest(t, server, http.MethodGet, "/api/tasks/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

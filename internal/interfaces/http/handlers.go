package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/taskops/workflow/internal/domain/entity"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	services Services
	logger   Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(services Services, logger Logger) *Handlers {
	return &Handlers{
		services: services,
		logger:   logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// actorID resolves the calling actor from the X-Actor-ID header. Identity is
// established upstream; this layer only relays it.
func actorID(c *gin.Context) string {
	return c.GetHeader("X-Actor-ID")
}

// respondError maps the engine's error taxonomy to HTTP status codes
func (h *Handlers) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, entity.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, entity.ErrPermissionDenied):
		status = http.StatusForbidden
	case errors.Is(err, entity.ErrInvalidState):
		status = http.StatusConflict
	case errors.Is(err, entity.ErrValidation):
		status = http.StatusBadRequest
	default:
		h.logger.Error("Request failed", "error", err, "path", c.Request.URL.Path)
	}
	c.JSON(status, Response{Success: false, Error: err.Error()})
}

func (h *Handlers) requireActor(c *gin.Context) (string, bool) {
	id := actorID(c)
	if id == "" {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "X-Actor-ID header is required"})
		return "", false
	}
	return id, true
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: gin.H{
			"status":    "healthy",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		},
	})
}

// CreateTaskRequest is the body of POST /api/tasks
type CreateTaskRequest struct {
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`
}

// CreateTask handles POST /api/tasks
func (h *Handlers) CreateTask(c *gin.Context) {
	actor, ok := h.requireActor(c)
	if !ok {
		return
	}
	var req CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body"})
		return
	}

	task, err := h.services.Tasks.CreateTask(c.Request.Context(), req.Title, req.Description, actor)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, Response{Success: true, Data: task})
}

// ListTasks handles GET /api/tasks
func (h *Handlers) ListTasks(c *gin.Context) {
	limit, offset := pagination(c)
	tasks, err := h.services.Tasks.ListTasks(c.Request.Context(), limit, offset)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: tasks})
}

// GetTask handles GET /api/tasks/:id
func (h *Handlers) GetTask(c *gin.Context) {
	task, err := h.services.Tasks.GetTask(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: task})
}

// DeleteTask handles DELETE /api/tasks/:id
func (h *Handlers) DeleteTask(c *gin.Context) {
	actor, ok := h.requireActor(c)
	if !ok {
		return
	}
	if err := h.services.Tasks.DeleteTask(c.Request.Context(), c.Param("id"), actor); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true})
}

// UpdateStatusRequest is the body of PUT /api/tasks/:id/status
type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// UpdateStatus handles PUT /api/tasks/:id/status
func (h *Handlers) UpdateStatus(c *gin.Context) {
	actor, ok := h.requireActor(c)
	if !ok {
		return
	}
	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body"})
		return
	}

	if err := h.services.Tasks.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status, actor); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true})
}

// GetStatusHistory handles GET /api/tasks/:id/history
func (h *Handlers) GetStatusHistory(c *gin.Context) {
	history, err := h.services.Tasks.GetStatusHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: history})
}

// AssignRequest is the body of POST /api/tasks/:id/assignments
type AssignRequest struct {
	ActorID string `json:"actor_id" binding:"required"`
}

// Assign handles POST /api/tasks/:id/assignments
func (h *Handlers) Assign(c *gin.Context) {
	actor, ok := h.requireActor(c)
	if !ok {
		return
	}
	var req AssignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body"})
		return
	}

	assignment, err := h.services.Assignments.Assign(c.Request.Context(), c.Param("id"), req.ActorID, actor)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, Response{Success: true, Data: assignment})
}

// ListAssignments handles GET /api/tasks/:id/assignments
func (h *Handlers) ListAssignments(c *gin.Context) {
	assignments, err := h.services.Assignments.GetByTask(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: assignments})
}

// RemoveAssignment handles DELETE /api/tasks/:id/assignments/:actorID
func (h *Handlers) RemoveAssignment(c *gin.Context) {
	actor, ok := h.requireActor(c)
	if !ok {
		return
	}
	if err := h.services.Assignments.Remove(c.Request.Context(), c.Param("id"), c.Param("actorID"), actor); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true})
}

// AcceptAssignment handles POST /api/assignments/:id/accept
func (h *Handlers) AcceptAssignment(c *gin.Context) {
	actor, ok := h.requireActor(c)
	if !ok {
		return
	}
	if err := h.services.Assignments.Accept(c.Request.Context(), c.Param("id"), actor); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true})
}

// ReasonRequest carries a reason for rejections and disputes
type ReasonRequest struct {
	Reason string `json:"reason"`
}

// RejectAssignment handles POST /api/assignments/:id/reject
func (h *Handlers) RejectAssignment(c *gin.Context) {
	actor, ok := h.requireActor(c)
	if !ok {
		return
	}
	var req ReasonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body"})
		return
	}
	if err := h.services.Assignments.Reject(c.Request.Context(), c.Param("id"), actor, req.Reason); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true})
}

// ApproveRejection handles POST /api/assignments/:id/rejection/approve
func (h *Handlers) ApproveRejection(c *gin.Context) {
	actor, ok := h.requireActor(c)
	if !ok {
		return
	}
	if err := h.services.Assignments.ApproveRejection(c.Request.Context(), c.Param("id"), actor); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true})
}

// DisputeRejection handles POST /api/assignments/:id/rejection/dispute
func (h *Handlers) DisputeRejection(c *gin.Context) {
	actor, ok := h.requireActor(c)
	if !ok {
		return
	}
	var req ReasonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body"})
		return
	}
	if err := h.services.Assignments.DisputeRejection(c.Request.Context(), c.Param("id"), actor, req.Reason); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true})
}

// RequestApproval handles POST /api/tasks/:id/approval/request
func (h *Handlers) RequestApproval(c *gin.Context) {
	actor, ok := h.requireActor(c)
	if !ok {
		return
	}
	if err := h.services.Approvals.RequestApproval(c.Request.Context(), c.Param("id"), actor); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true})
}

// Approve handles POST /api/tasks/:id/approval/approve
func (h *Handlers) Approve(c *gin.Context) {
	actor, ok := h.requireActor(c)
	if !ok {
		return
	}
	if err := h.services.Approvals.Approve(c.Request.Context(), c.Param("id"), actor); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true})
}

// RejectApproval handles POST /api/tasks/:id/approval/reject
func (h *Handlers) RejectApproval(c *gin.Context) {
	actor, ok := h.requireActor(c)
	if !ok {
		return
	}
	var req ReasonRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body"})
		return
	}
	if err := h.services.Approvals.RejectApproval(c.Request.Context(), c.Param("id"), actor, req.Reason); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true})
}

// AddToPoolRequest is the body of POST /api/tasks/:id/pool
type AddToPoolRequest struct {
	Eligible []string `json:"eligible"`
}

// AddToPool handles POST /api/tasks/:id/pool
func (h *Handlers) AddToPool(c *gin.Context) {
	actor, ok := h.requireActor(c)
	if !ok {
		return
	}
	var req AddToPoolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body"})
		return
	}
	if err := h.services.Pool.AddToPool(c.Request.Context(), c.Param("id"), actor, req.Eligible); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true})
}

// RequestClaim handles POST /api/tasks/:id/pool/claims
func (h *Handlers) RequestClaim(c *gin.Context) {
	actor, ok := h.requireActor(c)
	if !ok {
		return
	}
	if err := h.services.Pool.RequestClaim(c.Request.Context(), c.Param("id"), actor); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, Response{Success: true})
}

// ApproveClaimRequest is the body of claim approval
type ApproveClaimRequest struct {
	KeepInPool bool `json:"keep_in_pool"`
}

// ApproveClaim handles POST /api/tasks/:id/pool/claims/:actorID/approve
func (h *Handlers) ApproveClaim(c *gin.Context) {
	actor, ok := h.requireActor(c)
	if !ok {
		return
	}
	var req ApproveClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body"})
		return
	}
	if err := h.services.Pool.ApproveClaim(c.Request.Context(), c.Param("id"), actor, c.Param("actorID"), req.KeepInPool); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true})
}

// RejectClaim handles POST /api/tasks/:id/pool/claims/:actorID/reject
func (h *Handlers) RejectClaim(c *gin.Context) {
	actor, ok := h.requireActor(c)
	if !ok {
		return
	}
	if err := h.services.Pool.RejectClaim(c.Request.Context(), c.Param("id"), actor, c.Param("actorID")); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true})
}

// ListNotifications handles GET /api/notifications
func (h *Handlers) ListNotifications(c *gin.Context) {
	actor, ok := h.requireActor(c)
	if !ok {
		return
	}
	limit, offset := pagination(c)
	notifications, err := h.services.Notifications.ListByActor(c.Request.Context(), actor, limit, offset)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: notifications})
}

// MarkNotificationRead handles POST /api/notifications/:id/read
func (h *Handlers) MarkNotificationRead(c *gin.Context) {
	if err := h.services.Notifications.MarkRead(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true})
}

// ListAuditEntries handles GET /api/audit/:kind/:id
func (h *Handlers) ListAuditEntries(c *gin.Context) {
	entries, err := h.services.Audit.ListByEntity(c.Request.Context(), c.Param("kind"), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: entries})
}

func pagination(c *gin.Context) (limit, offset int) {
	type query struct {
		Limit  int `form:"limit"`
		Offset int `form:"offset"`
	}
	var q query
	_ = c.ShouldBindQuery(&q)
	if q.Limit <= 0 || q.Limit > 100 {
		q.Limit = 20
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	return q.Limit, q.Offset
}

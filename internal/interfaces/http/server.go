// Package http provides the HTTP adapter for the workflow engine. It is a
// thin layer translating requests to application service calls; all workflow
// rules live below it.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/taskops/workflow/internal/application/service"
)

// Logger interface for logging operations
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:         "0.0.0.0",
		Port:         8080,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// Services bundles the application services the HTTP layer exposes
type Services struct {
	Tasks         service.TaskService
	Assignments   service.AssignmentService
	Approvals     service.ApprovalService
	Pool          service.PoolService
	Notifications service.NotificationService
	Audit         service.AuditService
}

// Server is the HTTP server adapter
type Server struct {
	config     ServerConfig
	httpServer *http.Server
	router     *gin.Engine
	services   Services
	logger     Logger
}

// NewServer creates a new HTTP server with the given services
func NewServer(config ServerConfig, services Services, logger Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	server := &Server{
		config:   config,
		router:   gin.New(),
		services: services,
		logger:   logger,
	}

	server.setupMiddleware()
	server.setupRoutes()
	return server
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		s.logger.Info("HTTP request",
			"method", method,
			"path", path,
			"status", c.Writer.Status(),
			"latency", time.Since(start).String(),
			"client_ip", c.ClientIP(),
		)
	}
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	handlers := NewHandlers(s.services, s.logger)

	s.router.GET("/health", handlers.HealthCheck)

	api := s.router.Group("/api")
	{
		api.POST("/tasks", handlers.CreateTask)
		api.GET("/tasks", handlers.ListTasks)
		api.GET("/tasks/:id", handlers.GetTask)
		api.DELETE("/tasks/:id", handlers.DeleteTask)
		api.PUT("/tasks/:id/status", handlers.UpdateStatus)
		api.GET("/tasks/:id/history", handlers.GetStatusHistory)

		api.POST("/tasks/:id/assignments", handlers.Assign)
		api.GET("/tasks/:id/assignments", handlers.ListAssignments)
		api.DELETE("/tasks/:id/assignments/:actorID", handlers.RemoveAssignment)

		api.POST("/assignments/:id/accept", handlers.AcceptAssignment)
		api.POST("/assignments/:id/reject", handlers.RejectAssignment)
		api.POST("/assignments/:id/rejection/approve", handlers.ApproveRejection)
		api.POST("/assignments/:id/rejection/dispute", handlers.DisputeRejection)

		api.POST("/tasks/:id/approval/request", handlers.RequestApproval)
		api.POST("/tasks/:id/approval/approve", handlers.Approve)
		api.POST("/tasks/:id/approval/reject", handlers.RejectApproval)

		api.POST("/tasks/:id/pool", handlers.AddToPool)
		api.POST("/tasks/:id/pool/claims", handlers.RequestClaim)
		api.POST("/tasks/:id/pool/claims/:actorID/approve", handlers.ApproveClaim)
		api.POST("/tasks/:id/pool/claims/:actorID/reject", handlers.RejectClaim)

		api.GET("/notifications", handlers.ListNotifications)
		api.POST("/notifications/:id/read", handlers.MarkNotificationRead)

		api.GET("/audit/:kind/:id", handlers.ListAuditEntries)
	}
}

// Start starts the HTTP server and blocks until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("Starting HTTP server", "address", addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("HTTP server shutdown requested")
		return s.Stop()
	case err := <-errCh:
		s.logger.Error("HTTP server error", "error", err)
		return err
	}
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
		return err
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// Router returns the underlying gin router (for testing)
func (s *Server) Router() *gin.Engine {
	return s.router
}

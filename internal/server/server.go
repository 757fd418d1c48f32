// Package server exposes the webhook, health, and agent-tracker
// introspection endpoints over HTTP via gin.
package server

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/oculair/context-enrichment-webhook/internal/pipeline"
	"github.com/oculair/context-enrichment-webhook/internal/tracker"
	"github.com/oculair/context-enrichment-webhook/internal/webhook"
)

// Server wires the pipeline orchestrator and agent tracker to the HTTP
// surface.
type Server struct {
	orchestrator *pipeline.Orchestrator
	tracker      *tracker.Tracker
	logger       *slog.Logger
}

// New builds a Server around an already-constructed orchestrator and
// tracker.
func New(orchestrator *pipeline.Orchestrator, trk *tracker.Tracker, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{orchestrator: orchestrator, tracker: trk, logger: logger}
}

// Router builds the gin engine with every route mounted.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestID())

	r.POST("/webhook", s.handleWebhook)
	r.POST("/webhook/letta", s.handleWebhook)
	r.GET("/health", s.handleHealth)
	r.GET("/agent-tracker/status", s.handleTrackerStatus)
	r.POST("/agent-tracker/reset", s.handleTrackerReset)

	return r
}

// requestID injects a per-request correlation id into the gin context and
// logs each request at Info with structured fields.
func (s *Server) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := uuid.NewString()
		c.Set("request_id", id)
		s.logger.Info("request received", slog.String("request_id", id), slog.String("path", c.Request.URL.Path))
		c.Next()
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleTrackerStatus(c *gin.Context) {
	count, ids := s.tracker.Status()
	c.JSON(http.StatusOK, gin.H{"count": count, "ids": ids})
}

func (s *Server) handleTrackerReset(c *gin.Context) {
	s.tracker.Reset()
	c.JSON(http.StatusOK, gin.H{"status": "reset"})
}

// handleWebhook parses the inbound body and drives the orchestrator.
// An unreadable body or any webhook.Parse error (malformed JSON or a prompt
// of the wrong shape) is the only client-error case (400); every other
// failure is caught by a subsystem and folded into the 200 response body.
func (s *Server) handleWebhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read request body"})
		return
	}

	event, err := webhook.Parse(body)
	if err != nil {
		s.logger.Warn("webhook: malformed body", slog.Any("error", err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed webhook payload"})
		return
	}

	resp := s.orchestrator.Handle(c.Request.Context(), event)
	c.JSON(http.StatusOK, resp)
}

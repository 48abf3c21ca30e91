// Package v1 provides the public replay HTTP API.
package v1

import (
	"errors"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/xiaot623/gogo/replay/internal/config"
	"github.com/xiaot623/gogo/replay/internal/hub"
	"github.com/xiaot623/gogo/replay/internal/service"
)

// Handler handles HTTP requests.
type Handler struct {
	service *service.Service
	hub     *hub.Hub
	cfg     *config.Config
}

// NewHandler creates a new handler. h may be nil, in which case the
// transcript stream is not served.
func NewHandler(svc *service.Service, h *hub.Hub, cfg *config.Config) *Handler {
	return &Handler{
		service: svc,
		hub:     h,
		cfg:     cfg,
	}
}

// RegisterRoutes registers routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	// Run records
	e.POST("/v1/runs", h.IngestRun)
	e.GET("/v1/runs/:run_id", h.GetRun)
	e.GET("/v1/runs/:run_id/events", h.GetRunEvents)
	e.PUT("/v1/runs/:run_id/feedback", h.UpdateFeedback)
	e.DELETE("/v1/runs/:run_id", h.DeleteRun)

	// Conversations
	e.GET("/v1/conversations/:conversation_id/runs", h.ListConversationRuns)
	e.GET("/v1/conversations/:conversation_id/summary", h.GetSummary)
	e.POST("/v1/conversations/:conversation_id/views", h.OpenView)

	// Replay views
	e.GET("/v1/views/:view_id/transcript", h.GetTranscript)
	e.POST("/v1/views/:view_id/select", h.SelectBranch)
	e.DELETE("/v1/views/:view_id", h.CloseView)
	if h.hub != nil {
		e.GET("/v1/views/:view_id/stream", h.StreamTranscript)
	}

	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}

// errorResponse maps service errors onto HTTP status codes.
func errorResponse(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrRunNotFound), errors.Is(err, service.ErrViewNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrForbidden):
		status = http.StatusForbidden
	default:
		log.Printf("ERROR: %s %s: %v", c.Request().Method, c.Path(), err)
	}
	return c.JSON(status, map[string]string{"error": err.Error()})
}

package v1

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/xiaot623/gogo/replay/internal/domain"
)

// IngestRun stores a run record.
// POST /v1/runs
func (h *Handler) IngestRun(c echo.Context) error {
	var run domain.RunRecord
	if err := c.Bind(&run); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	if err := h.service.IngestRun(c.Request().Context(), &run); err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusCreated, run)
}

// GetRun retrieves a single run record.
// GET /v1/runs/:run_id
func (h *Handler) GetRun(c echo.Context) error {
	run, err := h.service.GetRun(c.Request().Context(), c.Param("run_id"))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, run)
}

// GetRunEvents retrieves the audit trail of a run.
// GET /v1/runs/:run_id/events
func (h *Handler) GetRunEvents(c echo.Context) error {
	runID := c.Param("run_id")
	limit := 100
	if l := c.QueryParam("limit"); l != "" {
		if val, err := strconv.Atoi(l); err == nil {
			limit = val
		}
	}
	afterTs := int64(0)
	if t := c.QueryParam("after_ts"); t != "" {
		if val, err := strconv.ParseInt(t, 10, 64); err == nil {
			afterTs = val
		}
	}
	var types []string
	if t := c.QueryParam("types"); t != "" {
		types = strings.Split(t, ",")
	}

	events, err := h.service.GetRunEvents(c.Request().Context(), runID, afterTs, types, limit)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"events": events,
	})
}

// UpdateFeedback replaces the feedback of a run.
// PUT /v1/runs/:run_id/feedback
func (h *Handler) UpdateFeedback(c echo.Context) error {
	var req domain.FeedbackRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	patch, err := h.service.UpdateFeedback(c.Request().Context(), c.Param("run_id"), req.Feedback)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, domain.FeedbackResponse{
		RunID:    patch.RunID,
		Feedback: patch.Feedback,
	})
}

// DeleteRun removes a run and everything nested under it. The caller's
// project role comes from the X-User-Role header.
// DELETE /v1/runs/:run_id
func (h *Handler) DeleteRun(c echo.Context) error {
	role := c.Request().Header.Get(HeaderUserRole)

	deleted, err := h.service.DeleteRun(c.Request().Context(), role, c.Param("run_id"))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, domain.DeleteRunResponse{Deleted: deleted})
}

// HeaderUserRole carries the caller's project role.
const HeaderUserRole = "X-User-Role"

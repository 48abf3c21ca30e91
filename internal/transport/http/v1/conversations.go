package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/xiaot623/gogo/replay/internal/domain"
)

// ListConversationRuns returns the raw replayable runs of a conversation.
// GET /v1/conversations/:conversation_id/runs
func (h *Handler) ListConversationRuns(c echo.Context) error {
	runs, err := h.service.FetchRuns(c.Request().Context(), c.Param("conversation_id"))
	if err != nil {
		return errorResponse(c, err)
	}
	if runs == nil {
		runs = []domain.RunRecord{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"runs": runs,
	})
}

// GetSummary returns the replay header of a conversation.
// GET /v1/conversations/:conversation_id/summary
func (h *Handler) GetSummary(c echo.Context) error {
	summary, err := h.service.Summary(c.Request().Context(), c.Param("conversation_id"))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, summary)
}

// OpenView starts a replay of a conversation.
// POST /v1/conversations/:conversation_id/views
func (h *Handler) OpenView(c echo.Context) error {
	resp, err := h.service.OpenView(c.Request().Context(), c.Param("conversation_id"))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusCreated, resp)
}

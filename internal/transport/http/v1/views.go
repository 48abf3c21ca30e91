package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/xiaot623/gogo/replay/internal/domain"
	"github.com/xiaot623/gogo/replay/internal/thread"
)

// transcriptResponse is the wire form of an assembled transcript. Items
// is the flattened message list the chat panel renders.
type transcriptResponse struct {
	ViewID     string            `json:"view_id"`
	Seq        uint64            `json:"seq"`
	Transcript thread.Transcript `json:"transcript"`
	Items      []thread.Item     `json:"items"`
	Selection  map[string]int    `json:"selection"`
}

func buildTranscript(viewID string, st thread.ViewState) transcriptResponse {
	tr := st.Transcript
	items := tr.Items()
	if items == nil {
		items = []thread.Item{}
	}
	if tr.Positions == nil {
		tr.Positions = []thread.Position{}
	}
	return transcriptResponse{
		ViewID:     viewID,
		Seq:        st.Revision,
		Transcript: tr,
		Items:      items,
		Selection:  st.Selection,
	}
}

// GetTranscript returns the view's transcript against fresh data.
// GET /v1/views/:view_id/transcript
func (h *Handler) GetTranscript(c echo.Context) error {
	viewID := c.Param("view_id")
	st, err := h.service.Transcript(c.Request().Context(), viewID)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, buildTranscript(viewID, st))
}

// SelectBranch changes the active attempt at one backbone position.
// POST /v1/views/:view_id/select
func (h *Handler) SelectBranch(c echo.Context) error {
	var req domain.SelectBranchRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	viewID := c.Param("view_id")
	st, err := h.service.SelectBranch(c.Request().Context(), viewID, req.RootRunID, req.Index)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, buildTranscript(viewID, st))
}

// CloseView discards a view.
// DELETE /v1/views/:view_id
func (h *Handler) CloseView(c echo.Context) error {
	if err := h.service.CloseView(c.Param("view_id")); err != nil {
		return errorResponse(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

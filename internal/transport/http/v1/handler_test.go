package v1

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/replay/internal/config"
	"github.com/xiaot623/gogo/replay/internal/domain"
	"github.com/xiaot623/gogo/replay/internal/repository"
	"github.com/xiaot623/gogo/replay/internal/service"
	"github.com/xiaot623/gogo/replay/policy"
	"github.com/xiaot623/gogo/replay/tests/helpers"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestHandler(t *testing.T) (*Handler, *service.Service, store.Store) {
	cfg := &config.Config{}
	db := helpers.NewTestSQLiteStore(t)
	policyEngine, err := policy.NewEngine(context.Background(), policy.DefaultPolicy)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	svc := service.New(db, cfg, policyEngine, nil)
	return NewHandler(svc, nil, cfg), svc, db
}

func seedRetry(t *testing.T, svc *service.Service) {
	t.Helper()
	runs := []*domain.RunRecord{
		{
			ID: "1", ParentRunID: "conv", Type: domain.RunTypeChat,
			Input:     domain.MessagePayload(domain.RoleUser, "hi"),
			Output:    domain.MessagePayload(domain.RoleAssistant, "hello"),
			CreatedAt: t0, EndedAt: t0.Add(time.Second),
		},
		{
			ID: "2", ParentRunID: "conv", SiblingRunID: "1", Type: domain.RunTypeChat,
			Input:     domain.MessagePayload(domain.RoleUser, "hi again"),
			Output:    domain.MessagePayload(domain.RoleAssistant, "hey"),
			CreatedAt: t0.Add(2 * time.Second), EndedAt: t0.Add(3 * time.Second),
		},
	}
	for _, r := range runs {
		require.NoError(t, svc.IngestRun(context.Background(), r))
	}
}

func openView(t *testing.T, svc *service.Service) string {
	t.Helper()
	resp, err := svc.OpenView(context.Background(), "conv")
	require.NoError(t, err)
	return resp.ViewID
}

func itemTexts(t *testing.T, body []byte) []string {
	t.Helper()
	var resp struct {
		Items []struct {
			Message *struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"items"`
	}
	require.NoError(t, json.Unmarshal(body, &resp))
	var out []string
	for _, item := range resp.Items {
		if item.Message != nil {
			out = append(out, item.Message.Content)
		}
	}
	return out
}

func TestHealth(t *testing.T) {
	e := echo.New()
	h, _, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, h.Health(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestIngestRun(t *testing.T) {
	e := echo.New()
	h, _, db := newTestHandler(t)

	body := `{"id":"r1","parent_run_id":"conv","input":{"role":"user","content":"hi"},"output":"hello"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/runs", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, h.IngestRun(c))
	assert.Equal(t, http.StatusCreated, rec.Code)

	got, err := db.GetRun(context.Background(), "r1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, domain.RunTypeChat, got.Type)
	assert.Equal(t, domain.PayloadMessage, got.Input.Kind)
	assert.Equal(t, domain.PayloadText, got.Output.Kind)
}

func TestIngestRunValidation(t *testing.T) {
	e := echo.New()
	h, _, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/runs", bytes.NewBufferString(`{"name":"demo"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, h.IngestRun(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetRunNotFound(t *testing.T) {
	e := echo.New()
	h, _, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/runs/missing", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("run_id")
	c.SetParamValues("missing")

	require.NoError(t, h.GetRun(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListConversationRuns(t *testing.T) {
	e := echo.New()
	h, svc, _ := newTestHandler(t)
	seedRetry(t, svc)

	req := httptest.NewRequest(http.MethodGet, "/v1/conversations/conv/runs", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("conversation_id")
	c.SetParamValues("conv")

	require.NoError(t, h.ListConversationRuns(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Runs []domain.RunRecord `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Runs, 2)
}

func TestGetTranscriptAndSelect(t *testing.T) {
	e := echo.New()
	h, svc, _ := newTestHandler(t)
	seedRetry(t, svc)
	viewID := openView(t, svc)

	req := httptest.NewRequest(http.MethodGet, "/v1/views/"+viewID+"/transcript", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("view_id")
	c.SetParamValues(viewID)

	require.NoError(t, h.GetTranscript(c))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"hi", "hello"}, itemTexts(t, rec.Body.Bytes()))

	req = httptest.NewRequest(http.MethodPost, "/v1/views/"+viewID+"/select",
		bytes.NewBufferString(`{"root_run_id":"1","index":1}`))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	c = e.NewContext(req, rec)
	c.SetParamNames("view_id")
	c.SetParamValues(viewID)

	require.NoError(t, h.SelectBranch(c))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"hi again", "hey"}, itemTexts(t, rec.Body.Bytes()))

	var resp struct {
		Seq       uint64         `json:"seq"`
		Selection map[string]int `json:"selection"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, map[string]int{"1": 1}, resp.Selection)

	st, err := svc.State(viewID)
	require.NoError(t, err)
	assert.Equal(t, st.Revision, resp.Seq)
	assert.Equal(t, st.Selection, resp.Selection)
}

func TestSelectBranchValidation(t *testing.T) {
	e := echo.New()
	h, svc, _ := newTestHandler(t)
	viewID := openView(t, svc)

	req := httptest.NewRequest(http.MethodPost, "/v1/views/"+viewID+"/select",
		bytes.NewBufferString(`{"index":1}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("view_id")
	c.SetParamValues(viewID)

	require.NoError(t, h.SelectBranch(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetTranscriptUnknownView(t *testing.T) {
	e := echo.New()
	h, _, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/views/nope/transcript", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("view_id")
	c.SetParamValues("nope")

	require.NoError(t, h.GetTranscript(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOpenAndCloseView(t *testing.T) {
	e := echo.New()
	h, _, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/conversations/conv/views", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("conversation_id")
	c.SetParamValues("conv")

	require.NoError(t, h.OpenView(c))
	require.Equal(t, http.StatusCreated, rec.Code)
	var opened domain.OpenViewResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &opened))
	assert.NotEmpty(t, opened.ViewID)

	req = httptest.NewRequest(http.MethodDelete, "/v1/views/"+opened.ViewID, nil)
	rec = httptest.NewRecorder()
	c = e.NewContext(req, rec)
	c.SetParamNames("view_id")
	c.SetParamValues(opened.ViewID)

	require.NoError(t, h.CloseView(c))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestUpdateFeedback(t *testing.T) {
	e := echo.New()
	h, svc, db := newTestHandler(t)
	seedRetry(t, svc)

	req := httptest.NewRequest(http.MethodPut, "/v1/runs/1/feedback",
		bytes.NewBufferString(`{"feedback":{"score":1}}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("run_id")
	c.SetParamValues("1")

	require.NoError(t, h.UpdateFeedback(c))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"run_id":"1","feedback":{"score":1}}`, rec.Body.String())

	got, err := db.GetRun(context.Background(), "1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"score":1}`, string(got.Feedback))
}

func TestUpdateFeedbackNotFound(t *testing.T) {
	e := echo.New()
	h, _, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPut, "/v1/runs/missing/feedback",
		bytes.NewBufferString(`{"feedback":{"score":1}}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("run_id")
	c.SetParamValues("missing")

	require.NoError(t, h.UpdateFeedback(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteRunForbidden(t *testing.T) {
	e := echo.New()
	h, svc, _ := newTestHandler(t)
	seedRetry(t, svc)

	req := httptest.NewRequest(http.MethodDelete, "/v1/runs/1", nil)
	req.Header.Set(HeaderUserRole, "viewer")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("run_id")
	c.SetParamValues("1")

	require.NoError(t, h.DeleteRun(c))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestDeleteRun(t *testing.T) {
	e := echo.New()
	h, svc, db := newTestHandler(t)
	seedRetry(t, svc)

	req := httptest.NewRequest(http.MethodDelete, "/v1/runs/1", nil)
	req.Header.Set(HeaderUserRole, "owner")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("run_id")
	c.SetParamValues("1")

	require.NoError(t, h.DeleteRun(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp domain.DeleteRunResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.ElementsMatch(t, []string{"1", "2"}, resp.Deleted)

	got, err := db.GetRun(context.Background(), "2")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestGetSummary(t *testing.T) {
	e := echo.New()
	h, svc, _ := newTestHandler(t)
	seedRetry(t, svc)

	req := httptest.NewRequest(http.MethodGet, "/v1/conversations/conv/summary", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("conversation_id")
	c.SetParamValues("conv")

	require.NoError(t, h.GetSummary(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var summary domain.ConversationSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, 2, summary.RunCount)
	assert.True(t, summary.FirstMessageAt.Equal(t0))
}

func TestGetRunEvents(t *testing.T) {
	e := echo.New()
	h, svc, _ := newTestHandler(t)
	seedRetry(t, svc)

	req := httptest.NewRequest(http.MethodGet, "/v1/runs/1/events?types=run_ingested", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("run_id")
	c.SetParamValues("1")

	require.NoError(t, h.GetRunEvents(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Events []domain.Event `json:"events"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Events, 1)
	assert.Equal(t, domain.EventTypeRunIngested, resp.Events[0].Type)
}

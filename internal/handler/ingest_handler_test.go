package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leukemialens-go/internal/middleware"
	"leukemialens-go/internal/service"
)

type stubRunner struct {
	got service.IngestParams
	res service.IngestResult
	err error
}

func (s *stubRunner) Run(_ context.Context, params service.IngestParams) (service.IngestResult, error) {
	s.got = params
	return s.res, s.err
}

type stubComparer struct {
	res service.CompareResult
	err error
}

func (s *stubComparer) Compare(context.Context, string) (service.CompareResult, error) {
	return s.res, s.err
}

type stubBackfiller struct {
	gotYear  int
	gotUseAI bool
	n        int
	err      error
}

func (s *stubBackfiller) EnqueueYear(_ context.Context, year int, useAI bool) (int, error) {
	s.gotYear, s.gotUseAI = year, useAI
	return s.n, s.err
}

func newRouter(h *IngestHandler, adminToken string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	api := r.Group("/api/v1")
	api.GET("/ingest", h.Ingest)
	api.GET("/ingest/compare", h.Compare)
	api.POST("/ingest/backfill", middleware.AdminAuth(adminToken), h.Backfill)
	return r
}

func doRequest(r *gin.Engine, method, target string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestIngestReturnsPlainTextSummary(t *testing.T) {
	runner := &stubRunner{res: service.IngestResult{Window: "2024/12", Total: 321, Ingested: 18, Offset: 40}}
	r := newRouter(NewIngestHandler(runner, &stubComparer{}, &stubBackfiller{}), "")

	w := doRequest(r, http.MethodGet, "/api/v1/ingest?year=2024&month=12&offset=40&limit=20&useAI=true", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Ingestion for 2024/12: Found 321 total. Ingested 18 in this batch (offset 40).", w.Body.String())
	assert.Equal(t, service.IngestParams{Year: 2024, Month: 12, Offset: 40, Limit: 20, UseAI: true}, runner.got)
}

func TestIngestValidatesMonth(t *testing.T) {
	r := newRouter(NewIngestHandler(&stubRunner{}, &stubComparer{}, &stubBackfiller{}), "")

	w := doRequest(r, http.MethodGet, "/api/v1/ingest?year=2024&month=13", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(r, http.MethodGet, "/api/v1/ingest?month=6", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIngestServiceErrorReturns500(t *testing.T) {
	runner := &stubRunner{err: errors.New("esearch down")}
	r := newRouter(NewIngestHandler(runner, &stubComparer{}, &stubBackfiller{}), "")

	w := doRequest(r, http.MethodGet, "/api/v1/ingest", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "esearch down")
}

func TestCompareRequiresPMID(t *testing.T) {
	r := newRouter(NewIngestHandler(&stubRunner{}, &stubComparer{}, &stubBackfiller{}), "")

	w := doRequest(r, http.MethodGet, "/api/v1/ingest/compare", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCompareReturnsJSON(t *testing.T) {
	comparer := &stubComparer{res: service.CompareResult{PMID: "42", Title: "t"}}
	r := newRouter(NewIngestHandler(&stubRunner{}, comparer, &stubBackfiller{}), "")

	w := doRequest(r, http.MethodGet, "/api/v1/ingest/compare?pmid=42", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"pmid":"42"`)
}

func TestBackfillRequiresYear(t *testing.T) {
	r := newRouter(NewIngestHandler(&stubRunner{}, &stubComparer{}, &stubBackfiller{}), "")

	w := doRequest(r, http.MethodPost, "/api/v1/ingest/backfill", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBackfillAcceptsAndReportsTaskCount(t *testing.T) {
	backfiller := &stubBackfiller{n: 12}
	r := newRouter(NewIngestHandler(&stubRunner{}, &stubComparer{}, backfiller), "")

	w := doRequest(r, http.MethodPost, "/api/v1/ingest/backfill?year=2023&useAI=true", nil)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Contains(t, w.Body.String(), `"tasks_enqueued":12`)
	assert.Equal(t, 2023, backfiller.gotYear)
	assert.True(t, backfiller.gotUseAI)
}

func TestBackfillEnforcesAdminToken(t *testing.T) {
	backfiller := &stubBackfiller{n: 12}
	r := newRouter(NewIngestHandler(&stubRunner{}, &stubComparer{}, backfiller), "secret")

	w := doRequest(r, http.MethodPost, "/api/v1/ingest/backfill?year=2023", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doRequest(r, http.MethodPost, "/api/v1/ingest/backfill?year=2023", map[string]string{"X-Admin-Token": "secret"})
	assert.Equal(t, http.StatusAccepted, w.Code)
}

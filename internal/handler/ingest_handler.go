// Package handler 实现 HTTP 接口层。
package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"leukemialens-go/internal/service"
	"leukemialens-go/pkg/log"
)

type ingestRunner interface {
	Run(ctx context.Context, params service.IngestParams) (service.IngestResult, error)
}

type comparer interface {
	Compare(ctx context.Context, pmid string) (service.CompareResult, error)
}

type backfiller interface {
	EnqueueYear(ctx context.Context, year int, useAI bool) (int, error)
}

// IngestHandler 暴露采集触发、抽取比对与历史回填三个接口。
type IngestHandler struct {
	ingest   ingestRunner
	compare  comparer
	backfill backfiller
}

func NewIngestHandler(ingest ingestRunner, compare comparer, backfill backfiller) *IngestHandler {
	return &IngestHandler{ingest: ingest, compare: compare, backfill: backfill}
}

// Ingest 同步执行一批采集。
// GET /api/v1/ingest?year=2024&month=12&offset=0&limit=50&useAI=false
func (h *IngestHandler) Ingest(c *gin.Context) {
	params := service.IngestParams{
		Year:   intQuery(c, "year"),
		Month:  intQuery(c, "month"),
		Offset: intQuery(c, "offset"),
		Limit:  intQuery(c, "limit"),
		UseAI:  c.Query("useAI") == "true",
	}

	if params.Month != 0 && (params.Month < 1 || params.Month > 12) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "month 必须在 1-12 之间"})
		return
	}
	if params.Month != 0 && params.Year == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "指定 month 时必须同时指定 year"})
		return
	}

	res, err := h.ingest.Run(c.Request.Context(), params)
	if err != nil {
		log.Error("[IngestHandler] 采集执行失败", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.String(http.StatusOK, "Ingestion for %s: Found %d total. Ingested %d in this batch (offset %d).",
		res.Window, res.Total, res.Ingested, res.Offset)
}

// Compare 对单篇文献并排输出规则与 AI 抽取结果。
// GET /api/v1/ingest/compare?pmid=39711880
func (h *IngestHandler) Compare(c *gin.Context) {
	pmid := c.Query("pmid")
	if pmid == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少 pmid 参数"})
		return
	}

	res, err := h.compare.Compare(c.Request.Context(), pmid)
	if err != nil {
		log.Error("[IngestHandler] 抽取比对失败", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, res)
}

// Backfill 为指定年份投递全年的按月采集任务。
// POST /api/v1/ingest/backfill?year=2023&useAI=false
func (h *IngestHandler) Backfill(c *gin.Context) {
	year := intQuery(c, "year")
	if year == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少 year 参数"})
		return
	}

	n, err := h.backfill.EnqueueYear(c.Request.Context(), year, c.Query("useAI") == "true")
	if err != nil {
		log.Error("[IngestHandler] 回填任务投递失败", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "tasks_enqueued": n})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"year": year, "tasks_enqueued": n})
}

func intQuery(c *gin.Context, key string) int {
	v, _ := strconv.Atoi(c.Query(key))
	return v
}

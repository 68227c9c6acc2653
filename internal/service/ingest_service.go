// Package service 实现采集编排与诊断比对的业务逻辑。
package service

import (
	"context"
	"fmt"
	"time"

	"leukemialens-go/internal/pipeline"
	"leukemialens-go/internal/repository"
	"leukemialens-go/pkg/log"
	"leukemialens-go/pkg/pubmed"
)

// 默认滚动窗口的起点是当前月份往前推的月数，终点固定为远未来年份，
// 这样持续采集时无需移动右边界。
const (
	rollingWindowMonths = 2
	openEndedYear       = "2050"

	searchTermFormat = `(Leukemia[Title/Abstract]) AND ("%s"[Date - Publication] : "%s"[Date - Publication])`
)

// LiteratureSource 是采集服务对文献源客户端的最小依赖。
type LiteratureSource interface {
	Search(ctx context.Context, term string, limit, offset int) (pubmed.SearchResult, error)
	FetchDetails(ctx context.Context, ids []string) ([]pubmed.Article, error)
}

// RecordProcessor 处理单条文献记录。
type RecordProcessor interface {
	Process(ctx context.Context, article pubmed.Article, useAI bool) error
}

var _ RecordProcessor = (*pipeline.Processor)(nil)

// IngestParams 是一次采集调用的参数。Year/Month 为 0 表示使用默认滚动窗口，
// 只给 Year 表示整年窗口。
type IngestParams struct {
	Year   int
	Month  int
	Offset int
	Limit  int
	UseAI  bool
}

// IngestResult 汇报一次采集的结果。Total 是上游命中总数，
// Ingested 是本批次实际落库成功的条数。
type IngestResult struct {
	Window   string
	Total    int
	Ingested int
	Offset   int
}

// IngestService 编排一次分页采集：检索、去重、抓取详情、逐条处理。
type IngestService struct {
	source       LiteratureSource
	processor    RecordProcessor
	studyRepo    repository.StudyRepository
	coverageRepo repository.CoverageRepository

	defaultPageSize int
	now             func() time.Time
}

// NewIngestService 创建采集服务。defaultPageSize 在调用方未指定 Limit 时生效。
func NewIngestService(
	source LiteratureSource,
	processor RecordProcessor,
	studyRepo repository.StudyRepository,
	coverageRepo repository.CoverageRepository,
	defaultPageSize int,
) *IngestService {
	return &IngestService{
		source:          source,
		processor:       processor,
		studyRepo:       studyRepo,
		coverageRepo:    coverageRepo,
		defaultPageSize: defaultPageSize,
		now:             time.Now,
	}
}

// Run 执行一次采集。检索失败是唯一的致命错误；
// 单条记录的处理失败只记日志，不影响批次内的其余记录。
func (s *IngestService) Run(ctx context.Context, params IngestParams) (IngestResult, error) {
	if params.Limit <= 0 {
		params.Limit = s.defaultPageSize
	}

	term, window := s.resolveWindow(params)
	log.Infof("[IngestService] 步骤1: 检索窗口 %s (offset=%d, limit=%d)", window, params.Offset, params.Limit)

	result, err := s.source.Search(ctx, term, params.Limit, params.Offset)
	if err != nil {
		return IngestResult{}, fmt.Errorf("检索失败 (%s): %w", window, err)
	}

	// 覆盖率指标只在明确的 (年,月) 窗口下有意义，失败不阻断采集
	if params.Year != 0 && params.Month != 0 && s.coverageRepo != nil {
		if err := s.coverageRepo.Upsert(params.Year, params.Month, result.Total); err != nil {
			log.Warnf("[IngestService] 覆盖率指标写入失败 (%d-%02d): %v", params.Year, params.Month, err)
		}
	}

	newIDs := s.filterExisting(result.IDs)
	log.Infof("[IngestService] 步骤2: 命中 %d 条, 本页 %d 条, 去重后待处理 %d 条", result.Total, len(result.IDs), len(newIDs))

	if len(newIDs) == 0 {
		return IngestResult{Window: window, Total: result.Total, Offset: params.Offset}, nil
	}

	articles, err := s.source.FetchDetails(ctx, newIDs)
	if err != nil {
		return IngestResult{}, fmt.Errorf("抓取详情失败 (%s): %w", window, err)
	}

	log.Infof("[IngestService] 步骤3: 逐条处理 %d 条记录", len(articles))
	ingested := 0
	for _, article := range articles {
		if err := s.processor.Process(ctx, article, params.UseAI); err != nil {
			log.Errorf("[IngestService] 记录处理失败 (PMID:%s): %v", article.PMID, err)
			continue
		}
		ingested++
	}

	log.Infof("[IngestService] 完成: 窗口 %s, 总数 %d, 本批落库 %d", window, result.Total, ingested)
	return IngestResult{Window: window, Total: result.Total, Ingested: ingested, Offset: params.Offset}, nil
}

// RunAll 以游标方式对同一窗口连续翻页，直到 offset 越过上游命中总数。
// 历史回填任务用它吃完整个月，避免在调用方手写 offset 循环。
func (s *IngestService) RunAll(ctx context.Context, params IngestParams) (IngestResult, error) {
	if params.Limit <= 0 {
		params.Limit = s.defaultPageSize
	}

	agg := IngestResult{Offset: params.Offset}
	for {
		res, err := s.Run(ctx, params)
		if err != nil {
			return agg, err
		}
		agg.Window = res.Window
		agg.Total = res.Total
		agg.Ingested += res.Ingested

		params.Offset += params.Limit
		if params.Offset >= res.Total {
			return agg, nil
		}
	}
}

// resolveWindow 把参数解析为检索式与窗口标签。
func (s *IngestService) resolveWindow(params IngestParams) (term, window string) {
	switch {
	case params.Year != 0 && params.Month != 0:
		lastDay := time.Date(params.Year, time.Month(params.Month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
		start := fmt.Sprintf("%04d/%02d/01", params.Year, params.Month)
		end := fmt.Sprintf("%04d/%02d/%02d", params.Year, params.Month, lastDay)
		return fmt.Sprintf(searchTermFormat, start, end), fmt.Sprintf("%04d/%02d", params.Year, params.Month)

	case params.Year != 0:
		start := fmt.Sprintf("%04d/01/01", params.Year)
		end := fmt.Sprintf("%04d/12/31", params.Year)
		return fmt.Sprintf(searchTermFormat, start, end), fmt.Sprintf("%04d", params.Year)

	default:
		from := s.now().UTC().AddDate(0, -rollingWindowMonths, 0)
		start := fmt.Sprintf("%04d/%02d/01", from.Year(), int(from.Month()))
		return fmt.Sprintf(searchTermFormat, start, openEndedYear), fmt.Sprintf("%s..open", start)
	}
}

// filterExisting 过滤已入库的 ID，保持原始顺序。
// 查询失败时降级为不过滤，宁可重复 upsert 也不中断采集。
func (s *IngestService) filterExisting(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}

	sourceIDs := make([]string, len(ids))
	for i, id := range ids {
		sourceIDs[i] = "PMID:" + id
	}

	existing, err := s.studyRepo.FindExistingSourceIDs(sourceIDs)
	if err != nil {
		log.Warnf("[IngestService] 去重查询失败，降级为全量处理: %v", err)
		return ids
	}

	var fresh []string
	for i, id := range ids {
		if !existing[sourceIDs[i]] {
			fresh = append(fresh, id)
		}
	}
	return fresh
}

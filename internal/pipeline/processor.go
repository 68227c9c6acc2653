// Package pipeline 实现单篇文献的落库与向量化处理。
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"leukemialens-go/internal/chunker"
	"leukemialens-go/internal/extractor"
	"leukemialens-go/internal/model"
	"leukemialens-go/internal/repository"
	"leukemialens-go/pkg/log"
	"leukemialens-go/pkg/pubmed"
)

const (
	// 向量文档里标题前缀与突变列表的投影上限
	titlePrefixLen  = 100
	maxDocMutations = 10

	linkURLFormat = "https://pubmed.ncbi.nlm.nih.gov/%s/"
)

// Embedder 是处理器对向量化客户端的最小依赖。
type Embedder interface {
	CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorIndexer 把分块文档写入向量索引，docID 相同则原地覆盖。
type VectorIndexer interface {
	UpsertDocument(ctx context.Context, docID string, doc *model.StudyChunkDocument) error
}

// Processor 串联抽取、落库与向量化三个阶段。
// 结构化落库是权威路径：向量化任何一步失败都只记日志，不回滚已写入的行。
type Processor struct {
	studyRepo     repository.StudyRepository
	treatmentRepo repository.TreatmentRepository

	ruleExtractor extractor.Extractor
	aiExtractor   extractor.Extractor

	embedder     Embedder
	indexer      VectorIndexer
	modelVersion string

	now func() time.Time
}

// NewProcessor 创建处理器。aiExtractor、embedder、indexer 均可为 nil，
// 对应能力缺失时处理器自动降级（仅规则抽取 / 跳过向量化）。
func NewProcessor(
	studyRepo repository.StudyRepository,
	treatmentRepo repository.TreatmentRepository,
	ruleExtractor extractor.Extractor,
	aiExtractor extractor.Extractor,
	embedder Embedder,
	indexer VectorIndexer,
	modelVersion string,
) *Processor {
	return &Processor{
		studyRepo:     studyRepo,
		treatmentRepo: treatmentRepo,
		ruleExtractor: ruleExtractor,
		aiExtractor:   aiExtractor,
		embedder:      embedder,
		indexer:       indexer,
		modelVersion:  modelVersion,
		now:           time.Now,
	}
}

// Process 处理一条规范化的文献记录，useAI 控制是否优先使用 AI 抽取。
// 返回错误表示结构化落库失败，该条记录视为失败；向量化失败不影响返回值。
func (p *Processor) Process(ctx context.Context, article pubmed.Article, useAI bool) error {
	sourceID := "PMID:" + article.PMID
	text := strings.TrimSpace(article.Title + "\n\n" + article.Abstract)

	// 步骤1: 抽取结构化标签
	md, method := p.extract(ctx, text, useAI)

	// 步骤2: upsert 文献主表
	study := &model.Study{
		Title:               article.Title,
		Abstract:            article.Abstract,
		PubDate:             article.PubDate,
		Journal:             article.Journal,
		Authors:             article.Authors,
		Affiliations:        article.Affiliations,
		DiseaseSubtype:      strings.Join(md.DiseaseSubtypes, ","),
		HasComplexKaryotype: md.HasComplexKaryotype,
		TransplantContext:   md.TransplantContext,
		SourceID:            sourceID,
		SourceType:          "pubmed",
		ExtractionMethod:    method,
		ProcessedAt:         p.now().UTC(),
	}
	if err := p.studyRepo.Upsert(study); err != nil {
		return err
	}

	// 步骤3: 整体替换关联标签
	if err := p.studyRepo.ReplaceMutations(study.ID, md.Mutations); err != nil {
		return fmt.Errorf("替换突变标签失败 (study=%d): %w", study.ID, err)
	}
	if err := p.studyRepo.ReplaceTopics(study.ID, md.Topics); err != nil {
		return fmt.Errorf("替换主题标签失败 (study=%d): %w", study.ID, err)
	}
	if err := p.replaceTreatments(study.ID, md.Treatments); err != nil {
		return err
	}

	// 步骤4: 补写外部链接
	link := &model.Link{
		StudyID:  study.ID,
		URL:      fmt.Sprintf(linkURLFormat, article.PMID),
		LinkType: "pubmed",
	}
	if err := p.studyRepo.InsertLinkIfAbsent(link); err != nil {
		return fmt.Errorf("写入文献链接失败 (study=%d): %w", study.ID, err)
	}

	// 步骤5: 分块向量化（尽力而为）
	p.indexChunks(ctx, study, md)

	log.Infof("[IngestPipeline] 处理完成: %s (study=%d, method=%s)", sourceID, study.ID, method)
	return nil
}

// extract 返回抽取结果与实际使用的方法。AI 抽取失败时回退到规则抽取。
func (p *Processor) extract(ctx context.Context, text string, useAI bool) (extractor.Metadata, string) {
	if useAI && p.aiExtractor != nil {
		md, err := p.aiExtractor.Extract(ctx, text)
		if err == nil {
			return md, p.aiExtractor.Method()
		}
		log.Warnf("[IngestPipeline] AI 抽取失败，回退到规则抽取: %v", err)
	}
	md, _ := p.ruleExtractor.Extract(ctx, text)
	return md, p.ruleExtractor.Method()
}

// replaceTreatments 把治疗代码解析为参考表主键后整体替换。
// 代码未收录时告警并跳过该代码，不影响其余代码。
func (p *Processor) replaceTreatments(studyID uint, codes []string) error {
	var ids []uint
	for _, code := range codes {
		id, err := p.treatmentRepo.FindIDByCode(code)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				log.Warnf("[IngestPipeline] 治疗代码未收录，跳过: %s", code)
				continue
			}
			return fmt.Errorf("查询治疗代码失败 (%s): %w", code, err)
		}
		ids = append(ids, id)
	}
	if err := p.studyRepo.ReplaceTreatments(studyID, ids); err != nil {
		return fmt.Errorf("替换治疗关联失败 (study=%d): %w", studyID, err)
	}
	return nil
}

// indexChunks 分块、向量化并写入索引。任何失败只降低检索覆盖，不影响结构化数据。
func (p *Processor) indexChunks(ctx context.Context, study *model.Study, md extractor.Metadata) {
	if p.embedder == nil || p.indexer == nil {
		return
	}

	chunks := chunker.ChunkArticle(study.Title, study.Abstract)
	if len(chunks) == 0 {
		return
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}

	vectors, err := p.embedder.CreateEmbeddings(ctx, texts)
	if err != nil {
		log.Warnf("[IngestPipeline] 向量化失败，结构化数据已入库 (study=%d): %v", study.ID, err)
		return
	}
	if len(vectors) != len(chunks) {
		log.Warnf("[IngestPipeline] 向量数量与分块数量不符 (study=%d): %d != %d", study.ID, len(vectors), len(chunks))
		return
	}

	titlePrefix := study.Title
	if len(titlePrefix) > titlePrefixLen {
		titlePrefix = titlePrefix[:titlePrefixLen]
	}
	mutations := md.Mutations
	if len(mutations) > maxDocMutations {
		mutations = mutations[:maxDocMutations]
	}

	processedAt := p.now().UTC().Format(time.RFC3339)
	for i, c := range chunks {
		docID := fmt.Sprintf("study-%d-chunk-%d", study.ID, c.Index)
		doc := &model.StudyChunkDocument{
			VectorID:        docID,
			StudyID:         study.ID,
			SourceID:        study.SourceID,
			ChunkIndex:      c.Index,
			TitlePrefix:     titlePrefix,
			DiseaseSubtypes: md.DiseaseSubtypes,
			Mutations:       mutations,
			TextContent:     c.Content,
			Vector:          vectors[i],
			ModelVersion:    p.modelVersion,
			ProcessedAt:     processedAt,
		}
		if err := p.indexer.UpsertDocument(ctx, docID, doc); err != nil {
			log.Warnf("[IngestPipeline] 向量文档写入失败 (%s): %v", docID, err)
		}
	}
	log.Infof("[IngestPipeline] 向量化完成: study=%d, %d 个分块", study.ID, len(chunks))
}

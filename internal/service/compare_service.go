package service

import (
	"context"
	"fmt"
	"strings"

	"leukemialens-go/internal/extractor"
)

// LabelDiff 是某个标签类别下规则抽取与 AI 抽取的集合差异。
type LabelDiff struct {
	Shared   []string `json:"shared"`
	RuleOnly []string `json:"rule_only"`
	AIOnly   []string `json:"ai_only"`
}

// CompareResult 把两种抽取方法的完整输出与逐类别差异并排呈现。
type CompareResult struct {
	PMID  string               `json:"pmid"`
	Title string               `json:"title"`
	Rule  extractor.Metadata   `json:"rule"`
	AI    extractor.Metadata   `json:"ai"`
	Diff  map[string]LabelDiff `json:"diff"`
}

// CompareService 对单篇文献并行跑规则抽取与 AI 抽取，用于人工核对两者的偏差。
type CompareService struct {
	source LiteratureSource
	rule   extractor.Extractor
	ai     extractor.Extractor
}

func NewCompareService(source LiteratureSource, rule, ai extractor.Extractor) *CompareService {
	return &CompareService{source: source, rule: rule, ai: ai}
}

// Compare 抓取指定 PMID 的记录并输出两种抽取方法的差异。
// AI 抽取失败对比对是致命的，这个端点本身就是用来检验 AI 的。
func (s *CompareService) Compare(ctx context.Context, pmid string) (CompareResult, error) {
	articles, err := s.source.FetchDetails(ctx, []string{pmid})
	if err != nil {
		return CompareResult{}, fmt.Errorf("抓取文献详情失败 (PMID:%s): %w", pmid, err)
	}
	if len(articles) == 0 {
		return CompareResult{}, fmt.Errorf("未找到文献 (PMID:%s)", pmid)
	}

	article := articles[0]
	text := strings.TrimSpace(article.Title + "\n\n" + article.Abstract)

	ruleMD, err := s.rule.Extract(ctx, text)
	if err != nil {
		return CompareResult{}, fmt.Errorf("规则抽取失败 (PMID:%s): %w", pmid, err)
	}
	aiMD, err := s.ai.Extract(ctx, text)
	if err != nil {
		return CompareResult{}, fmt.Errorf("AI 抽取失败 (PMID:%s): %w", pmid, err)
	}

	return CompareResult{
		PMID:  pmid,
		Title: article.Title,
		Rule:  ruleMD,
		AI:    aiMD,
		Diff: map[string]LabelDiff{
			"mutations":        diffLabels(ruleMD.Mutations, aiMD.Mutations),
			"topics":           diffLabels(ruleMD.Topics, aiMD.Topics),
			"disease_subtypes": diffLabels(ruleMD.DiseaseSubtypes, aiMD.DiseaseSubtypes),
			"treatments":       diffLabels(ruleMD.Treatments, aiMD.Treatments),
		},
	}, nil
}

// diffLabels 计算两个标签列表的交集与单侧差集，保持各自的原始顺序。
func diffLabels(rule, ai []string) LabelDiff {
	inRule := toSet(rule)
	inAI := toSet(ai)

	diff := LabelDiff{Shared: []string{}, RuleOnly: []string{}, AIOnly: []string{}}
	for _, l := range rule {
		if inAI[l] {
			diff.Shared = append(diff.Shared, l)
		} else {
			diff.RuleOnly = append(diff.RuleOnly, l)
		}
	}
	for _, l := range ai {
		if !inRule[l] {
			diff.AIOnly = append(diff.AIOnly, l)
		}
	}
	return diff
}

func toSet(labels []string) map[string]bool {
	set := make(map[string]bool, len(labels))
	for _, l := range labels {
		set[l] = true
	}
	return set
}

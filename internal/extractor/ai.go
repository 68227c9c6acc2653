package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"leukemialens-go/pkg/log"
)

// ChatCompleter 是 AI 抽取器对大模型客户端的最小依赖。
type ChatCompleter interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

const aiSystemPrompt = `You are a hematology literature curator. Extract structured labels from the given leukemia paper text.
Respond with a single JSON object and nothing else, using exactly these keys:
{
  "mutations": ["gene symbols, uppercase, e.g. FLT3, NPM1, BCR-ABL1"],
  "topics": ["research topics, e.g. Immunotherapy, CAR-T, Prognosis, MRD"],
  "disease_subtypes": ["abbreviations among AML, CML, ALL, CLL, MDS"],
  "treatments": ["treatment codes, uppercase, e.g. VENETOCLAX, VEN-AZA, 7+3"],
  "has_complex_karyotype": false,
  "transplant_context": false
}
Only include labels explicitly supported by the text. Use empty arrays when nothing applies.`

// AIExtractor 调用大模型做抽取，产出与规则抽取器相同形状的结果。
// 任何模型错误或响应解析失败都向上返回错误，由调用方决定是否回退到规则抽取。
type AIExtractor struct {
	llm ChatCompleter
}

func NewAIExtractor(llm ChatCompleter) *AIExtractor {
	return &AIExtractor{llm: llm}
}

func (e *AIExtractor) Method() string {
	return MethodAI
}

func (e *AIExtractor) Extract(ctx context.Context, text string) (Metadata, error) {
	if strings.TrimSpace(text) == "" {
		return Metadata{}, nil
	}

	raw, err := e.llm.Complete(ctx, aiSystemPrompt, text)
	if err != nil {
		return Metadata{}, fmt.Errorf("AI 抽取调用失败: %w", err)
	}

	var payload struct {
		Mutations           []string `json:"mutations"`
		Topics              []string `json:"topics"`
		DiseaseSubtypes     []string `json:"disease_subtypes"`
		Treatments          []string `json:"treatments"`
		HasComplexKaryotype bool     `json:"has_complex_karyotype"`
		TransplantContext   bool     `json:"transplant_context"`
	}
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &payload); err != nil {
		log.Warnf("[AIExtractor] 模型响应不是合法 JSON: %.120s", raw)
		return Metadata{}, fmt.Errorf("解析 AI 抽取响应失败: %w", err)
	}

	return Metadata{
		Mutations:           normalizeLabels(payload.Mutations, true),
		Topics:              normalizeLabels(payload.Topics, false),
		DiseaseSubtypes:     normalizeLabels(payload.DiseaseSubtypes, true),
		Treatments:          normalizeLabels(payload.Treatments, true),
		HasComplexKaryotype: payload.HasComplexKaryotype,
		TransplantContext:   payload.TransplantContext,
	}, nil
}

// stripCodeFence 去掉模型偶尔包在 JSON 外面的 markdown 代码块标记。
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}

// normalizeLabels 去空白、去重，upper 为 true 时统一转大写。
func normalizeLabels(in []string, upper bool) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if upper {
			s = strings.ToUpper(s)
		}
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// Package extractor 从文献标题与摘要中抽取结构化的血液肿瘤学标签。
package extractor

import "context"

// 抽取方法标识，写入 studies.extraction_method 字段
const (
	MethodRegex = "regex"
	MethodAI    = "ai"
)

// Metadata 是一次抽取的结果。各列表内无重复项，顺序与规则表的声明顺序一致。
type Metadata struct {
	Mutations           []string `json:"mutations"`
	Topics              []string `json:"topics"`
	DiseaseSubtypes     []string `json:"disease_subtypes"`
	Treatments          []string `json:"treatments"`
	HasComplexKaryotype bool     `json:"has_complex_karyotype"`
	TransplantContext   bool     `json:"transplant_context"`
}

// Extractor 把自由文本映射为结构化标签。实现必须对空文本返回空结果而非报错。
type Extractor interface {
	Extract(ctx context.Context, text string) (Metadata, error)
	Method() string
}

package model

// StudyChunkDocument 定义了存储在 Elasticsearch 中的分块向量文档结构。
// VectorID 是 (study id, chunk index) 的确定性函数（"study-{id}-chunk-{i}"），
// 因此重复采集同一篇文献会原地覆盖旧向量，而不会留下孤儿文档。
type StudyChunkDocument struct {
	VectorID        string    `json:"vector_id"`
	StudyID         uint      `json:"study_id"`
	SourceID        string    `json:"source_id"`
	ChunkIndex      int       `json:"chunk_index"`
	TitlePrefix     string    `json:"title_prefix"`
	DiseaseSubtypes []string  `json:"disease_subtypes"`
	Mutations       []string  `json:"mutations"`
	TextContent     string    `json:"text_content"`
	Vector          []float32 `json:"vector"`
	ModelVersion    string    `json:"model_version"`
	ProcessedAt     string    `json:"processed_at"`
}

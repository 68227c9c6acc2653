// Package model 定义了与数据库表对应的 Go 结构体。
package model

import "time"

// Study 对应于数据库中的 studies 表，一条记录代表一篇已入库的文献。
// SourceID（如 "PMID:39711880"）是上游分配的唯一键，重复采集时按它做 upsert。
type Study struct {
	ID                  uint      `gorm:"primaryKey;autoIncrement;column:id"`
	Title               string    `gorm:"type:text;not null;column:title"`
	Abstract            string    `gorm:"type:text;column:abstract"`
	PubDate             string    `gorm:"type:varchar(10);column:pub_date"`
	Journal             string    `gorm:"type:varchar(255);column:journal"`
	Authors             string    `gorm:"type:text;column:authors"`
	Affiliations        string    `gorm:"type:text;column:affiliations"`
	DiseaseSubtype      string    `gorm:"type:varchar(100);column:disease_subtype"`
	HasComplexKaryotype bool      `gorm:"not null;default:false;column:has_complex_karyotype"`
	TransplantContext   bool      `gorm:"not null;default:false;column:transplant_context"`
	SourceID            string    `gorm:"type:varchar(64);not null;uniqueIndex;column:source_id"`
	SourceType          string    `gorm:"type:varchar(20);not null;column:source_type"`
	ExtractionMethod    string    `gorm:"type:varchar(20);column:extraction_method"`
	ProcessedAt         time.Time `gorm:"column:processed_at"`
}

func (Study) TableName() string {
	return "studies"
}

// Mutation 对应 mutations 表，记录某篇文献中出现的基因突变标签。
type Mutation struct {
	ID         uint   `gorm:"primaryKey;autoIncrement;column:id"`
	StudyID    uint   `gorm:"not null;index;column:study_id"`
	GeneSymbol string `gorm:"type:varchar(20);not null;column:gene_symbol"`
}

func (Mutation) TableName() string {
	return "mutations"
}

// StudyTopic 对应 study_topics 表，记录文献的主题标签。
type StudyTopic struct {
	ID        uint   `gorm:"primaryKey;autoIncrement;column:id"`
	StudyID   uint   `gorm:"not null;index;column:study_id"`
	TopicName string `gorm:"type:varchar(50);not null;column:topic_name"`
}

func (StudyTopic) TableName() string {
	return "study_topics"
}

// RefTreatment 对应 ref_treatments 参考表，Code 是抽取器产出的治疗代码。
type RefTreatment struct {
	ID   uint   `gorm:"primaryKey;autoIncrement;column:id"`
	Code string `gorm:"type:varchar(30);not null;uniqueIndex;column:code"`
	Name string `gorm:"type:varchar(100);not null;column:name"`
	Type string `gorm:"type:varchar(20);not null;column:type"`
}

func (RefTreatment) TableName() string {
	return "ref_treatments"
}

// StudyTreatment 对应 treatments 关联表，外键指向 ref_treatments。
type StudyTreatment struct {
	ID          uint `gorm:"primaryKey;autoIncrement;column:id"`
	StudyID     uint `gorm:"not null;index;column:study_id"`
	TreatmentID uint `gorm:"not null;column:treatment_id"`
}

func (StudyTreatment) TableName() string {
	return "treatments"
}

// Link 对应 links 表，(study_id, url) 上有唯一约束以支持 insert-if-absent。
type Link struct {
	ID       uint   `gorm:"primaryKey;autoIncrement;column:id"`
	StudyID  uint   `gorm:"not null;uniqueIndex:idx_links_study_url;column:study_id"`
	URL      string `gorm:"type:varchar(255);not null;uniqueIndex:idx_links_study_url;column:url"`
	LinkType string `gorm:"type:varchar(20);column:link_type"`
}

func (Link) TableName() string {
	return "links"
}

// CoverageMetric 对应 coverage_metrics 表，记录某 (年,月) 上游报告的命中总数。
// 仅用于覆盖率核对与监控，采集管道本身不读取它。
type CoverageMetric struct {
	ID          uint      `gorm:"primaryKey;autoIncrement;column:id"`
	Year        int       `gorm:"not null;uniqueIndex:idx_coverage_year_month;column:year"`
	Month       int       `gorm:"not null;uniqueIndex:idx_coverage_year_month;column:month"`
	PubmedTotal int       `gorm:"not null;column:pubmed_total"`
	LastUpdated time.Time `gorm:"column:last_updated"`
}

func (CoverageMetric) TableName() string {
	return "coverage_metrics"
}

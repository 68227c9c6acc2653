package repository

import (
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"leukemialens-go/internal/model"
)

// CoverageRepository 管理 (年,月) 维度的上游命中总数指标。
type CoverageRepository interface {
	Upsert(year, month, pubmedTotal int) error
}

type coverageRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewCoverageRepository(db *gorm.DB) CoverageRepository {
	return &coverageRepository{db: db, now: time.Now}
}

func (r *coverageRepository) Upsert(year, month, pubmedTotal int) error {
	metric := model.CoverageMetric{
		Year:        year,
		Month:       month,
		PubmedTotal: pubmedTotal,
		LastUpdated: r.now().UTC(),
	}
	err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "year"}, {Name: "month"}},
		DoUpdates: clause.AssignmentColumns([]string{"pubmed_total", "last_updated"}),
	}).Create(&metric).Error
	if err != nil {
		return fmt.Errorf("upsert coverage_metrics 失败 (%d-%02d): %w", year, month, err)
	}
	return nil
}

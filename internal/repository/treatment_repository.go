package repository

import (
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"leukemialens-go/internal/model"
	"leukemialens-go/pkg/log"
)

// TreatmentRepository 管理 ref_treatments 参考表。
type TreatmentRepository interface {
	// FindIDByCode 按治疗代码查主键，未收录时返回 gorm.ErrRecordNotFound。
	FindIDByCode(code string) (uint, error)
	// EnsureSeeded 幂等地写入参考条目，已存在的代码保持不变。
	EnsureSeeded(entries []model.RefTreatment) error
}

type treatmentRepository struct {
	db *gorm.DB
}

func NewTreatmentRepository(db *gorm.DB) TreatmentRepository {
	return &treatmentRepository{db: db}
}

func (r *treatmentRepository) FindIDByCode(code string) (uint, error) {
	var treatment model.RefTreatment
	if err := r.db.Select("id").Where("code = ?", code).First(&treatment).Error; err != nil {
		return 0, err
	}
	return treatment.ID, nil
}

func (r *treatmentRepository) EnsureSeeded(entries []model.RefTreatment) error {
	if len(entries) == 0 {
		return nil
	}
	err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "code"}},
		DoNothing: true,
	}).Create(&entries).Error
	if err != nil {
		return fmt.Errorf("初始化 ref_treatments 失败: %w", err)
	}
	log.Infof("[TreatmentRepository] ref_treatments 参考表就绪, 共 %d 条", len(entries))
	return nil
}

// Package repository 提供对数据库表的访问接口与 GORM 实现。
package repository

import (
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"leukemialens-go/internal/model"
)

// StudyRepository 定义了文献主表及其关联表的写入操作。
type StudyRepository interface {
	// Upsert 按 source_id 插入或更新文献，返回后 study.ID 保证已填充。
	Upsert(study *model.Study) error
	// FindExistingSourceIDs 返回给定 source_id 中已入库的子集。
	FindExistingSourceIDs(sourceIDs []string) (map[string]bool, error)
	// ReplaceMutations 以先删后插的方式整体替换某篇文献的突变标签。
	ReplaceMutations(studyID uint, genes []string) error
	// ReplaceTopics 整体替换主题标签。
	ReplaceTopics(studyID uint, topics []string) error
	// ReplaceTreatments 整体替换治疗关联，treatmentIDs 为 ref_treatments 主键。
	ReplaceTreatments(studyID uint, treatmentIDs []uint) error
	// InsertLinkIfAbsent 插入外部链接，(study_id, url) 已存在时静默跳过。
	InsertLinkIfAbsent(link *model.Link) error
}

type studyRepository struct {
	db *gorm.DB
}

// NewStudyRepository 创建文献仓库实例。
func NewStudyRepository(db *gorm.DB) StudyRepository {
	return &studyRepository{db: db}
}

// 冲突时更新的列。source_id 与 source_type 是身份信息，不参与更新。
var studyUpdateColumns = []string{
	"title", "abstract", "pub_date", "journal", "authors", "affiliations",
	"disease_subtype", "has_complex_karyotype", "transplant_context",
	"extraction_method", "processed_at",
}

func (r *studyRepository) Upsert(study *model.Study) error {
	err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "source_id"}},
		DoUpdates: clause.AssignmentColumns(studyUpdateColumns),
	}).Create(study).Error
	if err != nil {
		return fmt.Errorf("upsert 文献失败 (source_id=%s): %w", study.SourceID, err)
	}

	// 冲突更新路径下主键不会回填，这里按唯一键补查一次
	if study.ID == 0 {
		var existing model.Study
		if err := r.db.Select("id").Where("source_id = ?", study.SourceID).First(&existing).Error; err != nil {
			return fmt.Errorf("查询文献主键失败 (source_id=%s): %w", study.SourceID, err)
		}
		study.ID = existing.ID
	}
	return nil
}

func (r *studyRepository) FindExistingSourceIDs(sourceIDs []string) (map[string]bool, error) {
	if len(sourceIDs) == 0 {
		return map[string]bool{}, nil
	}

	var found []string
	err := r.db.Model(&model.Study{}).
		Where("source_id IN ?", sourceIDs).
		Pluck("source_id", &found).Error
	if err != nil {
		return nil, fmt.Errorf("查询已入库 source_id 失败: %w", err)
	}

	existing := make(map[string]bool, len(found))
	for _, id := range found {
		existing[id] = true
	}
	return existing, nil
}

func (r *studyRepository) ReplaceMutations(studyID uint, genes []string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("study_id = ?", studyID).Delete(&model.Mutation{}).Error; err != nil {
			return err
		}
		if len(genes) == 0 {
			return nil
		}
		rows := make([]model.Mutation, 0, len(genes))
		for _, g := range genes {
			rows = append(rows, model.Mutation{StudyID: studyID, GeneSymbol: g})
		}
		return tx.Create(&rows).Error
	})
}

func (r *studyRepository) ReplaceTopics(studyID uint, topics []string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("study_id = ?", studyID).Delete(&model.StudyTopic{}).Error; err != nil {
			return err
		}
		if len(topics) == 0 {
			return nil
		}
		rows := make([]model.StudyTopic, 0, len(topics))
		for _, tp := range topics {
			rows = append(rows, model.StudyTopic{StudyID: studyID, TopicName: tp})
		}
		return tx.Create(&rows).Error
	})
}

func (r *studyRepository) ReplaceTreatments(studyID uint, treatmentIDs []uint) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("study_id = ?", studyID).Delete(&model.StudyTreatment{}).Error; err != nil {
			return err
		}
		if len(treatmentIDs) == 0 {
			return nil
		}
		rows := make([]model.StudyTreatment, 0, len(treatmentIDs))
		for _, id := range treatmentIDs {
			rows = append(rows, model.StudyTreatment{StudyID: studyID, TreatmentID: id})
		}
		return tx.Create(&rows).Error
	})
}

func (r *studyRepository) InsertLinkIfAbsent(link *model.Link) error {
	return r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(link).Error
}

package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"leukemialens-go/internal/model"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&model.Study{}, &model.Mutation{}, &model.StudyTopic{},
		&model.RefTreatment{}, &model.StudyTreatment{}, &model.Link{},
		&model.CoverageMetric{},
	))
	return db
}

func sampleStudy(sourceID string) *model.Study {
	return &model.Study{
		Title:            "FLT3 inhibitors in AML",
		Abstract:         "Abstract body.",
		PubDate:          "2024-12-05",
		Journal:          "Blood",
		SourceID:         sourceID,
		SourceType:       "pubmed",
		ExtractionMethod: "regex",
		ProcessedAt:      time.Now().UTC(),
	}
}

func TestStudyUpsertInsertsThenUpdatesInPlace(t *testing.T) {
	db := newTestDB(t)
	repo := NewStudyRepository(db)

	first := sampleStudy("PMID:1001")
	require.NoError(t, repo.Upsert(first))
	require.NotZero(t, first.ID)

	second := sampleStudy("PMID:1001")
	second.Title = "Updated title"
	require.NoError(t, repo.Upsert(second))
	assert.Equal(t, first.ID, second.ID)

	var count int64
	require.NoError(t, db.Model(&model.Study{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)

	var stored model.Study
	require.NoError(t, db.First(&stored, first.ID).Error)
	assert.Equal(t, "Updated title", stored.Title)
	assert.Equal(t, "PMID:1001", stored.SourceID)
}

func TestFindExistingSourceIDs(t *testing.T) {
	db := newTestDB(t)
	repo := NewStudyRepository(db)

	require.NoError(t, repo.Upsert(sampleStudy("PMID:1")))
	require.NoError(t, repo.Upsert(sampleStudy("PMID:2")))

	existing, err := repo.FindExistingSourceIDs([]string{"PMID:1", "PMID:2", "PMID:3"})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"PMID:1": true, "PMID:2": true}, existing)

	existing, err = repo.FindExistingSourceIDs(nil)
	require.NoError(t, err)
	assert.Empty(t, existing)
}

func TestReplaceMutationsSwapsCleanly(t *testing.T) {
	db := newTestDB(t)
	repo := NewStudyRepository(db)

	study := sampleStudy("PMID:5")
	require.NoError(t, repo.Upsert(study))

	require.NoError(t, repo.ReplaceMutations(study.ID, []string{"FLT3", "NPM1"}))
	require.NoError(t, repo.ReplaceMutations(study.ID, []string{"TP53"}))

	var rows []model.Mutation
	require.NoError(t, db.Where("study_id = ?", study.ID).Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, "TP53", rows[0].GeneSymbol)

	// 替换为空集等价于清空
	require.NoError(t, repo.ReplaceMutations(study.ID, nil))
	var count int64
	require.NoError(t, db.Model(&model.Mutation{}).Where("study_id = ?", study.ID).Count(&count).Error)
	assert.EqualValues(t, 0, count)
}

func TestInsertLinkIfAbsentIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	repo := NewStudyRepository(db)

	study := sampleStudy("PMID:7")
	require.NoError(t, repo.Upsert(study))

	link := &model.Link{StudyID: study.ID, URL: "https://pubmed.ncbi.nlm.nih.gov/7/", LinkType: "pubmed"}
	require.NoError(t, repo.InsertLinkIfAbsent(link))
	require.NoError(t, repo.InsertLinkIfAbsent(&model.Link{StudyID: study.ID, URL: link.URL, LinkType: "pubmed"}))

	var count int64
	require.NoError(t, db.Model(&model.Link{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestTreatmentSeedingAndLookup(t *testing.T) {
	db := newTestDB(t)
	repo := NewTreatmentRepository(db)

	entries := []model.RefTreatment{
		{Code: "VEN-AZA", Name: "Venetoclax + Azacitidine", Type: "protocol"},
		{Code: "VENETOCLAX", Name: "Venetoclax", Type: "drug"},
	}
	require.NoError(t, repo.EnsureSeeded(entries))
	// 二次播种不应报错也不应翻倍
	require.NoError(t, repo.EnsureSeeded([]model.RefTreatment{
		{Code: "VEN-AZA", Name: "Venetoclax + Azacitidine", Type: "protocol"},
		{Code: "VENETOCLAX", Name: "Venetoclax", Type: "drug"},
	}))

	var count int64
	require.NoError(t, db.Model(&model.RefTreatment{}).Count(&count).Error)
	assert.EqualValues(t, 2, count)

	id, err := repo.FindIDByCode("VEN-AZA")
	require.NoError(t, err)
	assert.NotZero(t, id)

	_, err = repo.FindIDByCode("UNKNOWN-DRUG")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestCoverageUpsertKeepsOneRowPerMonth(t *testing.T) {
	db := newTestDB(t)
	repo := NewCoverageRepository(db)

	require.NoError(t, repo.Upsert(2024, 12, 100))
	require.NoError(t, repo.Upsert(2024, 12, 250))
	require.NoError(t, repo.Upsert(2025, 1, 50))

	var rows []model.CoverageMetric
	require.NoError(t, db.Order("year, month").Find(&rows).Error)
	require.Len(t, rows, 2)
	assert.Equal(t, 250, rows[0].PubmedTotal)
	assert.Equal(t, 2025, rows[1].Year)
	assert.Equal(t, 50, rows[1].PubmedTotal)
}

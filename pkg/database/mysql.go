package database

import (
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"leukemialens-go/internal/model"
	"leukemialens-go/pkg/log"
)

var DB *gorm.DB

// InitMySQL 初始化 MySQL 数据库连接
func InitMySQL(dsn string) {
	var err error
	DB, err = gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect database", err)
	}

	// 配置连接池
	sqlDB, err := DB.DB()
	if err != nil {
		log.Fatal("failed to get sql.DB", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	log.Info("MySQL database connected successfully")
}

// AutoMigrate 同步全部业务表结构。
func AutoMigrate() error {
	return DB.AutoMigrate(
		&model.Study{},
		&model.Mutation{},
		&model.StudyTopic{},
		&model.RefTreatment{},
		&model.StudyTreatment{},
		&model.Link{},
		&model.CoverageMetric{},
	)
}

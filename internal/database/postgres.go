package database

import (
	"fmt"
	"log"

	"github.com/aihub/retrieval-go/internal/config"
	"github.com/aihub/retrieval-go/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// InitDB 初始化PostgreSQL连接并迁移检索相关表
func InitDB(cfg *config.Config) (*gorm.DB, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config not loaded")
	}

	logMode := logger.Warn
	if cfg.Server.Env == "development" {
		logMode = logger.Info
	}

	db, err := gorm.Open(postgres.Open(cfg.Database.URL), &gorm.Config{
		Logger: logger.Default.LogMode(logMode),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// 获取底层的sql.DB设置连接池
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)

	if err := autoMigrate(db); err != nil {
		log.Printf("database migration warning: %v", err)
	}

	DB = db
	return db, nil
}

// autoMigrate 自动迁移检索相关表
func autoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.KnowledgeDocument{}, &models.KnowledgeChunk{}); err != nil {
		return err
	}

	// gorm不支持表达式唯一索引，(owner, lower(title))唯一性需要手工建
	return db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS uq_knowledge_document_owner_title
		ON knowledge_documents (owner, lower(title))
	`).Error
}

package repository

import (
	"context"
	"time"

	"github.com/aihub/retrieval-go/internal/models"
)

// ChunkEmbeddingRow 分页读取embedding时的轻量投影
type ChunkEmbeddingRow struct {
	ChunkID       uint   `gorm:"column:id"`
	EmbeddingJSON string `gorm:"column:embedding_json"`
}

// ChunkStore 检索引擎的持久化端口。
// 引擎只依赖这个接口，生产实现基于gorm/PostgreSQL，测试用内存实现。
type ChunkStore interface {
	// FindDocumentByOwnerAndTitle 按(owner, title)查找文档，title忽略大小写；不存在时返回(nil, nil)
	FindDocumentByOwnerAndTitle(ctx context.Context, owner, title string) (*models.KnowledgeDocument, error)

	// SaveDocument 插入或更新文档
	SaveDocument(ctx context.Context, doc *models.KnowledgeDocument) error

	// SaveChunks 批量插入分块
	SaveChunks(ctx context.Context, chunks []*models.KnowledgeChunk) error

	// FindChunkIDsByDocument 返回文档当前全部分块id
	FindChunkIDsByDocument(ctx context.Context, documentID uint) ([]uint, error)

	// DeleteChunksByDocument 删除文档全部分块
	DeleteChunksByDocument(ctx context.Context, documentID uint) error

	// DeleteDocument 删除文档本身（分块需先行删除）
	DeleteDocument(ctx context.Context, documentID uint) error

	// FindChunkEmbeddingsPage 按owner集合分页读取(chunkId, embeddingJson)，按chunk id升序
	FindChunkEmbeddingsPage(ctx context.Context, owners []string, page, pageSize int) ([]ChunkEmbeddingRow, error)

	// FindChunksWithDocumentByIDs 批量解析chunk id到chunk+所属文档
	FindChunksWithDocumentByIDs(ctx context.Context, ids []uint) ([]models.KnowledgeChunk, error)

	// CountDocumentsByOwners 统计owner集合下的文档数
	CountDocumentsByOwners(ctx context.Context, owners []string) (int64, error)

	// CountChunksByOwners 统计owner集合下的分块数
	CountChunksByOwners(ctx context.Context, owners []string) (int64, error)

	// LastDocumentUpdateByOwners 返回owner集合下最近一次文档更新时间，空语料返回nil
	LastDocumentUpdateByOwners(ctx context.Context, owners []string) (*time.Time, error)
}

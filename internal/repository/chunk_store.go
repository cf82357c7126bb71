package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/aihub/retrieval-go/internal/models"
	"gorm.io/gorm"
)

// gormChunkStore 基于gorm/PostgreSQL的持久化实现
type gormChunkStore struct {
	db *gorm.DB
}

// NewChunkStore 创建持久化端口的gorm实现
func NewChunkStore(db *gorm.DB) ChunkStore {
	return &gormChunkStore{db: db}
}

func (s *gormChunkStore) FindDocumentByOwnerAndTitle(ctx context.Context, owner, title string) (*models.KnowledgeDocument, error) {
	var doc models.KnowledgeDocument
	err := s.db.WithContext(ctx).
		Where("owner = ? AND LOWER(title) = LOWER(?)", owner, title).
		Order("id").
		First(&doc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &doc, nil
}

func (s *gormChunkStore) SaveDocument(ctx context.Context, doc *models.KnowledgeDocument) error {
	return s.db.WithContext(ctx).Save(doc).Error
}

func (s *gormChunkStore) SaveChunks(ctx context.Context, chunks []*models.KnowledgeChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Create(chunks).Error
}

func (s *gormChunkStore) FindChunkIDsByDocument(ctx context.Context, documentID uint) ([]uint, error) {
	var ids []uint
	err := s.db.WithContext(ctx).
		Model(&models.KnowledgeChunk{}).
		Where("document_id = ?", documentID).
		Order("chunk_index").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *gormChunkStore) DeleteChunksByDocument(ctx context.Context, documentID uint) error {
	return s.db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Delete(&models.KnowledgeChunk{}).Error
}

func (s *gormChunkStore) DeleteDocument(ctx context.Context, documentID uint) error {
	return s.db.WithContext(ctx).
		Where("id = ?", documentID).
		Delete(&models.KnowledgeDocument{}).Error
}

func (s *gormChunkStore) FindChunkEmbeddingsPage(ctx context.Context, owners []string, page, pageSize int) ([]ChunkEmbeddingRow, error) {
	if pageSize <= 0 || page < 0 {
		return nil, nil
	}

	var rows []ChunkEmbeddingRow
	err := s.db.WithContext(ctx).
		Table("knowledge_chunks").
		Select("knowledge_chunks.id, knowledge_chunks.embedding_json").
		Joins("JOIN knowledge_documents ON knowledge_chunks.document_id = knowledge_documents.id").
		Where("knowledge_documents.owner IN ?", owners).
		Order("knowledge_chunks.id").
		Offset(page * pageSize).
		Limit(pageSize).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *gormChunkStore) FindChunksWithDocumentByIDs(ctx context.Context, ids []uint) ([]models.KnowledgeChunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var chunks []models.KnowledgeChunk
	err := s.db.WithContext(ctx).
		Preload("Document").
		Where("id IN ?", ids).
		Find(&chunks).Error
	if err != nil {
		return nil, err
	}
	return chunks, nil
}

func (s *gormChunkStore) CountDocumentsByOwners(ctx context.Context, owners []string) (int64, error) {
	var total int64
	err := s.db.WithContext(ctx).
		Model(&models.KnowledgeDocument{}).
		Where("owner IN ?", owners).
		Count(&total).Error
	return total, err
}

func (s *gormChunkStore) CountChunksByOwners(ctx context.Context, owners []string) (int64, error) {
	var total int64
	err := s.db.WithContext(ctx).
		Table("knowledge_chunks").
		Joins("JOIN knowledge_documents ON knowledge_chunks.document_id = knowledge_documents.id").
		Where("knowledge_documents.owner IN ?", owners).
		Count(&total).Error
	return total, err
}

func (s *gormChunkStore) LastDocumentUpdateByOwners(ctx context.Context, owners []string) (*time.Time, error) {
	var last sql.NullTime
	err := s.db.WithContext(ctx).
		Model(&models.KnowledgeDocument{}).
		Where("owner IN ?", owners).
		Select("MAX(updated_at)").
		Scan(&last).Error
	if err != nil {
		return nil, err
	}
	if !last.Valid {
		return nil, nil
	}
	t := last.Time
	return &t, nil
}

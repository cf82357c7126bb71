package models

import (
	"time"
)

// GlobalOwner 共享语料库的owner命名空间，所有查询均可见
const GlobalOwner = "global"

// KnowledgeDocument 知识文档表，(owner, title)忽略大小写唯一
type KnowledgeDocument struct {
	ID        uint      `gorm:"primaryKey;column:id" json:"id"`
	Owner     string    `gorm:"column:owner;size:120;not null;default:global;index:idx_knowledge_document_owner" json:"owner"`
	Title     string    `gorm:"column:title;size:200;not null" json:"title"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time `gorm:"column:created_at;not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null" json:"updated_at"`
}

func (KnowledgeDocument) TableName() string {
	return "knowledge_documents"
}

// KnowledgeChunk 文档分块表，embedding以JSON文本存储，入库前已单位归一化
type KnowledgeChunk struct {
	ID            uint   `gorm:"primaryKey;column:id" json:"id"`
	DocumentID    uint   `gorm:"column:document_id;not null;index" json:"document_id"`
	ChunkIndex    int    `gorm:"column:chunk_index;not null" json:"chunk_index"`
	Text          string `gorm:"type:text;not null" json:"text"`
	EmbeddingJSON string `gorm:"type:text;column:embedding_json;not null" json:"-"`

	Document KnowledgeDocument `gorm:"foreignKey:DocumentID" json:"document"`
}

func (KnowledgeChunk) TableName() string {
	return "knowledge_chunks"
}

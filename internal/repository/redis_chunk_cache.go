package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/aihub/retrieval-go/internal/logger"
	"github.com/aihub/retrieval-go/internal/models"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// cachedChunkStore 在批量chunk解析前加一层Redis读穿缓存。
// Redis不可用或未启用时退化为直接透传，删除/替换分块时同步失效。
type cachedChunkStore struct {
	ChunkStore
	client *redis.Client
	ttl    time.Duration

	hits   int64
	misses int64
}

// NewCachedChunkStore 用Redis包装持久化端口；client为nil时原样返回
func NewCachedChunkStore(inner ChunkStore, client *redis.Client, ttl time.Duration) ChunkStore {
	if client == nil {
		return inner
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &cachedChunkStore{ChunkStore: inner, client: client, ttl: ttl}
}

func chunkKey(id uint) string {
	return fmt.Sprintf("rag:chunk:%d", id)
}

func (s *cachedChunkStore) FindChunksWithDocumentByIDs(ctx context.Context, ids []uint) ([]models.KnowledgeChunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = chunkKey(id)
	}

	resolved := make([]models.KnowledgeChunk, 0, len(ids))
	var missing []uint

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		// Redis故障时直接回落数据库
		logger.Warn("redis chunk cache unavailable", zap.Error(err))
		return s.ChunkStore.FindChunksWithDocumentByIDs(ctx, ids)
	}

	for i, raw := range values {
		str, ok := raw.(string)
		if !ok {
			missing = append(missing, ids[i])
			continue
		}
		var chunk models.KnowledgeChunk
		if err := json.Unmarshal([]byte(str), &chunk); err != nil {
			missing = append(missing, ids[i])
			continue
		}
		atomic.AddInt64(&s.hits, 1)
		resolved = append(resolved, chunk)
	}

	if len(missing) > 0 {
		atomic.AddInt64(&s.misses, int64(len(missing)))

		fromDB, err := s.ChunkStore.FindChunksWithDocumentByIDs(ctx, missing)
		if err != nil {
			return nil, err
		}

		pipe := s.client.Pipeline()
		for _, chunk := range fromDB {
			if payload, err := json.Marshal(chunk); err == nil {
				pipe.Set(ctx, chunkKey(chunk.ID), payload, s.ttl)
			}
		}
		if _, err := pipe.Exec(ctx); err != nil {
			logger.Warn("redis chunk cache write failed", zap.Error(err))
		}

		resolved = append(resolved, fromDB...)
	}

	return resolved, nil
}

func (s *cachedChunkStore) DeleteChunksByDocument(ctx context.Context, documentID uint) error {
	// 先收集id再删除，保证缓存条目同步失效
	ids, err := s.ChunkStore.FindChunkIDsByDocument(ctx, documentID)
	if err != nil {
		return err
	}

	if err := s.ChunkStore.DeleteChunksByDocument(ctx, documentID); err != nil {
		return err
	}

	if len(ids) > 0 {
		keys := make([]string, len(ids))
		for i, id := range ids {
			keys[i] = chunkKey(id)
		}
		if err := s.client.Del(ctx, keys...).Err(); err != nil {
			logger.Warn("redis chunk cache eviction failed", zap.Error(err))
		}
	}
	return nil
}

// HitStats 返回缓存命中统计
func (s *cachedChunkStore) HitStats() (hits, misses int64) {
	return atomic.LoadInt64(&s.hits), atomic.LoadInt64(&s.misses)
}

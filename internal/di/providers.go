package di

import (
	"fmt"
	"time"

	"github.com/aihub/retrieval-go/internal/config"
	"github.com/aihub/retrieval-go/internal/database"
	"github.com/aihub/retrieval-go/internal/logger"
	"github.com/aihub/retrieval-go/internal/repository"
	"github.com/aihub/retrieval-go/internal/retrieval"
	"github.com/redis/go-redis/v9"
	"go.uber.org/dig"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RegisterProviders 注册所有依赖提供者
func RegisterProviders(container *dig.Container) error {
	// 注册配置
	if err := container.Provide(func() (*config.Config, error) {
		if config.AppConfig == nil {
			return nil, fmt.Errorf("config not loaded")
		}
		return config.AppConfig, nil
	}); err != nil {
		return err
	}

	// 注册日志器
	if err := container.Provide(func() *zap.Logger {
		return logger.GetLogger()
	}); err != nil {
		return err
	}

	// 注册数据库
	if err := container.Provide(func(cfg *config.Config) (*gorm.DB, error) {
		return database.InitDB(cfg)
	}); err != nil {
		return err
	}

	// 注册Redis客户端（未启用时为nil，下游按透传处理）
	if err := container.Provide(func(cfg *config.Config) (*redis.Client, error) {
		return database.InitRedis(cfg)
	}); err != nil {
		return err
	}

	// 注册持久化端口，启用Redis时包一层读穿缓存
	if err := container.Provide(func(db *gorm.DB, client *redis.Client, cfg *config.Config) repository.ChunkStore {
		store := repository.NewChunkStore(db)
		return repository.NewCachedChunkStore(store, client, time.Duration(cfg.Redis.TTL)*time.Second)
	}); err != nil {
		return err
	}

	// 注册嵌入提供方
	if err := container.Provide(func(cfg *config.Config) retrieval.Embedder {
		return newEmbedder(cfg)
	}); err != nil {
		return err
	}

	// 注册owner语料缓存
	if err := container.Provide(func(store repository.ChunkStore, cfg *config.Config) *retrieval.EmbeddingCache {
		return retrieval.NewEmbeddingCache(store, cfg.Rag.EmbeddingPageSize)
	}); err != nil {
		return err
	}

	// 注册检索引擎，配置走Snapshot以便热更新打分参数
	if err := container.Provide(func(store repository.ChunkStore, embedder retrieval.Embedder, cache *retrieval.EmbeddingCache, log *zap.Logger) *retrieval.Engine {
		return retrieval.NewEngine(store, embedder, cache, config.Snapshot, log)
	}); err != nil {
		return err
	}

	return nil
}

func newEmbedder(cfg *config.Config) retrieval.Embedder {
	switch cfg.Embedding.Provider {
	case "openai":
		return retrieval.NewOpenAIEmbedder(cfg.Embedding.OpenAIAPIKey, cfg.Embedding.OpenAIModel)
	case "ollama":
		return retrieval.NewOllamaEmbedder(cfg.Embedding.OllamaURL, cfg.Embedding.OllamaModel)
	default:
		return &retrieval.NoopEmbedder{}
	}
}

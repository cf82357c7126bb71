package retrieval

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/aihub/retrieval-go/internal/metrics"
	"github.com/aihub/retrieval-go/internal/repository"
	"golang.org/x/sync/singleflight"
)

// CorpusLoader 缓存冷加载所需的持久化端口子集
type CorpusLoader interface {
	FindChunkEmbeddingsPage(ctx context.Context, owners []string, page, pageSize int) ([]repository.ChunkEmbeddingRow, error)
}

// EmbeddingCache 两级embedding缓存：
// 扁平的chunkId->embedding表用于快速失效，按owner的语料表作为每次查询的扫描面。
// owner首次加载走singleflight，同一owner的并发冷加载只会落库一次；
// 加载完成后的读取不再加载锁竞争。
type EmbeddingCache struct {
	loader   CorpusLoader
	pageSize int

	group singleflight.Group

	mu     sync.RWMutex
	flat   map[uint][]float32
	owners map[string]*ownerCorpus
}

// ownerCorpus 单个owner的语料视图，loaded是单向的NotLoaded->Loaded
type ownerCorpus struct {
	mu         sync.RWMutex
	loaded     bool
	embeddings map[uint][]float32
}

// NewEmbeddingCache 创建embedding缓存
func NewEmbeddingCache(loader CorpusLoader, pageSize int) *EmbeddingCache {
	if pageSize <= 0 {
		pageSize = 500
	}
	return &EmbeddingCache{
		loader:   loader,
		pageSize: pageSize,
		flat:     make(map[uint][]float32),
		owners:   make(map[string]*ownerCorpus),
	}
}

func (c *EmbeddingCache) ownerEntry(owner string) *ownerCorpus {
	c.mu.RLock()
	corpus, ok := c.owners[owner]
	c.mu.RUnlock()
	if ok {
		return corpus
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if corpus, ok = c.owners[owner]; ok {
		return corpus
	}
	corpus = &ownerCorpus{embeddings: make(map[uint][]float32)}
	c.owners[owner] = corpus
	return corpus
}

func (o *ownerCorpus) isLoaded() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.loaded
}

// EnsureOwnerLoaded 确保owner语料已加载。
// 冷加载按页从持久层批量读取，同owner的并发首次加载共享一次落库。
func (c *EmbeddingCache) EnsureOwnerLoaded(ctx context.Context, owner string) error {
	corpus := c.ownerEntry(owner)
	if corpus.isLoaded() {
		return nil
	}

	_, err, _ := c.group.Do(owner, func() (interface{}, error) {
		if corpus.isLoaded() {
			return nil, nil
		}
		if err := c.loadOwner(ctx, owner, corpus); err != nil {
			return nil, err
		}

		corpus.mu.Lock()
		corpus.loaded = true
		corpus.mu.Unlock()

		metrics.OwnerCorpusLoads.Inc()
		return nil, nil
	})
	return err
}

func (c *EmbeddingCache) loadOwner(ctx context.Context, owner string, corpus *ownerCorpus) error {
	for page := 0; ; page++ {
		rows, err := c.loader.FindChunkEmbeddingsPage(ctx, []string{owner}, page, c.pageSize)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			break
		}

		for _, row := range rows {
			embedding := c.flatGetOrDecode(row.ChunkID, row.EmbeddingJSON)
			if len(embedding) == 0 {
				continue
			}
			corpus.mu.Lock()
			corpus.embeddings[row.ChunkID] = embedding
			corpus.mu.Unlock()
		}

		if len(rows) < c.pageSize {
			break
		}
	}
	return nil
}

// flatGetOrDecode 扁平缓存读取，缺失时解码并回写
func (c *EmbeddingCache) flatGetOrDecode(chunkID uint, embeddingJSON string) []float32 {
	c.mu.RLock()
	cached, ok := c.flat[chunkID]
	c.mu.RUnlock()
	if ok {
		return cached
	}

	decoded := DecodeEmbedding(embeddingJSON)
	if len(decoded) == 0 {
		return nil
	}

	c.mu.Lock()
	if existing, ok := c.flat[chunkID]; ok {
		decoded = existing
	} else {
		c.flat[chunkID] = decoded
	}
	c.mu.Unlock()
	return decoded
}

// ScanOwner 遍历owner语料中的全部(chunkId, embedding)。
// 只遍历已加载的条目，调用方需先EnsureOwnerLoaded。
func (c *EmbeddingCache) ScanOwner(owner string, fn func(chunkID uint, embedding []float32)) {
	corpus := c.ownerEntry(owner)
	corpus.mu.RLock()
	defer corpus.mu.RUnlock()
	for id, embedding := range corpus.embeddings {
		fn(id, embedding)
	}
}

// Put 写入新分块的embedding：扁平缓存总是写，owner表只在已加载时写
func (c *EmbeddingCache) Put(owner string, chunkID uint, embedding []float32) {
	if len(embedding) == 0 {
		return
	}

	c.mu.Lock()
	c.flat[chunkID] = embedding
	c.mu.Unlock()

	corpus := c.ownerEntry(owner)
	corpus.mu.Lock()
	if corpus.loaded {
		corpus.embeddings[chunkID] = embedding
	}
	corpus.mu.Unlock()
}

// Evict 把一组chunk id从两级缓存同时移除
func (c *EmbeddingCache) Evict(owner string, ids []uint) {
	if len(ids) == 0 {
		return
	}

	c.mu.Lock()
	for _, id := range ids {
		delete(c.flat, id)
	}
	c.mu.Unlock()

	c.mu.RLock()
	corpus, ok := c.owners[owner]
	c.mu.RUnlock()
	if !ok {
		return
	}

	corpus.mu.Lock()
	defer corpus.mu.Unlock()
	if !corpus.loaded {
		return
	}
	for _, id := range ids {
		delete(corpus.embeddings, id)
	}
}

// OwnerLoaded 返回owner语料是否已完成冷加载
func (c *EmbeddingCache) OwnerLoaded(owner string) bool {
	c.mu.RLock()
	corpus, ok := c.owners[owner]
	c.mu.RUnlock()
	return ok && corpus.isLoaded()
}

// DecodeEmbedding 解码持久化的embedding JSON并重新归一化。
// 损坏的payload按"没有embedding"处理，该分块不参与打分，检索不中断。
func DecodeEmbedding(embeddingJSON string) []float32 {
	if embeddingJSON == "" {
		return nil
	}

	var raw []float32
	if err := json.Unmarshal([]byte(embeddingJSON), &raw); err != nil {
		metrics.CorruptEmbeddingsDropped.Inc()
		return nil
	}
	return Normalize(raw)
}

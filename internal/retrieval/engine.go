package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aihub/retrieval-go/internal/config"
	apperrors "github.com/aihub/retrieval-go/internal/errors"
	"github.com/aihub/retrieval-go/internal/metrics"
	"github.com/aihub/retrieval-go/internal/models"
	"github.com/aihub/retrieval-go/internal/repository"
	"go.uber.org/zap"
)

// ScoredChunk 检索结果单元
type ScoredChunk struct {
	Chunk models.KnowledgeChunk
	Score float64
}

// Source 面向展示的来源条目，正文截断为snippet
type Source struct {
	ChunkID    uint    `json:"chunk_id"`
	DocumentID uint    `json:"document_id"`
	Title      string  `json:"title"`
	Score      float64 `json:"score"`
	Snippet    string  `json:"snippet"`
}

// ContextStats owner视角的语料统计
type ContextStats struct {
	Owner           string     `json:"owner"`
	TotalDocuments  int64      `json:"total_documents"`
	TotalChunks     int64      `json:"total_chunks"`
	GlobalDocuments int64      `json:"global_documents"`
	GlobalChunks    int64      `json:"global_chunks"`
	OwnerDocuments  int64      `json:"owner_documents"`
	OwnerChunks     int64      `json:"owner_chunks"`
	LastUpdatedAt   *time.Time `json:"last_updated_at"`
	TopK            int        `json:"top_k"`
	ChunkSize       int        `json:"chunk_size"`
	ChunkOverlap    int        `json:"chunk_overlap"`
}

const (
	maxTitleLength   = 200
	snippetMaxLength = 220
)

// Engine 检索引擎编排层：负责文档入库(upsert)和top-K查询(retrieve)。
// 所有操作在调用方goroutine上同步执行，唯一的阻塞点是外部embedding调用，
// 超时与取消由调用方通过ctx控制。
type Engine struct {
	store    repository.ChunkStore
	embedder Embedder
	cache    *EmbeddingCache
	selector *CandidateSelector
	cfg      func() config.RagConfig
	log      *zap.Logger
}

// NewEngine 创建检索引擎
func NewEngine(store repository.ChunkStore, embedder Embedder, cache *EmbeddingCache, cfg func() config.RagConfig, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		store:    store,
		embedder: embedder,
		cache:    cache,
		selector: NewCandidateSelector(cache, store, cfg().EmbeddingPageSize),
		cfg:      cfg,
		log:      log,
	}
}

// ----------------- Upsert -----------------

// Upsert 按(owner, title)插入或整体替换文档。
// 替换时先记录旧chunk id，删库后从两级缓存显式驱逐，再写入新chunk；
// 持久写成功后才改缓存。删除到重建之间与并发检索存在一个短暂的
// 不一致窗口（可能看到旧集合、新集合或短暂的空集），这是已接受的契约，
// 不会崩溃，窗口随upsert完成闭合。
func (e *Engine) Upsert(ctx context.Context, owner, title, content string) (*models.KnowledgeDocument, error) {
	cfg := e.cfg()

	normalizedOwner := NormalizeOwner(owner)
	normalizedTitle, err := normalizeTitle(title)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(content) == "" {
		return nil, apperrors.NewValidationError("content is blank")
	}

	doc, err := e.store.FindDocumentByOwnerAndTitle(ctx, normalizedOwner, normalizedTitle)
	if err != nil {
		return nil, err
	}

	isNew := doc == nil
	if isNew {
		doc = &models.KnowledgeDocument{CreatedAt: time.Now()}
	}
	doc.Owner = normalizedOwner
	doc.Title = normalizedTitle
	doc.Content = content
	doc.UpdatedAt = time.Now()

	if err := e.store.SaveDocument(ctx, doc); err != nil {
		return nil, err
	}

	var oldIDs []uint
	if !isNew {
		oldIDs, err = e.store.FindChunkIDsByDocument(ctx, doc.ID)
		if err != nil {
			return nil, err
		}
		if err := e.store.DeleteChunksByDocument(ctx, doc.ID); err != nil {
			return nil, err
		}
		if cfg.CacheEnabled && len(oldIDs) > 0 {
			e.cache.Evict(normalizedOwner, oldIDs)
		}
	}

	pieces := ChunkText(content, cfg.ChunkSize, cfg.ChunkOverlap)
	if len(pieces) == 0 {
		// 合法的空结果，文档保留但没有可检索分块
		e.log.Debug("rag upsert produced no chunks",
			zap.String("owner", normalizedOwner),
			zap.String("title", normalizedTitle))
		return doc, nil
	}

	embeddings, err := e.embedder.EmbedMany(ctx, pieces)
	if err != nil {
		return nil, apperrors.NewProviderError("embedding provider failed", err)
	}

	toPersist := make([]*models.KnowledgeChunk, 0, len(pieces))
	normalized := make([][]float32, 0, len(pieces))
	for i, piece := range pieces {
		var raw []float32
		if i < len(embeddings) {
			raw = embeddings[i]
		}
		unit := Normalize(raw)
		normalized = append(normalized, unit)

		toPersist = append(toPersist, &models.KnowledgeChunk{
			DocumentID:    doc.ID,
			ChunkIndex:    i,
			Text:          piece,
			EmbeddingJSON: encodeEmbedding(unit),
		})
	}

	if err := e.store.SaveChunks(ctx, toPersist); err != nil {
		return nil, err
	}

	if cfg.CacheEnabled {
		for i, chunk := range toPersist {
			if chunk.ID == 0 || len(normalized[i]) == 0 {
				continue
			}
			e.cache.Put(normalizedOwner, chunk.ID, normalized[i])
		}
	}

	metrics.UpsertsTotal.Inc()
	e.log.Debug("rag upsert",
		zap.String("owner", normalizedOwner),
		zap.String("title", normalizedTitle),
		zap.Int("chunks", len(toPersist)),
		zap.Int("replaced", len(oldIDs)))
	return doc, nil
}

// StoreMemory 用户记忆入库：空用户落到unknown，空标题自动生成
func (e *Engine) StoreMemory(ctx context.Context, username, title, content string) (*models.KnowledgeDocument, error) {
	user := strings.TrimSpace(username)
	if user == "" {
		user = "unknown"
	}

	cleanTitle := strings.TrimSpace(title)
	if cleanTitle == "" {
		cleanTitle = fmt.Sprintf("Memoria/%s/%s", user, time.Now().UTC().Format(time.RFC3339))
	}

	return e.Upsert(ctx, user, cleanTitle, content)
}

// DeleteDocument 删除文档并级联其分块，两级缓存同步驱逐
func (e *Engine) DeleteDocument(ctx context.Context, owner, title string) error {
	normalizedOwner := NormalizeOwner(owner)
	normalizedTitle, err := normalizeTitle(title)
	if err != nil {
		return err
	}

	doc, err := e.store.FindDocumentByOwnerAndTitle(ctx, normalizedOwner, normalizedTitle)
	if err != nil {
		return err
	}
	if doc == nil {
		return apperrors.NewNotFoundError(fmt.Sprintf("document %q not found for owner %q", normalizedTitle, normalizedOwner))
	}

	ids, err := e.store.FindChunkIDsByDocument(ctx, doc.ID)
	if err != nil {
		return err
	}
	if err := e.store.DeleteChunksByDocument(ctx, doc.ID); err != nil {
		return err
	}
	e.cache.Evict(normalizedOwner, ids)

	return e.store.DeleteDocument(ctx, doc.ID)
}

// ----------------- Retrieval -----------------

// RetrieveTopK 只查共享语料
func (e *Engine) RetrieveTopK(ctx context.Context, query string) ([]ScoredChunk, error) {
	return e.RetrieveForOwners(ctx, query, []string{models.GlobalOwner})
}

// RetrieveForOwner owner为global时只查全局，否则查{global, owner}
func (e *Engine) RetrieveForOwner(ctx context.Context, query, owner string) ([]ScoredChunk, error) {
	normalizedOwner := NormalizeOwner(owner)
	if strings.EqualFold(normalizedOwner, models.GlobalOwner) {
		return e.RetrieveForOwners(ctx, query, []string{models.GlobalOwner})
	}
	return e.RetrieveForOwners(ctx, query, []string{models.GlobalOwner, normalizedOwner})
}

// RetrieveScoped 在owner之外追加隔离的scoped owner（如key:{id}|user:{name}组合命名空间）
func (e *Engine) RetrieveScoped(ctx context.Context, query, owner, scopedOwner string) ([]ScoredChunk, error) {
	owners := []string{models.GlobalOwner}

	normalizedOwner := NormalizeOwner(owner)
	if !strings.EqualFold(normalizedOwner, models.GlobalOwner) {
		owners = append(owners, normalizedOwner)
	}
	if strings.TrimSpace(scopedOwner) != "" {
		owners = append(owners, strings.TrimSpace(scopedOwner))
	}

	return e.RetrieveForOwners(ctx, query, owners)
}

// RetrieveForOwners owner集合上的混合检索：
// 语义候选(每owner有界top-N) -> 跨owner去重合并 -> 混合打分 -> MMR重排。
// embedding提供方返回空向量时返回空结果而非错误。
func (e *Engine) RetrieveForOwners(ctx context.Context, query string, owners []string) ([]ScoredChunk, error) {
	cfg := e.cfg()
	start := time.Now()

	raw, err := e.embedder.EmbedOne(ctx, query)
	if err != nil {
		return nil, apperrors.NewProviderError("embedding provider failed", err)
	}
	queryEmbedding := Normalize(raw)
	if len(queryEmbedding) == 0 {
		return nil, nil
	}

	ownersClean := NormalizeOwners(owners)

	retrievalTopK := maxInt(1, cfg.TopK)
	baseLimit := maxInt(retrievalTopK, cfg.RerankCandidates)
	perOwnerLimit := maxInt(baseLimit, maxInt(1, cfg.MinCandidatesPerOwner))
	mergedLimit := maxInt(baseLimit, perOwnerLimit*len(ownersClean))

	var gathered []Candidate
	for _, owner := range ownersClean {
		var perOwner []Candidate
		if cfg.CacheEnabled {
			perOwner, err = e.selector.TopForOwnerFromCache(ctx, queryEmbedding, owner, perOwnerLimit, cfg.MinScore)
		} else {
			perOwner, err = e.selector.TopForOwnerFromStore(ctx, queryEmbedding, owner, perOwnerLimit, cfg.MinScore)
		}
		if err != nil {
			return nil, err
		}
		gathered = append(gathered, perOwner...)
	}

	semanticCandidates := MergeCandidates(gathered, mergedLimit)
	if len(semanticCandidates) == 0 {
		return nil, nil
	}

	candidateIDs := make([]uint, len(semanticCandidates))
	for i, candidate := range semanticCandidates {
		candidateIDs[i] = candidate.ChunkID
	}

	resolved, err := e.store.FindChunksWithDocumentByIDs(ctx, candidateIDs)
	if err != nil {
		return nil, err
	}
	chunkByID := make(map[uint]models.KnowledgeChunk, len(resolved))
	textByID := make(map[uint]string, len(resolved))
	for _, chunk := range resolved {
		chunkByID[chunk.ID] = chunk
		textByID[chunk.ID] = chunk.Text
	}

	scorer := NewHybridScorer(cfg)
	hybrid := scorer.Rescore(query, semanticCandidates, textByID)
	if len(hybrid) == 0 {
		return nil, nil
	}
	sort.SliceStable(hybrid, func(i, j int) bool { return hybrid[i].Score > hybrid[j].Score })

	reranked := RerankMMR(hybrid, retrievalTopK, cfg.RerankLambda)
	if len(reranked) == 0 {
		return nil, nil
	}

	// MMR决定入选集合，最终输出仍按分数降序
	sort.SliceStable(reranked, func(i, j int) bool { return reranked[i].Score > reranked[j].Score })

	results := make([]ScoredChunk, 0, len(reranked))
	for _, candidate := range reranked {
		chunk, ok := chunkByID[candidate.ChunkID]
		if !ok {
			continue
		}
		results = append(results, ScoredChunk{Chunk: chunk, Score: candidate.Score})
	}

	metrics.RetrievalsTotal.Inc()
	metrics.RetrievalDuration.Observe(time.Since(start).Seconds())
	e.log.Debug("rag retrieve",
		zap.Strings("owners", ownersClean),
		zap.Int("semantic_candidates", len(semanticCandidates)),
		zap.Int("hybrid_candidates", len(hybrid)),
		zap.Int("selected", len(results)),
		zap.Int("top_k", retrievalTopK),
		zap.Duration("elapsed", time.Since(start)))
	return results, nil
}

// Stats owner视角的语料统计
func (e *Engine) Stats(ctx context.Context, owner string) (*ContextStats, error) {
	cfg := e.cfg()
	normalizedOwner := NormalizeOwner(owner)
	owners := NormalizeOwners([]string{normalizedOwner})

	totalDocuments, err := e.store.CountDocumentsByOwners(ctx, owners)
	if err != nil {
		return nil, err
	}
	totalChunks, err := e.store.CountChunksByOwners(ctx, owners)
	if err != nil {
		return nil, err
	}

	globalOwners := []string{models.GlobalOwner}
	globalDocuments, err := e.store.CountDocumentsByOwners(ctx, globalOwners)
	if err != nil {
		return nil, err
	}
	globalChunks, err := e.store.CountChunksByOwners(ctx, globalOwners)
	if err != nil {
		return nil, err
	}

	var ownerDocuments, ownerChunks int64
	if normalizedOwner != models.GlobalOwner {
		if ownerDocuments, err = e.store.CountDocumentsByOwners(ctx, []string{normalizedOwner}); err != nil {
			return nil, err
		}
		if ownerChunks, err = e.store.CountChunksByOwners(ctx, []string{normalizedOwner}); err != nil {
			return nil, err
		}
	}

	lastUpdatedAt, err := e.store.LastDocumentUpdateByOwners(ctx, owners)
	if err != nil {
		return nil, err
	}

	return &ContextStats{
		Owner:           normalizedOwner,
		TotalDocuments:  totalDocuments,
		TotalChunks:     totalChunks,
		GlobalDocuments: globalDocuments,
		GlobalChunks:    globalChunks,
		OwnerDocuments:  ownerDocuments,
		OwnerChunks:     ownerChunks,
		LastUpdatedAt:   lastUpdatedAt,
		TopK:            cfg.TopK,
		ChunkSize:       cfg.ChunkSize,
		ChunkOverlap:    cfg.ChunkOverlap,
	}, nil
}

// Sources 把检索结果转成展示用的来源列表
func (e *Engine) Sources(scored []ScoredChunk) []Source {
	out := make([]Source, 0, len(scored))
	for _, sc := range scored {
		snippet := sc.Chunk.Text
		if runes := []rune(snippet); len(runes) > snippetMaxLength {
			snippet = string(runes[:snippetMaxLength]) + "..."
		}
		out = append(out, Source{
			ChunkID:    sc.Chunk.ID,
			DocumentID: sc.Chunk.DocumentID,
			Title:      sc.Chunk.Document.Title,
			Score:      sc.Score,
			Snippet:    snippet,
		})
	}
	return out
}

// ----------------- Helpers -----------------

// NormalizeOwner 空owner落到全局命名空间
func NormalizeOwner(owner string) string {
	o := strings.TrimSpace(owner)
	if o == "" {
		return models.GlobalOwner
	}
	return o
}

// NormalizeOwners 归一化并去重owner集合，保持顺序并始终包含global
func NormalizeOwners(owners []string) []string {
	if len(owners) == 0 {
		return []string{models.GlobalOwner}
	}

	seen := make(map[string]struct{}, len(owners)+1)
	out := make([]string, 0, len(owners)+1)
	for _, owner := range owners {
		normalized := NormalizeOwner(owner)
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	if _, ok := seen[models.GlobalOwner]; !ok {
		out = append(out, models.GlobalOwner)
	}
	return out
}

// normalizeTitle 标题归一：去首尾空白、压缩连续空白、截断到200字符
func normalizeTitle(title string) (string, error) {
	t := strings.TrimSpace(title)
	if t == "" {
		return "", apperrors.NewValidationError("title is blank")
	}

	t = strings.Join(strings.Fields(t), " ")
	if runes := []rune(t); len(runes) > maxTitleLength {
		t = string(runes[:maxTitleLength])
	}
	return t, nil
}

// encodeEmbedding 归一化失败的空向量按空数组持久化，读取时等价于"没有embedding"
func encodeEmbedding(embedding []float32) string {
	if len(embedding) == 0 {
		return "[]"
	}
	payload, err := json.Marshal(embedding)
	if err != nil {
		return "[]"
	}
	return string(payload)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

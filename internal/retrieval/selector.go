package retrieval

import (
	"container/heap"
	"context"
	"sort"
)

// Candidate 查询期间的候选分块，打分阶段就地重算Score，不落库
type Candidate struct {
	ChunkID   uint
	Owner     string
	Semantic  float64 // 原始cosine相似度
	Score     float64 // 当前阶段分数
	Embedding []float32
}

// candidateHeap 按Score的小顶堆，实现有界top-N
type candidateHeap []Candidate

func (h candidateHeap) Len() int            { return len(h) }
func (h candidateHeap) Less(i, j int) bool  { return h[i].Score < h[j].Score }
func (h candidateHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *candidateHeap) Push(x interface{}) { *h = append(*h, x.(Candidate)) }
func (h *candidateHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// offerCandidate 未满直接入堆；满时仅当分数严格大于堆顶才替换
func offerCandidate(h *candidateHeap, candidate Candidate, limit int) {
	if h.Len() < limit {
		heap.Push(h, candidate)
		return
	}
	if candidate.Score > (*h)[0].Score {
		(*h)[0] = candidate
		heap.Fix(h, 0)
	}
}

// sortedCandidates 堆内容按分数降序导出
func sortedCandidates(h candidateHeap) []Candidate {
	out := make([]Candidate, len(h))
	copy(out, h)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// CandidateSelector 单owner的有界近邻扫描加跨owner合并
type CandidateSelector struct {
	cache    *EmbeddingCache
	loader   CorpusLoader
	pageSize int
}

// NewCandidateSelector 创建候选选择器。
// cache可用时扫描owner语料缓存，关闭缓存时直接分页扫描持久层。
func NewCandidateSelector(cache *EmbeddingCache, loader CorpusLoader, pageSize int) *CandidateSelector {
	if pageSize <= 0 {
		pageSize = 500
	}
	return &CandidateSelector{cache: cache, loader: loader, pageSize: pageSize}
}

// TopForOwnerFromCache 从owner语料缓存取top-N候选，低于minScore的直接丢弃
func (s *CandidateSelector) TopForOwnerFromCache(ctx context.Context, queryEmbedding []float32, owner string, limit int, minScore float64) ([]Candidate, error) {
	if limit <= 0 {
		return nil, nil
	}
	if err := s.cache.EnsureOwnerLoaded(ctx, owner); err != nil {
		return nil, err
	}

	h := make(candidateHeap, 0, limit)
	s.cache.ScanOwner(owner, func(chunkID uint, embedding []float32) {
		semantic := CosineUnit(queryEmbedding, embedding)
		if semantic < minScore {
			return
		}
		offerCandidate(&h, Candidate{
			ChunkID:   chunkID,
			Owner:     owner,
			Semantic:  semantic,
			Score:     semantic,
			Embedding: embedding,
		}, limit)
	})

	return sortedCandidates(h), nil
}

// TopForOwnerFromStore 关闭缓存时的退化路径：逐页扫描持久层
func (s *CandidateSelector) TopForOwnerFromStore(ctx context.Context, queryEmbedding []float32, owner string, limit int, minScore float64) ([]Candidate, error) {
	if limit <= 0 {
		return nil, nil
	}

	h := make(candidateHeap, 0, limit)
	for page := 0; ; page++ {
		rows, err := s.loader.FindChunkEmbeddingsPage(ctx, []string{owner}, page, s.pageSize)
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			break
		}

		for _, row := range rows {
			embedding := DecodeEmbedding(row.EmbeddingJSON)
			if len(embedding) == 0 {
				continue
			}
			semantic := CosineUnit(queryEmbedding, embedding)
			if semantic < minScore {
				continue
			}
			offerCandidate(&h, Candidate{
				ChunkID:   row.ChunkID,
				Owner:     owner,
				Semantic:  semantic,
				Score:     semantic,
				Embedding: embedding,
			}, limit)
		}

		if len(rows) < s.pageSize {
			break
		}
	}

	return sortedCandidates(h), nil
}

// MergeCandidates 跨owner合并：按chunk id去重保留最高分，降序截断到maxTotal。
// 取最大分使结果与owner遍历顺序无关。
func MergeCandidates(candidates []Candidate, maxTotal int) []Candidate {
	bestByChunk := make(map[uint]Candidate, len(candidates))
	order := make([]uint, 0, len(candidates))

	for _, candidate := range candidates {
		current, seen := bestByChunk[candidate.ChunkID]
		if !seen {
			order = append(order, candidate.ChunkID)
			bestByChunk[candidate.ChunkID] = candidate
			continue
		}
		if candidate.Score > current.Score {
			bestByChunk[candidate.ChunkID] = candidate
		}
	}

	deduped := make([]Candidate, 0, len(order))
	for _, id := range order {
		deduped = append(deduped, bestByChunk[id])
	}
	sort.SliceStable(deduped, func(i, j int) bool { return deduped[i].Score > deduped[j].Score })

	if maxTotal > 0 && len(deduped) > maxTotal {
		deduped = deduped[:maxTotal]
	}
	return deduped
}

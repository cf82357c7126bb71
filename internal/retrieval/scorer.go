package retrieval

import (
	"math"
	"strings"

	"github.com/aihub/retrieval-go/internal/config"
	"github.com/aihub/retrieval-go/internal/models"
)

// HybridScorer 把语义相似度、词法重合度和owner加权合成一个最终分数。
// 权重在构造时归一化为和为1。
type HybridScorer struct {
	semanticWeight   float64
	lexicalWeight    float64
	exactMatchBoost  float64
	globalOwnerBoost float64
	userOwnerBoost   float64
}

// NewHybridScorer 按配置构造打分器，负权重按0处理，双零时退化为纯语义
func NewHybridScorer(cfg config.RagConfig) *HybridScorer {
	semWeight := math.Max(0, cfg.SemanticWeight)
	lexWeight := math.Max(0, cfg.LexicalWeight)
	if semWeight == 0 && lexWeight == 0 {
		semWeight = 1
	}
	total := semWeight + lexWeight

	return &HybridScorer{
		semanticWeight:   semWeight / total,
		lexicalWeight:    lexWeight / total,
		exactMatchBoost:  cfg.ExactMatchBoost,
		globalOwnerBoost: cfg.GlobalOwnerBoost,
		userOwnerBoost:   cfg.UserOwnerBoost,
	}
}

// Rescore 对语义候选做混合打分。
// 在chunkTextByID中找不到正文的候选被丢弃（批量解析时已消失的分块）。
func (h *HybridScorer) Rescore(query string, candidates []Candidate, chunkTextByID map[uint]string) []Candidate {
	if len(candidates) == 0 {
		return nil
	}

	normalizedQuery := NormalizeSearchText(query)
	queryTokens := TokenizeSearchText(normalizedQuery)

	rescored := make([]Candidate, 0, len(candidates))
	for _, candidate := range candidates {
		text, ok := chunkTextByID[candidate.ChunkID]
		if !ok {
			continue
		}

		semantic := normalizeCosineScore(candidate.Semantic)
		lexical := h.lexicalScore(normalizedQuery, queryTokens, text)
		boost := h.ownerBoost(candidate.Owner)

		candidate.Score = h.semanticWeight*semantic + h.lexicalWeight*lexical + boost
		rescored = append(rescored, candidate)
	}
	return rescored
}

// lexicalScore 词法分：0.75*覆盖率 + 0.25*Jaccard + 短语完整命中加成。
// 无token重合但归一化后包含完整查询串时，只给加成分。
func (h *HybridScorer) lexicalScore(normalizedQuery string, queryTokens map[string]struct{}, chunkText string) float64 {
	if len(queryTokens) == 0 || strings.TrimSpace(chunkText) == "" {
		return 0
	}

	normalizedChunk := NormalizeSearchText(chunkText)
	if normalizedChunk == "" {
		return 0
	}

	chunkTokens := TokenizeSearchText(normalizedChunk)
	if len(chunkTokens) == 0 {
		return 0
	}

	var overlap int
	for token := range queryTokens {
		if _, ok := chunkTokens[token]; ok {
			overlap++
		}
	}

	phraseMatch := normalizedQuery != "" && strings.Contains(normalizedChunk, normalizedQuery)

	if overlap == 0 {
		if phraseMatch {
			return clamp01(h.exactMatchBoost)
		}
		return 0
	}

	coverage := float64(overlap) / float64(len(queryTokens))
	jaccard := float64(overlap) / float64(len(queryTokens)+len(chunkTokens)-overlap)
	phraseBoost := 0.0
	if phraseMatch {
		phraseBoost = h.exactMatchBoost
	}

	return clamp01(coverage*0.75 + jaccard*0.25 + phraseBoost)
}

// ownerBoost 私有owner的语料更聚焦，给更高的固定加成
func (h *HybridScorer) ownerBoost(owner string) float64 {
	if strings.TrimSpace(owner) == "" {
		return 0
	}
	if strings.EqualFold(owner, models.GlobalOwner) {
		return h.globalOwnerBoost
	}
	return h.userOwnerBoost
}

// normalizeCosineScore 把cosine从[-1,1]重标到[0,1]
func normalizeCosineScore(cosine float64) float64 {
	if math.IsInf(cosine, 0) || math.IsNaN(cosine) {
		return 0
	}
	return clamp01((cosine + 1) / 2)
}

func clamp01(value float64) float64 {
	if math.IsInf(value, 0) || math.IsNaN(value) {
		return 0
	}
	if value < 0 {
		return 0
	}
	if value > 1 {
		return 1
	}
	return value
}

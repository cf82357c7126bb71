package retrieval

import (
	"math"
)

// RerankMMR 最大边际相关性重排：
// 先取分数最高的候选，之后每轮选使
// lambda*score - (1-lambda)*maxSimilarityToSelected 最大的未选候选。
// lambda=1退化为纯分数top-K，lambda=0在首选之后只看多样性。
// 输入要求已按分数降序。
func RerankMMR(candidates []Candidate, limit int, lambda float64) []Candidate {
	if len(candidates) == 0 || limit <= 0 {
		return nil
	}

	lambdaClamped := math.Min(1, math.Max(0, lambda))

	selected := make([]Candidate, 0, limit)
	selectedIDs := make(map[uint]struct{}, limit)

	selected = append(selected, candidates[0])
	selectedIDs[candidates[0].ChunkID] = struct{}{}

	for len(selected) < limit && len(selected) < len(candidates) {
		bestIdx := -1
		bestScore := math.Inf(-1)

		for i, candidate := range candidates {
			if _, done := selectedIDs[candidate.ChunkID]; done {
				continue
			}

			// 对已选集合取最相似的一个作为多样性惩罚
			diversity := math.Inf(-1)
			for _, chosen := range selected {
				sim := safeCosineUnit(candidate.Embedding, chosen.Embedding)
				if sim > diversity {
					diversity = sim
				}
			}

			mmrScore := lambdaClamped*candidate.Score - (1-lambdaClamped)*diversity
			if mmrScore > bestScore {
				bestScore = mmrScore
				bestIdx = i
			}
		}

		if bestIdx < 0 {
			break
		}
		selected = append(selected, candidates[bestIdx])
		selectedIDs[candidates[bestIdx].ChunkID] = struct{}{}
	}

	return selected
}

// safeCosineUnit 长度不匹配的-1哨兵值不参与多样性惩罚
func safeCosineUnit(a, b []float32) float64 {
	v := CosineUnit(a, b)
	if math.IsInf(v, 0) || math.IsNaN(v) || v <= -1 {
		return 0
	}
	return v
}

package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func mmrCandidate(id uint, score float64, embedding []float32) Candidate {
	return Candidate{ChunkID: id, Score: score, Embedding: Normalize(embedding)}
}

func TestRerankMMREmptyInput(t *testing.T) {
	assert.Nil(t, RerankMMR(nil, 5, 0.65))
	assert.Nil(t, RerankMMR([]Candidate{{ChunkID: 1}}, 0, 0.65))
}

func TestRerankMMRFirstPickIsHighestScored(t *testing.T) {
	candidates := []Candidate{
		mmrCandidate(1, 0.9, []float32{1, 0}),
		mmrCandidate(2, 0.8, []float32{0, 1}),
	}
	out := RerankMMR(candidates, 2, 0.0)
	assert.Equal(t, uint(1), out[0].ChunkID)
}

func TestRerankMMRLambdaOnePreservesScoreOrder(t *testing.T) {
	// lambda=1 时多样性项消失，等同于按分数截断
	candidates := []Candidate{
		mmrCandidate(1, 0.9, []float32{1, 0}),
		mmrCandidate(2, 0.8, []float32{1, 0}), // 与1完全重复
		mmrCandidate(3, 0.7, []float32{0, 1}),
	}
	out := RerankMMR(candidates, 3, 1.0)
	assert.Equal(t, []uint{1, 2, 3}, candidateIDs(out))
}

func TestRerankMMRLambdaZeroMaximizesDiversity(t *testing.T) {
	// lambda=0 时只看多样性：与已选最不相似的先出
	candidates := []Candidate{
		mmrCandidate(1, 0.9, []float32{1, 0}),
		mmrCandidate(2, 0.8, []float32{1, 0}), // 与已选的1完全重复
		mmrCandidate(3, 0.1, []float32{0, 1}), // 正交，低分也应排在2前
	}
	out := RerankMMR(candidates, 3, 0.0)
	assert.Equal(t, []uint{1, 3, 2}, candidateIDs(out))
}

func TestRerankMMRDeduplicates(t *testing.T) {
	// 近重复内容在重排后排名落后于差异化内容
	candidates := []Candidate{
		mmrCandidate(1, 0.95, []float32{1, 0, 0}),
		mmrCandidate(2, 0.94, []float32{1, 0.01, 0}),
		mmrCandidate(3, 0.60, []float32{0, 0, 1}),
	}
	out := RerankMMR(candidates, 2, 0.65)
	assert.Equal(t, []uint{1, 3}, candidateIDs(out))
}

func TestRerankMMRLimitBound(t *testing.T) {
	candidates := []Candidate{
		mmrCandidate(1, 0.9, []float32{1, 0}),
		mmrCandidate(2, 0.8, []float32{0, 1}),
		mmrCandidate(3, 0.7, []float32{1, 1}),
	}
	out := RerankMMR(candidates, 2, 0.65)
	assert.Len(t, out, 2)
}

func TestRerankMMRLambdaClamped(t *testing.T) {
	candidates := []Candidate{
		mmrCandidate(1, 0.9, []float32{1, 0}),
		mmrCandidate(2, 0.8, []float32{0, 1}),
	}
	// 越界lambda不会panic，行为等同clamp后的值
	assert.Equal(t, candidateIDs(RerankMMR(candidates, 2, 5.0)), candidateIDs(RerankMMR(candidates, 2, 1.0)))
	assert.Equal(t, candidateIDs(RerankMMR(candidates, 2, -3.0)), candidateIDs(RerankMMR(candidates, 2, 0.0)))
}

func candidateIDs(candidates []Candidate) []uint {
	ids := make([]uint, len(candidates))
	for i, c := range candidates {
		ids[i] = c.ChunkID
	}
	return ids
}

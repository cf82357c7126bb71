package retrieval

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"testing"

	"github.com/aihub/retrieval-go/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCorpusLoader 内存实现的分页加载端口，记录调用次数
type fakeCorpusLoader struct {
	mu    sync.Mutex
	rows  map[string][]repository.ChunkEmbeddingRow
	calls int
	err   error
}

func newFakeCorpusLoader() *fakeCorpusLoader {
	return &fakeCorpusLoader{rows: make(map[string][]repository.ChunkEmbeddingRow)}
}

func (f *fakeCorpusLoader) add(owner string, chunkID uint, embedding []float32) {
	payload, _ := json.Marshal(embedding)
	f.rows[owner] = append(f.rows[owner], repository.ChunkEmbeddingRow{ChunkID: chunkID, EmbeddingJSON: string(payload)})
}

func (f *fakeCorpusLoader) addRaw(owner string, chunkID uint, embeddingJSON string) {
	f.rows[owner] = append(f.rows[owner], repository.ChunkEmbeddingRow{ChunkID: chunkID, EmbeddingJSON: embeddingJSON})
}

func (f *fakeCorpusLoader) FindChunkEmbeddingsPage(ctx context.Context, owners []string, page, pageSize int) ([]repository.ChunkEmbeddingRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}

	var all []repository.ChunkEmbeddingRow
	for _, owner := range owners {
		all = append(all, f.rows[owner]...)
	}
	start := page * pageSize
	if start >= len(all) {
		return nil, nil
	}
	end := start + pageSize
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], nil
}

func (f *fakeCorpusLoader) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestTopForOwnerFromStoreBoundAndOrdered(t *testing.T) {
	loader := newFakeCorpusLoader()
	// 10个候选沿单位圆分布，与查询向量的相似度各不相同
	for i := 0; i < 10; i++ {
		angle := float64(i) * 0.1
		loader.add("global", uint(i+1), []float32{float32(1 - angle), float32(angle)})
	}

	selector := NewCandidateSelector(NewEmbeddingCache(loader, 500), loader, 3)
	query := Normalize([]float32{1, 0})

	got, err := selector.TopForOwnerFromStore(context.Background(), query, "global", 4, -1.0)
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.True(t, sort.SliceIsSorted(got, func(i, j int) bool { return got[i].Score > got[j].Score }))
	// 最接近查询方向的chunk 1必然入选
	assert.Equal(t, uint(1), got[0].ChunkID)
}

func TestTopForOwnerFromStoreMinScoreFilters(t *testing.T) {
	loader := newFakeCorpusLoader()
	loader.add("global", 1, []float32{1, 0})
	loader.add("global", 2, []float32{-1, 0})

	selector := NewCandidateSelector(NewEmbeddingCache(loader, 500), loader, 500)
	query := Normalize([]float32{1, 0})

	got, err := selector.TopForOwnerFromStore(context.Background(), query, "global", 10, 0.5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, uint(1), got[0].ChunkID)
}

func TestTopForOwnerFromStoreSkipsCorruptEmbeddings(t *testing.T) {
	loader := newFakeCorpusLoader()
	loader.add("global", 1, []float32{1, 0})
	loader.addRaw("global", 2, "{not json")

	selector := NewCandidateSelector(NewEmbeddingCache(loader, 500), loader, 500)
	got, err := selector.TopForOwnerFromStore(context.Background(), Normalize([]float32{1, 0}), "global", 10, -1.0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, uint(1), got[0].ChunkID)
}

func TestTopForOwnerFromCacheUsesLoadedCorpus(t *testing.T) {
	loader := newFakeCorpusLoader()
	loader.add("alice", 1, []float32{1, 0})
	loader.add("alice", 2, []float32{0, 1})

	cache := NewEmbeddingCache(loader, 500)
	selector := NewCandidateSelector(cache, loader, 500)
	query := Normalize([]float32{1, 0})

	got, err := selector.TopForOwnerFromCache(context.Background(), query, "alice", 10, -1.0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, uint(1), got[0].ChunkID)
	assert.True(t, cache.OwnerLoaded("alice"))

	// 第二次查询命中缓存，不再触发分页加载
	before := loader.callCount()
	_, err = selector.TopForOwnerFromCache(context.Background(), query, "alice", 10, -1.0)
	require.NoError(t, err)
	assert.Equal(t, before, loader.callCount())
}

func TestTopForOwnerZeroLimit(t *testing.T) {
	loader := newFakeCorpusLoader()
	selector := NewCandidateSelector(NewEmbeddingCache(loader, 500), loader, 500)

	got, err := selector.TopForOwnerFromStore(context.Background(), Normalize([]float32{1, 0}), "global", 0, -1.0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMergeCandidatesDeduplicatesKeepingMaxScore(t *testing.T) {
	merged := MergeCandidates([]Candidate{
		{ChunkID: 1, Owner: "global", Score: 0.4},
		{ChunkID: 2, Owner: "global", Score: 0.9},
		{ChunkID: 1, Owner: "alice", Score: 0.7},
	}, 10)

	require.Len(t, merged, 2)
	assert.Equal(t, uint(2), merged[0].ChunkID)
	assert.Equal(t, uint(1), merged[1].ChunkID)
	assert.Equal(t, 0.7, merged[1].Score)
	assert.Equal(t, "alice", merged[1].Owner)
}

func TestMergeCandidatesOrderIndependent(t *testing.T) {
	a := []Candidate{{ChunkID: 1, Score: 0.4}, {ChunkID: 1, Score: 0.7}}
	b := []Candidate{{ChunkID: 1, Score: 0.7}, {ChunkID: 1, Score: 0.4}}

	ma := MergeCandidates(a, 10)
	mb := MergeCandidates(b, 10)
	require.Len(t, ma, 1)
	require.Len(t, mb, 1)
	assert.Equal(t, ma[0].Score, mb[0].Score)
}

func TestMergeCandidatesTruncates(t *testing.T) {
	var in []Candidate
	for i := 0; i < 20; i++ {
		in = append(in, Candidate{ChunkID: uint(i + 1), Score: float64(i)})
	}
	merged := MergeCandidates(in, 5)
	require.Len(t, merged, 5)
	assert.Equal(t, float64(19), merged[0].Score)
}

func TestOfferCandidateHeapBound(t *testing.T) {
	h := make(candidateHeap, 0, 3)
	for i := 0; i < 100; i++ {
		offerCandidate(&h, Candidate{ChunkID: uint(i + 1), Score: float64(i)}, 3)
	}
	out := sortedCandidates(h)
	require.Len(t, out, 3)
	assert.Equal(t, []uint{100, 99, 98}, candidateIDs(out))
}

func TestOfferCandidateEqualScoreKeepsIncumbent(t *testing.T) {
	// 分数相等时不替换堆顶，先到者保留
	h := make(candidateHeap, 0, 1)
	offerCandidate(&h, Candidate{ChunkID: 1, Score: 0.5}, 1)
	offerCandidate(&h, Candidate{ChunkID: 2, Score: 0.5}, 1)
	require.Len(t, h, 1)
	assert.Equal(t, uint(1), h[0].ChunkID)
}

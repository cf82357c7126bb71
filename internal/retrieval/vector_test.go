package retrieval

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func vectorNorm(vec []float32) float64 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}

func TestNormalizeUnitLength(t *testing.T) {
	unit := Normalize([]float32{3, 4})
	assert.NotNil(t, unit)
	assert.InDelta(t, 1.0, vectorNorm(unit), 1e-6)
	assert.InDelta(t, 0.6, float64(unit[0]), 1e-6)
	assert.InDelta(t, 0.8, float64(unit[1]), 1e-6)
}

func TestNormalizeRejectsDegenerate(t *testing.T) {
	assert.Nil(t, Normalize(nil))
	assert.Nil(t, Normalize([]float32{}))
	assert.Nil(t, Normalize([]float32{0, 0, 0}))
	assert.Nil(t, Normalize([]float32{float32(math.NaN()), 1}))
	assert.Nil(t, Normalize([]float32{float32(math.Inf(1)), 1}))
}

func TestNormalizeDoesNotMutateInput(t *testing.T) {
	in := []float32{3, 4}
	_ = Normalize(in)
	assert.Equal(t, []float32{3, 4}, in)
}

func TestCosineUnitIdentity(t *testing.T) {
	v := Normalize([]float32{1, 2, 3})
	assert.InDelta(t, 1.0, CosineUnit(v, v), 1e-6)
}

func TestCosineUnitOrthogonal(t *testing.T) {
	a := Normalize([]float32{1, 0})
	b := Normalize([]float32{0, 1})
	assert.InDelta(t, 0.0, CosineUnit(a, b), 1e-6)
}

func TestCosineUnitOpposite(t *testing.T) {
	a := Normalize([]float32{1, 0})
	b := Normalize([]float32{-1, 0})
	assert.InDelta(t, -1.0, CosineUnit(a, b), 1e-6)
}

func TestCosineUnitMismatchedOrEmpty(t *testing.T) {
	// 维度不一致或空向量按最差相似度处理
	assert.Equal(t, -1.0, CosineUnit([]float32{1, 0}, []float32{1, 0, 0}))
	assert.Equal(t, -1.0, CosineUnit(nil, []float32{1}))
	assert.Equal(t, -1.0, CosineUnit([]float32{1}, nil))
}

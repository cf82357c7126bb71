package retrieval

import (
	"math"
)

// Normalize 将向量归一化为单位向量。
// 输入为空、范数非正或非有限时返回nil，表示"没有可用embedding"，
// 上层据此跳过该分块，绝不会缓存零向量。
func Normalize(vec []float32) []float32 {
	if len(vec) == 0 {
		return nil
	}

	var normSquared float64
	for _, v := range vec {
		normSquared += float64(v) * float64(v)
	}
	if normSquared <= 0 || math.IsInf(normSquared, 0) || math.IsNaN(normSquared) {
		return nil
	}

	norm := math.Sqrt(normSquared)
	normalized := make([]float32, len(vec))
	for i, v := range vec {
		normalized[i] = float32(float64(v) / norm)
	}
	return normalized
}

// CosineUnit 单位向量相似度。
// 等价于余弦相似度但只做一次乘加循环，是整个引擎的性能热点。
// 长度不一致或为空时返回-1。
func CosineUnit(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return -1.0
	}

	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	if math.IsInf(dot, 0) || math.IsNaN(dot) {
		return -1.0
	}
	return dot
}

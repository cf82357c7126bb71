package retrieval

import (
	"strings"
)

// ChunkText 将文本切分为带重叠的固定窗口。
// 空文本或size<=0返回空；overlap为负按0处理，overlap>=size时退化为size/2，
// 保证每轮窗口起点前进，步数上界为O(len/(size-overlap))。
// 最后一个窗口恰好终止于文本末尾。
func ChunkText(text string, size, overlap int) []string {
	clean := strings.TrimSpace(text)
	if clean == "" || size <= 0 {
		return nil
	}

	safeOverlap := overlap
	if safeOverlap < 0 {
		safeOverlap = 0
	}
	if safeOverlap >= size {
		safeOverlap = size / 2
	}

	runes := []rune(clean)
	var out []string

	start := 0
	for start < len(runes) {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}

		piece := strings.TrimSpace(string(runes[start:end]))
		if piece != "" {
			out = append(out, piece)
		}

		if end == len(runes) {
			break
		}
		start = end - safeOverlap
		if start < 0 {
			start = 0
		}
	}
	return out
}

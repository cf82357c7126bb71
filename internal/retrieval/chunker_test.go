package retrieval

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChunkTextBasicWindow(t *testing.T) {
	assert.Equal(t, []string{"abc", "cde", "ef"}, ChunkText("abcdef", 3, 1))
}

func TestChunkTextOversizeOverlapFallsBack(t *testing.T) {
	// overlap >= size 时退化为 size/2，保证窗口仍然前进
	assert.Equal(t, []string{"abc", "cde", "ef"}, ChunkText("abcdef", 3, 10))
}

func TestChunkTextNegativeOverlap(t *testing.T) {
	assert.Equal(t, []string{"abc", "def"}, ChunkText("abcdef", 3, -5))
}

func TestChunkTextBlankInput(t *testing.T) {
	assert.Nil(t, ChunkText("", 3, 1))
	assert.Nil(t, ChunkText("   \n\t  ", 3, 1))
}

func TestChunkTextInvalidSize(t *testing.T) {
	assert.Nil(t, ChunkText("abcdef", 0, 1))
	assert.Nil(t, ChunkText("abcdef", -1, 1))
}

func TestChunkTextShorterThanSize(t *testing.T) {
	assert.Equal(t, []string{"abc"}, ChunkText("abc", 100, 10))
}

func TestChunkTextTrimsPiecesAndDropsEmpty(t *testing.T) {
	// 每个分块去首尾空白，trim后为空的分块丢弃
	pieces := ChunkText("ab    cd", 4, 0)
	for _, p := range pieces {
		assert.NotEmpty(t, p)
		assert.Equal(t, strings.TrimSpace(p), p)
	}
}

func TestChunkTextRuneBoundaries(t *testing.T) {
	// 多字节字符按rune切分，不会截断UTF-8序列
	pieces := ChunkText("日本語のテキスト", 3, 1)
	assert.NotEmpty(t, pieces)
	for _, p := range pieces {
		assert.True(t, len([]rune(p)) <= 3)
		assert.True(t, strings.ContainsAny(p, "日本語のテキスト"))
	}
}

func TestChunkTextCoversWholeInput(t *testing.T) {
	text := strings.Repeat("x", 2500)
	pieces := ChunkText(text, 900, 150)
	assert.Equal(t, 900, len([]rune(pieces[0])))

	total := 0
	for _, p := range pieces {
		total += len([]rune(p))
	}
	// 相邻分块有150字符重叠，合计长度必然超过原文
	assert.GreaterOrEqual(t, total, 2500)
}

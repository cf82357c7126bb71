package retrieval

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// 西语/英语停用词，与语料主要语种对应
var stopwords = map[string]struct{}{
	"de": {}, "la": {}, "el": {}, "los": {}, "las": {}, "y": {}, "o": {}, "u": {},
	"en": {}, "por": {}, "para": {}, "con": {}, "sin": {}, "del": {}, "al": {},
	"que": {}, "como": {}, "donde": {}, "cuando": {}, "cual": {}, "cuales": {},
	"quien": {}, "quienes": {}, "porque": {}, "sobre": {},
	"the": {}, "and": {}, "or": {}, "for": {}, "with": {}, "from": {}, "this": {},
	"that": {}, "those": {}, "these": {}, "into": {}, "your": {}, "you": {},
}

// stripMarks NFD分解后去掉组合符号，实现去重音
var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)))

// NormalizeSearchText 词法匹配前的文本归一：
// 去重音、转小写、去掉字母数字以外的字符、压缩空白。
func NormalizeSearchText(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}

	stripped, _, err := transform.String(stripMarks, text)
	if err != nil {
		stripped = text
	}
	lower := strings.ToLower(stripped)

	var b strings.Builder
	b.Grow(len(lower))
	prevSpace := true
	for _, r := range lower {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			prevSpace = false
			continue
		}
		if !prevSpace {
			b.WriteRune(' ')
			prevSpace = true
		}
	}
	return strings.TrimSpace(b.String())
}

// TokenizeSearchText 对已归一化文本分词，丢弃短词和停用词
func TokenizeSearchText(normalized string) map[string]struct{} {
	if normalized == "" {
		return nil
	}

	tokens := make(map[string]struct{})
	for _, token := range strings.Fields(normalized) {
		if len([]rune(token)) < 3 {
			continue
		}
		if _, stop := stopwords[token]; stop {
			continue
		}
		tokens[token] = struct{}{}
	}
	return tokens
}

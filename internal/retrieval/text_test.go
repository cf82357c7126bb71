package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeSearchTextStripsAccentsAndPunctuation(t *testing.T) {
	assert.Equal(t, "cafe con leche", NormalizeSearchText("¿Café con leche?"))
	assert.Equal(t, "hola mundo", NormalizeSearchText("  Hola,   MUNDO!  "))
}

func TestNormalizeSearchTextKeepsDigits(t *testing.T) {
	assert.Equal(t, "puerto 8080 abierto", NormalizeSearchText("Puerto 8080 abierto"))
}

func TestNormalizeSearchTextBlank(t *testing.T) {
	assert.Equal(t, "", NormalizeSearchText(""))
	assert.Equal(t, "", NormalizeSearchText("  ¡¿?!  "))
}

func TestTokenizeSearchTextDropsStopwordsAndShortTokens(t *testing.T) {
	tokens := TokenizeSearchText("el perro y la casa de mi tía")
	// "el", "y", "la", "de", "mi" 是停用词，"tía"归一为"tia"
	assert.Contains(t, tokens, "perro")
	assert.Contains(t, tokens, "casa")
	assert.Contains(t, tokens, "tia")
	assert.NotContains(t, tokens, "el")
	assert.NotContains(t, tokens, "la")
	assert.NotContains(t, tokens, "de")
}

func TestTokenizeSearchTextEnglishStopwords(t *testing.T) {
	tokens := TokenizeSearchText("the quick brown fox and the lazy dog")
	assert.NotContains(t, tokens, "the")
	assert.NotContains(t, tokens, "and")
	assert.Contains(t, tokens, "quick")
	assert.Contains(t, tokens, "fox")
}

func TestTokenizeSearchTextMinimumLength(t *testing.T) {
	tokens := TokenizeSearchText("ir ab xyz")
	assert.NotContains(t, tokens, "ir")
	assert.NotContains(t, tokens, "ab")
	assert.Contains(t, tokens, "xyz")
}

func TestTokenizeSearchTextEmpty(t *testing.T) {
	assert.Empty(t, TokenizeSearchText(""))
	assert.Empty(t, TokenizeSearchText("el la de"))
}

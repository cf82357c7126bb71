package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewCachedChunkStoreNilClientPassthrough(t *testing.T) {
	store, _ := newMockStore(t)

	wrapped := NewCachedChunkStore(store, nil, time.Hour)
	assert.Same(t, store, wrapped)
}

func TestChunkKeyFormat(t *testing.T) {
	assert.Equal(t, "rag:chunk:42", chunkKey(42))
}

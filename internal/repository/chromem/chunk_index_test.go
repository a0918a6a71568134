package chromem

import (
	"context"
	"testing"

	"veritasai-be/internal/entity"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chunk(docID uuid.UUID, idx int, vec []float32) *entity.DocumentChunk {
	tokens := 3
	return &entity.DocumentChunk{
		Id:         uuid.New(),
		DocumentId: docID,
		ChunkIndex: idx,
		Content:    "chunk content",
		Embedding:  vec,
		TokenCount: &tokens,
	}
}

func TestChunkIndex_SearchSimilar(t *testing.T) {
	ctx := context.Background()
	idx, err := NewChunkIndex("")
	require.NoError(t, err)

	docA, docB, docC := uuid.New(), uuid.New(), uuid.New()
	require.NoError(t, idx.Index(ctx, []*entity.DocumentChunk{
		chunk(docA, 0, []float32{1, 0, 0}),
		chunk(docA, 1, []float32{0.7, 0.7, 0}),
		chunk(docB, 0, []float32{0.9, 0.1, 0}),
		chunk(docC, 0, []float32{1, 0, 0}),
	}))
	assert.Equal(t, 4, idx.Count())

	got, err := idx.SearchSimilar(ctx, []float32{1, 0, 0}, []uuid.UUID{docA, docB}, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, docA, got[0].DocumentID)
	assert.Equal(t, 0, got[0].ChunkIndex)
	assert.Equal(t, docB, got[1].DocumentID)
	assert.GreaterOrEqual(t, got[0].Similarity, got[1].Similarity)
	require.NotNil(t, got[0].TokenCount)
	assert.Equal(t, 3, *got[0].TokenCount)

	for _, c := range got {
		assert.NotEqual(t, docC, c.DocumentID)
	}
}

func TestChunkIndex_DeleteDocument(t *testing.T) {
	ctx := context.Background()
	idx, err := NewChunkIndex("")
	require.NoError(t, err)

	docA, docB := uuid.New(), uuid.New()
	require.NoError(t, idx.Index(ctx, []*entity.DocumentChunk{
		chunk(docA, 0, []float32{1, 0}),
		chunk(docB, 0, []float32{0, 1}),
	}))

	require.NoError(t, idx.DeleteDocument(ctx, docA))
	assert.Equal(t, 1, idx.Count())

	got, err := idx.SearchSimilar(ctx, []float32{1, 0}, []uuid.UUID{docA}, 5)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestChunkIndex_Empty(t *testing.T) {
	idx, err := NewChunkIndex("")
	require.NoError(t, err)

	got, err := idx.SearchSimilar(context.Background(), []float32{1}, []uuid.UUID{uuid.New()}, 5)
	require.NoError(t, err)
	assert.Empty(t, got)
}

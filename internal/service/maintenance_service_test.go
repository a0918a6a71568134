package service

import (
	"context"
	"testing"

	"veritasai-be/internal/entity"
	"veritasai-be/internal/pkg/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaintenanceService_BackfillTokenCounts(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()
	docId := uuid.New()
	known := 7

	chunks := []*entity.DocumentChunk{
		{Id: uuid.New(), DocumentId: docId, ChunkIndex: 0, Content: "twelve chars"},
		{Id: uuid.New(), DocumentId: docId, ChunkIndex: 1, Content: "already counted", TokenCount: &known},
		{Id: uuid.New(), DocumentId: docId, ChunkIndex: 2, Content: "a bit longer piece of text"},
	}
	require.NoError(t, store.NewUnitOfWork(ctx).DocumentChunkRepository().CreateBulk(ctx, chunks))

	svc := &maintenanceService{uowFactory: store, batchSize: 1, logger: logger.NewNopLogger()}
	updated, err := svc.BackfillTokenCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, updated)

	got := store.chunks[docId]
	require.NotNil(t, got[0].TokenCount)
	assert.Equal(t, 3, *got[0].TokenCount)
	assert.Equal(t, 7, *got[1].TokenCount)
	assert.Equal(t, 7, *got[2].TokenCount)

	updated, err = NewMaintenanceService(store, nil).BackfillTokenCounts(ctx)
	require.NoError(t, err)
	assert.Zero(t, updated)
}

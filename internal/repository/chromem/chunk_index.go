// Package chromem keeps chunk vectors in an in-process chromem-go collection.
package chromem

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"strconv"

	"veritasai-be/internal/entity"
	"veritasai-be/internal/repository/contract"
	"veritasai-be/pkg/rag"

	"github.com/google/uuid"
	"github.com/philippgille/chromem-go"
)

const (
	collectionName = "document_chunks"

	metaDocumentID = "document_id"
	metaChunkIndex = "chunk_index"
	metaTokenCount = "token_count"
)

type ChunkIndex struct {
	db         *chromem.DB
	collection *chromem.Collection
}

// NewChunkIndex opens a persistent database when path is set, otherwise an
// in-memory one.
func NewChunkIndex(path string) (*ChunkIndex, error) {
	var db *chromem.DB
	if path == "" {
		db = chromem.NewDB()
	} else {
		var err error
		db, err = chromem.NewPersistentDB(path, false)
		if err != nil {
			return nil, fmt.Errorf("open chromem db: %w", err)
		}
	}

	collection, err := db.GetOrCreateCollection(collectionName, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("open chromem collection: %w", err)
	}
	return &ChunkIndex{db: db, collection: collection}, nil
}

func (i *ChunkIndex) Index(ctx context.Context, chunks []*entity.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	docs := make([]chromem.Document, 0, len(chunks))
	for _, c := range chunks {
		meta := map[string]string{
			metaDocumentID: c.DocumentId.String(),
			metaChunkIndex: strconv.Itoa(c.ChunkIndex),
		}
		if c.TokenCount != nil {
			meta[metaTokenCount] = strconv.Itoa(*c.TokenCount)
		}
		docs = append(docs, chromem.Document{
			ID:        c.Id.String(),
			Metadata:  meta,
			Embedding: c.Embedding,
			Content:   c.Content,
		})
	}
	return i.collection.AddDocuments(ctx, docs, runtime.NumCPU())
}

func (i *ChunkIndex) DeleteDocument(ctx context.Context, documentId uuid.UUID) error {
	return i.collection.Delete(ctx, map[string]string{metaDocumentID: documentId.String()}, nil)
}

// SearchSimilar queries each document separately, since chromem filters only
// on equality, then merges the per-document results.
func (i *ChunkIndex) SearchSimilar(ctx context.Context, vector []float32, documentIds []uuid.UUID, limit int) ([]rag.ScoredChunk, error) {
	total := i.collection.Count()
	if total == 0 || len(vector) == 0 || len(documentIds) == 0 {
		return []rag.ScoredChunk{}, nil
	}
	if limit <= 0 {
		limit = rag.DefaultTopK
	}
	n := min(limit, total)

	var merged []rag.ScoredChunk
	for _, docID := range documentIds {
		results, err := i.collection.QueryEmbedding(ctx, vector, n, map[string]string{metaDocumentID: docID.String()}, nil)
		if err != nil {
			return nil, fmt.Errorf("chromem query: %w", err)
		}
		for _, r := range results {
			sc, err := toScoredChunk(r)
			if err != nil {
				return nil, err
			}
			merged = append(merged, sc)
		}
	}

	sort.SliceStable(merged, func(a, b int) bool {
		return merged[a].Similarity > merged[b].Similarity
	})
	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged, nil
}

func (i *ChunkIndex) Count() int {
	return i.collection.Count()
}

func toScoredChunk(r chromem.Result) (rag.ScoredChunk, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return rag.ScoredChunk{}, fmt.Errorf("chromem result id %q: %w", r.ID, err)
	}
	docID, err := uuid.Parse(r.Metadata[metaDocumentID])
	if err != nil {
		return rag.ScoredChunk{}, fmt.Errorf("chromem result %s document id: %w", r.ID, err)
	}
	idx, _ := strconv.Atoi(r.Metadata[metaChunkIndex])

	sc := rag.ScoredChunk{
		ID:         id,
		DocumentID: docID,
		ChunkIndex: idx,
		Content:    r.Content,
		Similarity: float64(r.Similarity),
	}
	if raw, ok := r.Metadata[metaTokenCount]; ok {
		if n, err := strconv.Atoi(raw); err == nil {
			sc.TokenCount = &n
		}
	}
	return sc, nil
}

var _ contract.ChunkIndex = (*ChunkIndex)(nil)

package events

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestNewDocumentEvent(t *testing.T) {
	docID, userID := uuid.New(), uuid.New()
	e := NewDocumentEvent(TypeDocumentFailed, docID, userID, map[string]interface{}{"error": "boom"})

	assert.Equal(t, "document.failed", e.EventType())
	assert.Equal(t, userID.String(), e.Payload()["user_id"])
	assert.Equal(t, "boom", e.Payload()["error"])
	assert.False(t, e.Timestamp().IsZero())
	assert.NotEmpty(t, e.ID())
	assert.NotEqual(t, e.ID(), NewDocumentEvent(TypeDocumentFailed, docID, userID, nil).ID())

	got, ok := DocumentID(e)
	assert.True(t, ok)
	assert.Equal(t, docID, got)

	_, ok = DocumentID(BaseEvent{Data: map[string]interface{}{"document_id": "nope"}})
	assert.False(t, ok)
}

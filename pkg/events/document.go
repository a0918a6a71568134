package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	TypeProcessDocument   = "jobs.process_document"
	TypeDocumentCompleted = "document.completed"
	TypeDocumentFailed    = "document.failed"
)

// NewDocumentEvent builds an event whose payload always carries the
// document and user ids.
func NewDocumentEvent(eventType string, documentID, userID uuid.UUID, extra map[string]interface{}) BaseEvent {
	data := map[string]interface{}{
		"document_id": documentID.String(),
		"user_id":     userID.String(),
	}
	for k, v := range extra {
		data[k] = v
	}
	return BaseEvent{
		EventID:    uuid.NewString(),
		Type:       eventType,
		Data:       data,
		OccurredAt: time.Now(),
	}
}

// DocumentID reads the document id back out of a payload.
func DocumentID(e Event) (uuid.UUID, bool) {
	raw, ok := e.Payload()["document_id"].(string)
	if !ok {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	return id, err == nil
}

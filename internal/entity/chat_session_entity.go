package entity

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultSessionTitle = "New Chat"
	autoTitleLength     = 50
)

type ChatSession struct {
	Id               uuid.UUID
	UserId           uuid.UUID
	DocumentId       *uuid.UUID
	Title            string
	Provider         string
	Model            string
	Temperature      float64
	MaxTokens        int
	MaxContextTokens int
	MessageCount     int
	LastActivityAt   *time.Time
	DocumentIds      []uuid.UUID
	CreatedAt        time.Time
	UpdatedAt        *time.Time
	DeletedAt        *time.Time
	IsDeleted        bool
}

// Touch records a finished turn that added n messages.
func (s *ChatSession) Touch(n int, at time.Time) {
	s.MessageCount += n
	s.LastActivityAt = &at
}

// AutoTitle replaces the default title with the start of the first question.
// It reports whether the title changed.
func (s *ChatSession) AutoTitle(firstQuestion string) bool {
	if s.Title != "" && s.Title != DefaultSessionTitle {
		return false
	}
	q := strings.TrimSpace(firstQuestion)
	if q == "" {
		return false
	}
	r := []rune(q)
	if len(r) > autoTitleLength {
		q = string(r[:autoTitleLength]) + "..."
	}
	s.Title = q
	return true
}

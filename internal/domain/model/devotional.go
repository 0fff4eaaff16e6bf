package model

import (
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"jesusia-companion/internal/domain"
)

// Devotional is an excerpt the user chose to keep.
type Devotional struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

func NewDevotional(content string, at time.Time) (*Devotional, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, domain.ErrInvalidArgument
	}
	return &Devotional{ID: ulid.Make().String(), Content: content, Timestamp: at}, nil
}

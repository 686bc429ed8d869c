package domain

import "github.com/google/uuid"

// Attr is a single key/value attribute sent to the backend.
// Value is one of uint64, int64, string, float64 or bool.
type Attr struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// TimelineID identifies a backend timeline. One is allocated per data stream.
type TimelineID = uuid.UUID

// NewTimelineID allocates a globally unique timeline id.
func NewTimelineID() TimelineID {
	return uuid.New()
}

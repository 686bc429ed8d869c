package domain

import "time"

// RecordKind distinguishes timeline attribute records from event records.
type RecordKind string

const (
	RecordTimeline RecordKind = "timeline"
	RecordEvent    RecordKind = "event"
)

// Record is one backend write: either the attributes of a timeline or one
// event on it. Ordering is only meaningful for events.
type Record struct {
	Kind       RecordKind `json:"kind"`
	TimelineID TimelineID `json:"timeline_id"`
	RunID      string     `json:"run_id"`
	Name       string     `json:"name"`
	Ordering   uint64     `json:"ordering"`
	Attrs      []Attr     `json:"attrs"`
	ReceivedAt time.Time  `json:"received_at"`
}

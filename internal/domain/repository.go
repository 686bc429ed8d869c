package domain

import "context"

// PacketSource yields decoded packets in stream order.
// Next returns io.EOF once the stream is exhausted; any other error is terminal.
type PacketSource interface {
	Next(ctx context.Context) (*Packet, error)
}

// IngestStatus reports the backend client's event counters.
type IngestStatus struct {
	Received uint64 `json:"events_received"`
	Written  uint64 `json:"events_written"`
	Pending  uint64 `json:"events_pending"`
}

// IngestClient is the client-side contract of the telemetry backend.
// Implementations are not safe for concurrent use; a single forwarder owns one.
type IngestClient interface {
	// SwitchTimeline makes id the timeline subsequent attrs and events apply to.
	SwitchTimeline(ctx context.Context, id TimelineID) error

	// SendTimelineAttrs publishes the attributes of the active timeline.
	SendTimelineAttrs(ctx context.Context, name string, attrs []Attr) error

	// SendEvent records an event on the active timeline.
	SendEvent(ctx context.Context, name string, ordering uint64, attrs []Attr) error

	// Flush pushes any buffered records to the backend.
	Flush(ctx context.Context) error

	Status(ctx context.Context) (IngestStatus, error)

	// Close releases the client. It does not flush.
	Close() error
}

package mocks

import (
	"context"
	"io"
	"sync"

	"github.com/V4T54L/ctf-relay/internal/domain"
)

// SentTimelineAttrs is one recorded SendTimelineAttrs call.
type SentTimelineAttrs struct {
	Timeline domain.TimelineID
	Name     string
	Attrs    []domain.Attr
}

// SentEvent is one recorded SendEvent call.
type SentEvent struct {
	Timeline domain.TimelineID
	Name     string
	Ordering uint64
	Attrs    []domain.Attr
}

// AttrMap returns the event attributes keyed by name.
func (e SentEvent) AttrMap() map[string]any {
	m := make(map[string]any, len(e.Attrs))
	for _, a := range e.Attrs {
		m[a.Key] = a.Value
	}
	return m
}

// MockIngestClient is a mock implementation of domain.IngestClient for testing.
type MockIngestClient struct {
	mu            sync.Mutex
	active        domain.TimelineID
	Switches      []domain.TimelineID
	TimelineAttrs []SentTimelineAttrs
	Events        []SentEvent
	Flushes       int
	Closed        bool
	SwitchErr     error
	AttrsErr      error
	EventErr      error
	FlushErr      error
	StatusErr     error
}

func (m *MockIngestClient) SwitchTimeline(ctx context.Context, id domain.TimelineID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SwitchErr != nil {
		return m.SwitchErr
	}
	m.active = id
	m.Switches = append(m.Switches, id)
	return nil
}

func (m *MockIngestClient) SendTimelineAttrs(ctx context.Context, name string, attrs []domain.Attr) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.AttrsErr != nil {
		return m.AttrsErr
	}
	m.TimelineAttrs = append(m.TimelineAttrs, SentTimelineAttrs{Timeline: m.active, Name: name, Attrs: attrs})
	return nil
}

func (m *MockIngestClient) SendEvent(ctx context.Context, name string, ordering uint64, attrs []domain.Attr) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.EventErr != nil {
		return m.EventErr
	}
	m.Events = append(m.Events, SentEvent{Timeline: m.active, Name: name, Ordering: ordering, Attrs: attrs})
	return nil
}

func (m *MockIngestClient) Flush(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FlushErr != nil {
		return m.FlushErr
	}
	m.Flushes++
	return nil
}

func (m *MockIngestClient) Status(ctx context.Context) (domain.IngestStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.StatusErr != nil {
		return domain.IngestStatus{}, m.StatusErr
	}
	n := uint64(len(m.Events))
	return domain.IngestStatus{Received: n, Written: n}, nil
}

func (m *MockIngestClient) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
	return nil
}

// EventsOn returns the events recorded on the given timeline, in send order.
func (m *MockIngestClient) EventsOn(id domain.TimelineID) []SentEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []SentEvent
	for _, e := range m.Events {
		if e.Timeline == id {
			out = append(out, e)
		}
	}
	return out
}

// MockPacketSource replays Packets, then returns Err (io.EOF when nil).
type MockPacketSource struct {
	mu      sync.Mutex
	Packets []*domain.Packet
	Err     error
	next    int
}

func (m *MockPacketSource) Next(ctx context.Context) (*domain.Packet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.next < len(m.Packets) {
		pkt := m.Packets[m.next]
		m.next++
		return pkt, nil
	}
	if m.Err != nil {
		return nil, m.Err
	}
	return nil, io.EOF
}

package usecase

import (
	"log/slog"

	"github.com/V4T54L/ctf-relay/internal/adapter/metrics"
	"github.com/V4T54L/ctf-relay/internal/domain"
)

// RolloverTracker corrects a fixed-width cycle counter for wraparound.
type RolloverTracker struct {
	width     uint
	lastRaw   uint64
	rollovers uint64
}

// NewRolloverTracker creates a tracker for a counter of the given bit width (1-64).
func NewRolloverTracker(width uint) *RolloverTracker {
	return &RolloverTracker{width: width}
}

// Elapsed folds a new raw sample into the tracker and returns the corrected
// cycle count: rollovers*2^width + raw.
func (t *RolloverTracker) Elapsed(raw uint64) uint64 {
	if raw < t.lastRaw {
		t.rollovers++
	}
	t.lastRaw = raw
	if t.width >= 64 {
		return raw
	}
	return t.rollovers<<t.width + raw
}

// streamState is the runtime state of one data stream. It is dropped on restart.
type streamState struct {
	tracker     *RolloverTracker
	clockAttrs  []domain.Attr
	eventCount  uint64
	seqnum      *uint64
	nextOrdinal uint64
}

// observeContext applies the discarded-event and sequence number bookkeeping of a packet.
func (s *streamState) observeContext(pc *domain.PacketContext, logger *slog.Logger, m *metrics.ForwardMetrics) {
	if pc.EventsDiscarded != nil && *pc.EventsDiscarded != 0 {
		logger.Warn("detected discarded events", "events_discarded", *pc.EventsDiscarded)
		s.eventCount += *pc.EventsDiscarded
		m.Discarded(*pc.EventsDiscarded)
	}

	if pc.SequenceNumber == nil {
		return
	}
	seqnum := *pc.SequenceNumber
	if s.seqnum != nil {
		last := *s.seqnum
		switch {
		case last == seqnum:
			logger.Warn("duplicate packet sequence number", "last_seqnum", last, "seqnum", seqnum)
			m.SequenceAnomaly(metrics.SequenceDuplicate)
		case last+1 != seqnum:
			logger.Warn("unexpected packet sequence number", "last_seqnum", last, "seqnum", seqnum)
			m.SequenceAnomaly(metrics.SequenceUnexpected)
		}
	}
	s.seqnum = &seqnum
}

package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/V4T54L/ctf-relay/internal/adapter/attrs"
	"github.com/V4T54L/ctf-relay/internal/adapter/metrics"
	"github.com/V4T54L/ctf-relay/internal/domain"
)

// ForwardOptions configures a ForwardPacketsUseCase.
type ForwardOptions struct {
	// CommonAttrs are sent with every timeline, ahead of the environment attrs.
	CommonAttrs []domain.Attr
	// Environment is the trace environment from the trace configuration.
	Environment map[string]any
	// StartEvent, when set, marks the event name that signals a device restart.
	StartEvent  string
	TimeDomains *TimeDomains
	Metrics     *metrics.ForwardMetrics
}

// ForwardPacketsUseCase maps decoded packets onto backend timelines and events.
// It is not safe for concurrent use; one goroutine owns it for the whole run.
type ForwardPacketsUseCase struct {
	client      domain.IngestClient
	logger      *slog.Logger
	metrics     *metrics.ForwardMetrics
	commonAttrs []domain.Attr
	startEvent  string
	domains     *TimeDomains

	timelines map[uint64]domain.TimelineID
	active    *domain.TimelineID
	streams   map[uint64]*streamState
}

// NewForwardPacketsUseCase creates a forwarder writing to client.
func NewForwardPacketsUseCase(client domain.IngestClient, opts ForwardOptions, logger *slog.Logger) *ForwardPacketsUseCase {
	domains := opts.TimeDomains
	if domains == nil {
		domains = NewTimeDomains(nil)
	}
	common := make([]domain.Attr, 0, len(opts.CommonAttrs)+len(opts.Environment))
	common = append(common, opts.CommonAttrs...)
	common = append(common, attrs.Environment(opts.Environment)...)

	return &ForwardPacketsUseCase{
		client:      client,
		logger:      logger.With("component", "forwarder"),
		metrics:     opts.Metrics,
		commonAttrs: common,
		startEvent:  opts.StartEvent,
		domains:     domains,
		timelines:   make(map[uint64]domain.TimelineID),
		streams:     make(map[uint64]*streamState),
	}
}

// HandlePacket forwards every event of pkt, in order, on the stream's timeline.
func (uc *ForwardPacketsUseCase) HandlePacket(ctx context.Context, pkt *domain.Packet) error {
	uc.metrics.Packet()
	uc.detectRestart(pkt)

	clock := pkt.Header.Clock
	if clock == nil {
		clock = uc.domains.StreamClock(pkt.Header.StreamName)
	}

	stream := uc.stateFor(pkt, clock)
	stream.observeContext(&pkt.Context, uc.logger.With("stream", pkt.Header.StreamName), uc.metrics)

	if err := uc.ensureActive(ctx, pkt, stream); err != nil {
		return err
	}

	headerAttrs := attrs.PacketHeader(&pkt.Header)
	contextAttrs := attrs.PacketContext(&pkt.Context)

	for i := range pkt.Events {
		event := &pkt.Events[i]
		eventAttrs := attrs.Event(event)

		if stream.tracker != nil {
			elapsed := stream.tracker.Elapsed(event.Timestamp)
			eventAttrs = append(eventAttrs, domain.Attr{Key: attrs.KeyElapsedCycles, Value: elapsed})
			if ns, ok := attrs.TimestampNs(clock, elapsed); ok {
				eventAttrs = append(eventAttrs, domain.Attr{Key: attrs.KeyTimestamp, Value: ns})
			}
		}

		stream.eventCount++
		eventAttrs = append(eventAttrs, domain.Attr{Key: attrs.KeyEventCount, Value: stream.eventCount})

		all := make([]domain.Attr, 0, len(eventAttrs)+len(headerAttrs)+len(contextAttrs))
		all = append(all, eventAttrs...)
		all = append(all, headerAttrs...)
		all = append(all, contextAttrs...)

		if err := uc.client.SendEvent(ctx, event.Name, stream.nextOrdinal, all); err != nil {
			return fmt.Errorf("%w: failed to send event '%s': %w", domain.ErrBackend, event.Name, err)
		}
		uc.metrics.Event()
		stream.nextOrdinal++
	}

	return nil
}

// Close flushes the backend client, logs its status, and closes it.
func (uc *ForwardPacketsUseCase) Close(ctx context.Context) error {
	flushErr := uc.client.Flush(ctx)
	if flushErr == nil {
		if status, err := uc.client.Status(ctx); err == nil {
			uc.logger.Debug("ingest status",
				"events_received", status.Received,
				"events_written", status.Written,
				"events_pending", status.Pending,
			)
		}
	}
	closeErr := uc.client.Close()
	if flushErr != nil {
		return fmt.Errorf("%w: failed to flush: %w", domain.ErrBackend, flushErr)
	}
	if closeErr != nil {
		return fmt.Errorf("%w: failed to close: %w", domain.ErrBackend, closeErr)
	}
	return nil
}

// Status reports the backend client's counters.
func (uc *ForwardPacketsUseCase) Status(ctx context.Context) (domain.IngestStatus, error) {
	return uc.client.Status(ctx)
}

func (uc *ForwardPacketsUseCase) detectRestart(pkt *domain.Packet) {
	if uc.startEvent == "" || len(uc.streams) == 0 {
		return
	}
	for i := range pkt.Events {
		if pkt.Events[i].Name == uc.startEvent {
			uc.logger.Warn("trace restart detected", "start_event", uc.startEvent, "stream", pkt.Header.StreamName)
			clear(uc.streams)
			uc.active = nil
			uc.metrics.Restart()
			return
		}
	}
}

// stateFor returns the stream's state, creating it on first sighting.
func (uc *ForwardPacketsUseCase) stateFor(pkt *domain.Packet, clock *domain.ClockType) *streamState {
	if s, ok := uc.streams[pkt.Header.StreamID]; ok {
		return s
	}

	name := pkt.Header.StreamName
	s := &streamState{}
	if w, ok := uc.domains.TimestampWidth(name); ok {
		s.tracker = NewRolloverTracker(w)
	}
	if clock != nil {
		s.clockAttrs = attrs.Clock(clock)
	}
	if clock != nil && clock.UUID != nil {
		s.clockAttrs = append(s.clockAttrs, domain.Attr{Key: attrs.KeyTimeDomain, Value: clock.UUID.String()})
	} else if id, ok := uc.domains.ForStream(name); ok {
		s.clockAttrs = append(s.clockAttrs, domain.Attr{Key: attrs.KeyTimeDomain, Value: id.String()})
	}

	uc.streams[pkt.Header.StreamID] = s
	return s
}

// ensureActive switches the backend to the stream's timeline, allocating it and
// publishing its attributes on first sighting. Redundant switches are skipped.
func (uc *ForwardPacketsUseCase) ensureActive(ctx context.Context, pkt *domain.Packet, stream *streamState) error {
	if id, ok := uc.timelines[pkt.Header.StreamID]; ok {
		if uc.active != nil && *uc.active == id {
			return nil
		}
		return uc.switchTo(ctx, id)
	}

	id := domain.NewTimelineID()
	if err := uc.switchTo(ctx, id); err != nil {
		return err
	}
	uc.metrics.Timeline()

	tlAttrs := make([]domain.Attr, 0, len(uc.commonAttrs)+len(stream.clockAttrs))
	tlAttrs = append(tlAttrs, uc.commonAttrs...)
	tlAttrs = append(tlAttrs, stream.clockAttrs...)
	if err := uc.client.SendTimelineAttrs(ctx, pkt.Header.StreamName, tlAttrs); err != nil {
		return fmt.Errorf("%w: failed to send timeline attrs for stream '%s': %w", domain.ErrBackend, pkt.Header.StreamName, err)
	}
	uc.timelines[pkt.Header.StreamID] = id
	uc.logger.Debug("allocated timeline", "stream", pkt.Header.StreamName, "stream_id", pkt.Header.StreamID, "timeline_id", id)
	return nil
}

func (uc *ForwardPacketsUseCase) switchTo(ctx context.Context, id domain.TimelineID) error {
	if err := uc.client.SwitchTimeline(ctx, id); err != nil {
		return fmt.Errorf("%w: failed to switch timeline: %w", domain.ErrBackend, err)
	}
	uc.active = &id
	uc.metrics.Switch()
	return nil
}


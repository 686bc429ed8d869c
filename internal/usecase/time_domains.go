package usecase

import (
	"github.com/google/uuid"

	"github.com/V4T54L/ctf-relay/internal/domain"
	"github.com/V4T54L/ctf-relay/internal/pkg/config"
)

// TimeDomains maps every configured clock to a stable UUID for the process run.
// Clocks without a configured UUID get a random one. It is immutable once built.
type TimeDomains struct {
	byClock  map[string]uuid.UUID
	byStream map[string]string
	widths   map[string]uint
	clocks   map[string]*domain.ClockType
}

// NewTimeDomains builds the clock identity cache from the trace configuration.
func NewTimeDomains(cfg *config.TraceConfig) *TimeDomains {
	td := &TimeDomains{
		byClock:  make(map[string]uuid.UUID),
		byStream: make(map[string]string),
		widths:   make(map[string]uint),
		clocks:   make(map[string]*domain.ClockType),
	}
	if cfg == nil {
		return td
	}
	for _, name := range cfg.ClockNames() {
		clock := cfg.Trace.Type.ClockTypes[name]
		if clock.UUID != nil {
			td.byClock[name] = *clock.UUID
		} else {
			td.byClock[name] = uuid.New()
		}
	}
	for stream := range cfg.Trace.Type.DataStreamTypes {
		if name, clock := cfg.StreamClock(stream); clock != nil {
			td.byStream[stream] = name
			td.clocks[stream] = clock
		}
		if w, ok := cfg.TimestampWidth(stream); ok {
			td.widths[stream] = w
		}
	}
	return td
}

// ForStream returns the time domain of a stream's default clock.
func (td *TimeDomains) ForStream(stream string) (uuid.UUID, bool) {
	name, ok := td.byStream[stream]
	if !ok {
		return uuid.Nil, false
	}
	id, ok := td.byClock[name]
	return id, ok
}

// TimestampWidth returns the declared timestamp field width of a stream.
func (td *TimeDomains) TimestampWidth(stream string) (uint, bool) {
	w, ok := td.widths[stream]
	return w, ok
}

// StreamClock returns the configured default clock of a stream.
func (td *TimeDomains) StreamClock(stream string) *domain.ClockType {
	return td.clocks[stream]
}

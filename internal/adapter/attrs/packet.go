package attrs

import (
	"sort"

	"github.com/V4T54L/ctf-relay/internal/domain"
)

// Event attribute keys shared with the forwarder.
const (
	KeyEventID         = "internal.barectf.event.id"
	KeyEventName       = "internal.barectf.event.name"
	KeyName            = "name"
	KeyClockCycles     = "internal.barectf.clock.cycles"
	KeyLogLevel        = "log_level"
	KeyElapsedCycles   = "internal.barectf.timestamp.cycles"
	KeyTimestamp       = "timestamp"
	KeyEventCount      = "internal.barectf.event.count"
	KeyTimeDomain      = "time_domain"
	environmentKeyBase = "environment."
)

// PacketHeader returns the per-packet header attributes.
func PacketHeader(h *domain.PacketHeader) []domain.Attr {
	var out []domain.Attr
	if h.TraceUUID != nil {
		out = append(out, domain.Attr{Key: "packet_header.trace_uuid", Value: h.TraceUUID.String()})
	}
	return append(out,
		domain.Attr{Key: "packet_header.stream.id", Value: h.StreamID},
		domain.Attr{Key: "packet_header.stream.name", Value: h.StreamName},
	)
}

// PacketContext returns the per-packet context attributes, including extra members.
func PacketContext(c *domain.PacketContext) []domain.Attr {
	out := []domain.Attr{
		{Key: "packet_context.packet_size.bits", Value: c.PacketSizeBits},
		{Key: "packet_context.packet_size.bytes", Value: c.PacketSize()},
		{Key: "packet_context.content_size.bits", Value: c.ContentSizeBits},
		{Key: "packet_context.content_size.bytes", Value: c.ContentSize()},
	}
	out = appendOpt(out, "packet_context.beginning_timestamp", c.BeginningTimestamp)
	out = appendOpt(out, "packet_context.end_timestamp", c.EndTimestamp)
	out = appendOpt(out, "packet_context.events_discarded", c.EventsDiscarded)
	out = appendOpt(out, "packet_context.sequence_number", c.SequenceNumber)
	return AppendFields(out, PrefixPacketContext, c.ExtraMembers)
}

// Event returns the base and field attributes of an event record.
func Event(e *domain.Event) []domain.Attr {
	out := []domain.Attr{
		{Key: KeyEventID, Value: e.ID},
		{Key: KeyEventName, Value: e.Name},
		{Key: KeyName, Value: e.Name},
		{Key: KeyClockCycles, Value: e.Timestamp},
	}
	if e.LogLevel != nil {
		if name, ok := e.LogLevel.Name(); ok {
			out = append(out, domain.Attr{Key: KeyLogLevel, Value: name})
		} else {
			out = append(out, domain.Attr{Key: KeyLogLevel, Value: uint64(*e.LogLevel)})
		}
	}
	out = AppendFields(out, PrefixCommonContext, e.CommonContext)
	out = AppendFields(out, PrefixSpecificContext, e.SpecificContext)
	return AppendFields(out, "", e.Payload)
}

// Environment returns environment.<key> attributes for the string and integer
// entries of a trace environment, sorted by key. Other value types are skipped.
func Environment(env map[string]any) []domain.Attr {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []domain.Attr
	for _, k := range keys {
		var v any
		switch tv := env[k].(type) {
		case string:
			v = tv
		case int:
			v = int64(tv)
		case int64:
			v = tv
		case uint64:
			v = tv
		default:
			continue
		}
		out = append(out, domain.Attr{Key: environmentKeyBase + k, Value: v})
	}
	return out
}

func appendOpt(dst []domain.Attr, key string, v *uint64) []domain.Attr {
	if v == nil {
		return dst
	}
	return append(dst, domain.Attr{Key: key, Value: *v})
}

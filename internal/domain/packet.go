package domain

import (
	"strconv"

	"github.com/google/uuid"
)

// ClockOffset is the offset of a clock's origin, in seconds and cycles.
type ClockOffset struct {
	Seconds int64  `json:"seconds" yaml:"seconds"`
	Cycles  uint64 `json:"cycles" yaml:"cycles"`
}

// ClockType describes the clock a data stream's timestamps are sampled from.
// A zero Frequency means the clock cannot be used to derive nanoseconds.
type ClockType struct {
	Frequency         uint64       `json:"frequency" yaml:"frequency"`
	Offset            *ClockOffset `json:"offset,omitempty" yaml:"offset"`
	OriginIsUnixEpoch bool         `json:"origin_is_unix_epoch" yaml:"origin-is-unix-epoch"`
	Precision         uint64       `json:"precision" yaml:"precision"`
	UUID              *uuid.UUID   `json:"uuid,omitempty" yaml:"uuid"`
	Description       *string      `json:"description,omitempty" yaml:"description"`
	CType             string       `json:"c_type" yaml:"$c-type"`
}

// PacketHeader identifies the data stream a packet belongs to.
type PacketHeader struct {
	StreamID   uint64     `json:"stream_id"`
	StreamName string     `json:"stream_name"`
	Clock      *ClockType `json:"clock,omitempty"`
	TraceUUID  *uuid.UUID `json:"trace_uuid,omitempty"`
}

// PacketContext carries the per-packet bookkeeping fields.
type PacketContext struct {
	PacketSizeBits     uint64  `json:"packet_size_bits"`
	ContentSizeBits    uint64  `json:"content_size_bits"`
	BeginningTimestamp *uint64 `json:"beginning_timestamp,omitempty"`
	EndTimestamp       *uint64 `json:"end_timestamp,omitempty"`
	EventsDiscarded    *uint64 `json:"events_discarded,omitempty"`
	SequenceNumber     *uint64 `json:"sequence_number,omitempty"`
	ExtraMembers       Fields  `json:"extra_members,omitempty"`
}

// PacketSize returns the packet size in bytes.
func (c PacketContext) PacketSize() uint64 { return c.PacketSizeBits / 8 }

// ContentSize returns the content size in bytes.
func (c PacketContext) ContentSize() uint64 { return c.ContentSizeBits / 8 }

// Packet is one decoded CTF packet.
type Packet struct {
	Header  PacketHeader  `json:"header"`
	Context PacketContext `json:"context"`
	Events  []Event       `json:"events"`
}

// Event is a single event record within a packet.
type Event struct {
	ID              uint64    `json:"id"`
	Name            string    `json:"name"`
	Timestamp       uint64    `json:"timestamp"`
	LogLevel        *LogLevel `json:"log_level,omitempty"`
	CommonContext   Fields    `json:"common_context,omitempty"`
	SpecificContext Fields    `json:"specific_context,omitempty"`
	Payload         Fields    `json:"payload,omitempty"`
}

// LogLevel is an event record log level. Values 0 through 14 have names.
type LogLevel uint32

var logLevelNames = [...]string{
	"EMERGENCY",
	"ALERT",
	"CRITICAL",
	"ERROR",
	"WARNING",
	"NOTICE",
	"INFO",
	"DEBUG_SYSTEM",
	"DEBUG_PROGRAM",
	"DEBUG_PROCESS",
	"DEBUG_MODULE",
	"DEBUG_UNIT",
	"DEBUG_FUNCTION",
	"DEBUG_LINE",
	"DEBUG",
}

// Name returns the symbolic name of the level, if it has one.
func (l LogLevel) Name() (string, bool) {
	if int(l) < len(logLevelNames) {
		return logLevelNames[l], true
	}
	return "", false
}

func (l LogLevel) String() string {
	if name, ok := l.Name(); ok {
		return name
	}
	return strconv.FormatUint(uint64(l), 10)
}

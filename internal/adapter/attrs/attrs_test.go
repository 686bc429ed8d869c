package attrs

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/V4T54L/ctf-relay/internal/domain"
)

func keys(attrs []domain.Attr) []string {
	out := make([]string, len(attrs))
	for i, a := range attrs {
		out[i] = a.Key
	}
	return out
}

func TestAppendField_ArrayIsCapped(t *testing.T) {
	elems := make([]domain.Scalar, 15)
	for i := range elems {
		elems[i] = domain.Unsigned(uint64(i))
	}

	got := AppendField(nil, "", "samples", domain.ArrayValue(elems...))

	require.Len(t, got, MaxArrayLen)
	assert.Equal(t, "samples.array.0", got[0].Key)
	assert.Equal(t, "samples.array.9", got[9].Key)
	assert.Equal(t, uint64(9), got[9].Value)
}

func TestAppendField_Enums(t *testing.T) {
	got := AppendField(nil, PrefixSpecificContext, "state", domain.ScalarValue(domain.UnsignedEnum(2, "")))
	assert.Equal(t, []domain.Attr{{Key: "specific_context.state.container", Value: uint64(2)}}, got)

	got = AppendField(nil, "", "mode", domain.ScalarValue(domain.SignedEnum(-1, "OFF")))
	assert.Equal(t, []domain.Attr{
		{Key: "mode.container", Value: int64(-1)},
		{Key: "mode", Value: "OFF"},
	}, got)
}

func TestAppendField_ArrayOfEnums(t *testing.T) {
	got := AppendField(nil, PrefixCommonContext, "flags", domain.ArrayValue(
		domain.UnsignedEnum(1, "A"),
		domain.UnsignedEnum(4, ""),
	))
	assert.Equal(t, []string{
		"common_context.flags.array.0.container",
		"common_context.flags.array.0",
		"common_context.flags.array.1.container",
	}, keys(got))
}

func TestKey(t *testing.T) {
	assert.Equal(t, "bare", Key("", "bare"))
	assert.Equal(t, "packet_context.cpu_id", Key(PrefixPacketContext, "cpu_id"))
}

func TestEvent_OrderAndLogLevel(t *testing.T) {
	unnamed := domain.LogLevel(42)
	e := &domain.Event{
		ID:              3,
		Name:            "sensor",
		Timestamp:       77,
		LogLevel:        &unnamed,
		CommonContext:   domain.Fields{{Name: "cpu", Value: domain.ScalarValue(domain.Unsigned(1))}},
		SpecificContext: domain.Fields{{Name: "irq", Value: domain.ScalarValue(domain.Unsigned(9))}},
		Payload:         domain.Fields{{Name: "reading", Value: domain.ScalarValue(domain.F64(1.5))}},
	}

	got := Event(e)
	assert.Equal(t, []string{
		KeyEventID, KeyEventName, KeyName, KeyClockCycles, KeyLogLevel,
		"common_context.cpu", "specific_context.irq", "reading",
	}, keys(got))
	assert.Equal(t, uint64(42), got[4].Value)
	assert.Equal(t, 1.5, got[7].Value)
}

func TestPacketContext_OptionalMembers(t *testing.T) {
	seq := uint64(12)
	got := PacketContext(&domain.PacketContext{
		PacketSizeBits:  1024,
		ContentSizeBits: 800,
		SequenceNumber:  &seq,
		ExtraMembers:    domain.Fields{{Name: "cpu_id", Value: domain.ScalarValue(domain.Unsigned(0))}},
	})
	assert.Equal(t, []string{
		"packet_context.packet_size.bits",
		"packet_context.packet_size.bytes",
		"packet_context.content_size.bits",
		"packet_context.content_size.bytes",
		"packet_context.sequence_number",
		"packet_context.cpu_id",
	}, keys(got))
	assert.Equal(t, uint64(128), got[1].Value)
	assert.Equal(t, uint64(100), got[3].Value)
}

func TestEnvironment_SortedAndFiltered(t *testing.T) {
	got := Environment(map[string]any{
		"version_major": 2,
		"hostname":      "devkit",
		"nested":        map[string]any{"x": 1},
		"enabled":       true,
	})
	assert.Equal(t, []domain.Attr{
		{Key: "environment.hostname", Value: "devkit"},
		{Key: "environment.version_major", Value: int64(2)},
	}, got)
}

func TestClock_Style(t *testing.T) {
	desc := "main clock"
	got := Clock(&domain.ClockType{
		Frequency:         32768,
		Offset:            &domain.ClockOffset{Seconds: 1, Cycles: 2},
		OriginIsUnixEpoch: true,
		Description:       &desc,
		CType:             "uint64_t",
	})
	m := map[string]any{}
	for _, a := range got {
		m[a.Key] = a.Value
	}
	assert.Equal(t, ClockStyleAbsolute, m["clock_style"])
	assert.Equal(t, int64(1), m["clock.offset.seconds"])
	assert.Equal(t, "main clock", m["clock.description"])
	assert.NotContains(t, m, "clock.uuid")
	assert.Equal(t, "clock_style", got[len(got)-1].Key)
}

func TestTimestampNs(t *testing.T) {
	tests := []struct {
		name   string
		freq   uint64
		cycles uint64
		want   uint64
		ok     bool
	}{
		{name: "1 GHz is identity", freq: 1_000_000_000, cycles: 12345, want: 12345, ok: true},
		{name: "1 MHz", freq: 1_000_000, cycles: 3, want: 3000, ok: true},
		{name: "truncates", freq: 3, cycles: 1, want: 333333333, ok: true},
		// cycles*1e9 overflows 64 bits but the quotient does not.
		{name: "wide intermediate", freq: 1_000_000_000_000, cycles: math.MaxUint64, want: math.MaxUint64 / 1000, ok: true},
		{name: "zero frequency", freq: 0, cycles: 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := TimestampNs(&domain.ClockType{Frequency: tt.freq}, tt.cycles)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}

	_, ok := TimestampNs(nil, 1)
	assert.False(t, ok)
}

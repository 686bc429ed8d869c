package attrs

import (
	"math/bits"

	"github.com/V4T54L/ctf-relay/internal/domain"
)

const nanosPerSecond = 1_000_000_000

// Clock style values.
const (
	ClockStyleAbsolute = "absolute"
	ClockStyleRelative = "relative"
)

// Clock returns the timeline attributes describing a clock.
func Clock(c *domain.ClockType) []domain.Attr {
	out := []domain.Attr{{Key: "clock.frequency", Value: c.Frequency}}
	if c.Offset != nil {
		out = append(out,
			domain.Attr{Key: "clock.offset.seconds", Value: c.Offset.Seconds},
			domain.Attr{Key: "clock.offset.cycles", Value: c.Offset.Cycles},
		)
	}
	out = append(out,
		domain.Attr{Key: "clock.origin_is_unix_epoch", Value: c.OriginIsUnixEpoch},
		domain.Attr{Key: "clock.precision", Value: c.Precision},
	)
	if c.UUID != nil {
		out = append(out, domain.Attr{Key: "clock.uuid", Value: c.UUID.String()})
	}
	if c.Description != nil {
		out = append(out, domain.Attr{Key: "clock.description", Value: *c.Description})
	}
	out = append(out, domain.Attr{Key: "clock.c_type", Value: c.CType})

	style := ClockStyleRelative
	if c.OriginIsUnixEpoch {
		style = ClockStyleAbsolute
	}
	return append(out, domain.Attr{Key: "clock_style", Value: style})
}

// TimestampNs converts elapsed cycles to nanoseconds using a 128-bit intermediate.
// The result is truncated to 64 bits. ok is false when the clock has no usable frequency.
func TimestampNs(c *domain.ClockType, cycles uint64) (ns uint64, ok bool) {
	if c == nil || c.Frequency == 0 {
		return 0, false
	}
	hi, lo := bits.Mul64(cycles, nanosPerSecond)
	// Divide the high word first so bits.Div64 never sees hi >= divisor.
	rem := hi % c.Frequency
	q, _ := bits.Div64(rem, lo, c.Frequency)
	return q, true
}

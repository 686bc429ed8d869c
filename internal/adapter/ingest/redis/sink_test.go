package redis

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/V4T54L/ctf-relay/internal/domain"
)

func TestRecordValues(t *testing.T) {
	timeline := uuid.New()
	at := time.Unix(10, 5).UTC()

	values, err := recordValues(&domain.Record{
		Kind:       domain.RecordEvent,
		TimelineID: timeline,
		RunID:      "run",
		Name:       "init",
		Ordering:   7,
		Attrs:      []domain.Attr{{Key: "payload.x", Value: uint64(1)}},
		ReceivedAt: at,
	})
	require.NoError(t, err)

	assert.Equal(t, "event", values["kind"])
	assert.Equal(t, timeline.String(), values["timeline_id"])
	assert.Equal(t, uint64(7), values["ordering"])
	assert.Equal(t, at.UnixNano(), values["received_at"])
	assert.JSONEq(t, `[{"key":"payload.x","value":1}]`, string(values["attrs"].([]byte)))
}

func TestTimelineKey(t *testing.T) {
	id := uuid.MustParse("9b2f7c4e-0000-4000-8000-000000000001")
	assert.Equal(t, "ctf_relay:timeline:9b2f7c4e-0000-4000-8000-000000000001", TimelineKey(id))
}

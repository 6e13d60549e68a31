package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type runDone struct {
	RunID    string `json:"run_id"`
	Retained int    `json:"retained"`
}

func (r runDone) Attributes() map[string]string {
	return map[string]string{"run_id": r.RunID}
}

func TestPublisherRecordsEncodedMessages(t *testing.T) {
	t.Parallel()

	pub := New()
	id1, err := pub.Publish(context.Background(), "tender-runs", runDone{RunID: "a", Retained: 3})
	require.NoError(t, err)
	assert.Equal(t, "memory-1", id1)
	id2, err := pub.Publish(context.Background(), "audit", "payload")
	require.NoError(t, err)
	assert.Equal(t, "memory-2", id2)

	msgs := pub.Messages()
	require.Len(t, msgs, 2)
	assert.JSONEq(t, `{"run_id":"a","retained":3}`, string(msgs[0].Data))
	assert.Equal(t, "a", msgs[0].Attributes["run_id"])
	assert.Equal(t, "application/json", msgs[0].Attributes["content_type"])
	assert.Equal(t, "payload", msgs[1].Payload)

	require.Len(t, pub.Topic("tender-runs"), 1)
	assert.Empty(t, pub.Topic("missing"))

	msgs[0].Topic = "modified"
	assert.Equal(t, "tender-runs", pub.Messages()[0].Topic)
}

func TestPublisherFailWith(t *testing.T) {
	t.Parallel()

	pub := New()
	boom := errors.New("unavailable")
	pub.FailWith(boom)
	_, err := pub.Publish(context.Background(), "t", nil)
	require.ErrorIs(t, err, boom)
	assert.Empty(t, pub.Messages())
}

func TestPublisherRejectsUnencodablePayload(t *testing.T) {
	t.Parallel()

	pub := New()
	_, err := pub.Publish(context.Background(), "t", make(chan int))
	require.Error(t, err)
	assert.Empty(t, pub.Messages())
}

package bus

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmweis/hamilton/pkg/config"
	message "github.com/dmweis/hamilton/pkg/flatbuffers/hamilton/message"
	customlog "github.com/dmweis/hamilton/pkg/log"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	in := &Message{
		Topic:       "hamilton/pose",
		TimestampNs: 1_700_000_000_123_456_789,
		ContentType: message.ContentTypeJSON,
		Payload:     []byte(`{"x":1,"y":2,"theta":0}`),
	}

	out, err := Decode(Encode(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestEnvelopeEmptyPayload(t *testing.T) {
	out, err := Decode(Encode(&Message{Topic: "t", ContentType: message.ContentTypeBINARY}))
	require.NoError(t, err)
	assert.Equal(t, "t", out.Topic)
	assert.Equal(t, message.ContentTypeBINARY, out.ContentType)
	assert.Empty(t, out.Payload)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	for name, data := range map[string][]byte{
		"empty":      nil,
		"short":      {1, 2, 3},
		"bad offset": {0xff, 0xff, 0xff, 0x7f, 0, 0, 0, 0, 0, 0, 0, 0},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(data)
			assert.True(t, errors.Is(err, ErrInvalidEnvelope), "got %v", err)
		})
	}
}

func TestTopics(t *testing.T) {
	cfg := config.Default().Bus
	topics := NewTopics(cfg)
	assert.Equal(t, "hamilton/pose", topics.Pose())
	assert.Equal(t, "hamilton/map/canvas_touch", topics.CanvasTouch())

	cfg.Prefix = ""
	assert.Equal(t, "odometry", NewTopics(cfg).Odometry())
}

func TestMemoryBusDeliversExactTopic(t *testing.T) {
	b := NewMemoryBus(customlog.Nop())
	require.NoError(t, b.Start())

	var got []*Message
	require.NoError(t, b.Subscribe("hamilton/pose", func(m *Message) { got = append(got, m) }))

	type pose struct {
		X, Y float64
	}
	require.NoError(t, PublishJSON(b, "hamilton/pose", pose{X: 1, Y: 2}))
	require.NoError(t, PublishJSON(b, "hamilton/pose_raw", pose{X: 9}))

	require.Len(t, got, 1)
	var p pose
	require.NoError(t, got[0].DecodeJSON(&p))
	assert.Equal(t, pose{X: 1, Y: 2}, p)
	assert.NotZero(t, got[0].TimestampNs)
}

func TestMemoryBusNotStartedDrops(t *testing.T) {
	b := NewMemoryBus(customlog.Nop())
	called := false
	require.NoError(t, b.Subscribe("a", func(*Message) { called = true }))
	require.NoError(t, b.Publish("a", message.ContentTypeBINARY, []byte{1}))
	assert.False(t, called)
}

func TestMemoryBusClosed(t *testing.T) {
	b := NewMemoryBus(customlog.Nop())
	require.NoError(t, b.Start())
	require.NoError(t, b.Stop())
	assert.ErrorIs(t, b.Publish("a", message.ContentTypeJSON, nil), ErrClosed)
	assert.ErrorIs(t, b.Subscribe("a", func(*Message) {}), ErrClosed)
}

func TestDecodeJSONRejectsBinary(t *testing.T) {
	m := &Message{Topic: "a", ContentType: message.ContentTypeBINARY, Payload: []byte("{}")}
	var v map[string]interface{}
	assert.ErrorIs(t, m.DecodeJSON(&v), ErrNotJSON)
}

func TestNewSelectsTransport(t *testing.T) {
	cfg := config.Default().Bus
	cfg.Transport = config.TransportMemory
	b, err := New(cfg, customlog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &MemoryBus{}, b)

	cfg.Transport = "smoke-signals"
	_, err = New(cfg, customlog.Nop())
	assert.Error(t, err)

	cfg.Transport = config.TransportMQTT
	cfg.MQTT.Broker = ""
	_, err = New(cfg, customlog.Nop())
	assert.Error(t, err)
}

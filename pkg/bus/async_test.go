package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	message "github.com/dmweis/hamilton/pkg/flatbuffers/hamilton/message"
	customlog "github.com/dmweis/hamilton/pkg/log"
)

// stalledBus blocks every Publish until release is closed.
type stalledBus struct {
	release chan struct{}

	mu        sync.Mutex
	published []string
}

func (b *stalledBus) Publish(topic string, _ message.ContentType, payload []byte) error {
	<-b.release
	b.mu.Lock()
	b.published = append(b.published, string(payload))
	b.mu.Unlock()
	return nil
}

func (b *stalledBus) Subscribe(string, Handler) error { return nil }
func (b *stalledBus) Start() error                    { return nil }
func (b *stalledBus) Stop() error                     { return nil }

func (b *stalledBus) payloads() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.published...)
}

func TestAsyncPublisherNeverBlocksAndDropsOldest(t *testing.T) {
	b := &stalledBus{release: make(chan struct{})}
	p := NewAsyncPublisher(b, 2, customlog.Nop())

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 1; i <= 4; i++ {
			assert.NoError(t, p.PublishJSON("pose", i))
		}
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("PublishJSON waited on the transport")
	}

	assert.Equal(t, 2, p.Pending())
	assert.Equal(t, uint64(2), p.Dropped())

	close(b.release)
	p.Flush()
	assert.Equal(t, []string{"3", "4"}, b.payloads())
}

func TestAsyncPublisherRunFlushesOnCancel(t *testing.T) {
	bus := NewMemoryBus(customlog.Nop())
	var got []*Message
	require.NoError(t, bus.Subscribe("odometry", func(m *Message) { got = append(got, m) }))
	require.NoError(t, bus.Start())

	p := NewAsyncPublisher(bus, 8, customlog.Nop())
	require.NoError(t, p.PublishJSON("odometry", map[string]float64{"x": 1}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, p.Run(ctx))

	require.Len(t, got, 1)
	assert.JSONEq(t, `{"x":1}`, string(got[0].Payload))
	assert.Equal(t, 0, p.Pending())
}

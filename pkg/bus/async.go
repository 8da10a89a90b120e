package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	message "github.com/dmweis/hamilton/pkg/flatbuffers/hamilton/message"
	customlog "github.com/dmweis/hamilton/pkg/log"
)

type outbound struct {
	topic   string
	payload []byte
}

// AsyncPublisher hands messages to a Bus from its own goroutine so that
// callers never wait on the transport. When the queue is full the oldest
// queued message is dropped.
type AsyncPublisher struct {
	bus     Bus
	logger  customlog.Logger
	queue   chan outbound
	dropped atomic.Uint64
}

func NewAsyncPublisher(b Bus, queueSize int, logger customlog.Logger) *AsyncPublisher {
	if queueSize < 1 {
		queueSize = 1
	}
	return &AsyncPublisher{
		bus:    b,
		logger: logger,
		queue:  make(chan outbound, queueSize),
	}
}

// PublishJSON marshals v and queues it for topic. It never blocks.
func (p *AsyncPublisher) PublishJSON(topic string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal message for %s: %w", topic, err)
	}
	p.enqueue(outbound{topic: topic, payload: data})
	return nil
}

func (p *AsyncPublisher) enqueue(o outbound) {
	for {
		select {
		case p.queue <- o:
			return
		default:
		}
		select {
		case <-p.queue:
			p.dropped.Add(1)
		default:
		}
	}
}

// Run publishes queued messages until ctx is cancelled, then flushes what
// is left.
func (p *AsyncPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			p.Flush()
			return nil
		case o := <-p.queue:
			p.send(o)
		}
	}
}

// Flush publishes every queued message on the calling goroutine.
func (p *AsyncPublisher) Flush() {
	for {
		select {
		case o := <-p.queue:
			p.send(o)
		default:
			return
		}
	}
}

func (p *AsyncPublisher) send(o outbound) {
	if err := p.bus.Publish(o.topic, message.ContentTypeJSON, o.payload); err != nil {
		p.logger.Debugf("Failed to publish %s: %v", o.topic, err)
	}
}

// Dropped is the number of messages discarded because the queue was full.
func (p *AsyncPublisher) Dropped() uint64 {
	return p.dropped.Load()
}

// Pending is the number of queued messages.
func (p *AsyncPublisher) Pending() int {
	return len(p.queue)
}

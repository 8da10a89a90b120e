package processing

import (
	"fmt"
	"sync"
	"time"

	"github.com/dmweis/hamilton/pkg/bus"
)

// TopicProcessor dispatches a message to the handler registered for its
// topic. It is the MessageProcessor every pool runs.
type TopicProcessor struct {
	handlers map[string]func(*bus.Message) error
	mu       sync.RWMutex
}

func NewTopicProcessor() *TopicProcessor {
	return &TopicProcessor{handlers: make(map[string]func(*bus.Message) error)}
}

// Handle registers fn for topic, replacing any earlier handler.
func (p *TopicProcessor) Handle(topic string, fn func(*bus.Message) error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[topic] = fn
}

// Process implements MessageProcessor.
func (p *TopicProcessor) Process(msg *bus.Message) error {
	p.mu.RLock()
	fn, ok := p.handlers[msg.Topic]
	p.mu.RUnlock()

	if !ok {
		return fmt.Errorf("no handler for topic '%s'", msg.Topic)
	}
	return fn(msg)
}

// HandleJSON registers a handler that decodes the payload into T first.
func HandleJSON[T any](p *TopicProcessor, topic string, fn func(T) error) {
	HandleStampedJSON(p, topic, func(v T, _ time.Time) error { return fn(v) })
}

// HandleStampedJSON is HandleJSON for handlers that also need the publish
// time carried by the envelope.
func HandleStampedJSON[T any](p *TopicProcessor, topic string, fn func(T, time.Time) error) {
	p.Handle(topic, func(msg *bus.Message) error {
		var v T
		if err := msg.DecodeJSON(&v); err != nil {
			return err
		}
		return fn(v, msg.Timestamp())
	})
}

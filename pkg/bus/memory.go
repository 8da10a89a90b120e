package bus

import (
	"sync"
	"time"

	message "github.com/dmweis/hamilton/pkg/flatbuffers/hamilton/message"
	customlog "github.com/dmweis/hamilton/pkg/log"
)

// MemoryBus delivers messages synchronously inside the process. Messages
// still pass through the envelope codec so handlers see exactly what a
// network transport would hand them.
type MemoryBus struct {
	logger   customlog.Logger
	handlers map[string][]Handler
	running  bool
	closed   bool
	now      func() time.Time
	mu       sync.RWMutex
}

func NewMemoryBus(logger customlog.Logger) *MemoryBus {
	return &MemoryBus{
		logger:   logger,
		handlers: make(map[string][]Handler),
		now:      time.Now,
	}
}

func (b *MemoryBus) Publish(topic string, contentType message.ContentType, payload []byte) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrClosed
	}
	running := b.running
	handlers := append([]Handler(nil), b.handlers[topic]...)
	b.mu.RUnlock()

	if !running || len(handlers) == 0 {
		return nil
	}

	frame := Encode(&Message{
		Topic:       topic,
		TimestampNs: b.now().UnixNano(),
		ContentType: contentType,
		Payload:     payload,
	})
	msg, err := Decode(frame)
	if err != nil {
		return err
	}
	for _, h := range handlers {
		h(msg)
	}
	return nil
}

func (b *MemoryBus) Subscribe(topic string, handler Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	b.handlers[topic] = append(b.handlers[topic], handler)
	b.logger.Debugf("Subscribed to %s", topic)
	return nil
}

func (b *MemoryBus) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	b.running = true
	return nil
}

func (b *MemoryBus) Stop() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.running = false
	b.closed = true
	return nil
}

// Package bus carries hamilton's pub/sub traffic. Every transport frames a
// message as a FlatBuffers Envelope so subscribers see the same topic,
// timestamp and content type regardless of how the bytes travelled.
package bus

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmweis/hamilton/pkg/config"
	message "github.com/dmweis/hamilton/pkg/flatbuffers/hamilton/message"
	customlog "github.com/dmweis/hamilton/pkg/log"
)

// Common errors
var (
	ErrClosed          = errors.New("bus is closed")
	ErrInvalidEnvelope = errors.New("invalid envelope")
	ErrNotJSON         = errors.New("payload is not JSON")
	ErrRunning         = errors.New("bus already started")
)

// Message is a decoded envelope.
type Message struct {
	Topic       string
	TimestampNs int64
	ContentType message.ContentType
	Payload     []byte
}

// Timestamp returns the publish time carried by the envelope, or the zero
// time when the publisher did not stamp it.
func (m *Message) Timestamp() time.Time {
	if m.TimestampNs == 0 {
		return time.Time{}
	}
	return time.Unix(0, m.TimestampNs)
}

// DecodeJSON unmarshals a JSON payload into v.
func (m *Message) DecodeJSON(v interface{}) error {
	if m.ContentType != message.ContentTypeJSON {
		return fmt.Errorf("%w: topic %s carries %s", ErrNotJSON, m.Topic, m.ContentType)
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", m.Topic, err)
	}
	return nil
}

// Handler receives messages for one subscribed topic. Handlers run on the
// transport's receive goroutine and must not block for long.
type Handler func(msg *Message)

// Bus is implemented by every transport.
type Bus interface {
	// Publish sends an already encoded payload on topic.
	Publish(topic string, contentType message.ContentType, payload []byte) error
	// Subscribe registers handler for messages on exactly topic.
	Subscribe(topic string, handler Handler) error
	Start() error
	Stop() error
}

// PublishJSON marshals v and publishes it with a JSON content type.
func PublishJSON(b Bus, topic string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal message for %s: %w", topic, err)
	}
	return b.Publish(topic, message.ContentTypeJSON, data)
}

// New builds the transport named by cfg.Transport.
func New(cfg config.BusConfig, logger customlog.Logger) (Bus, error) {
	logger = logger.WithField("transport", string(cfg.Transport))
	switch cfg.Transport {
	case config.TransportZeroMQ:
		return NewZeroMQBus(cfg, logger)
	case config.TransportMQTT:
		return NewMQTTBus(cfg, logger)
	case config.TransportMemory, "":
		return NewMemoryBus(logger), nil
	default:
		return nil, fmt.Errorf("unknown bus transport %q", cfg.Transport)
	}
}

package bus

import (
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/dmweis/hamilton/pkg/config"
	message "github.com/dmweis/hamilton/pkg/flatbuffers/hamilton/message"
	customlog "github.com/dmweis/hamilton/pkg/log"
)

const (
	mqttQoS             = 0
	mqttPublishTimeout  = time.Second
	mqttDisconnectQuiet = 250
)

// MQTTBus carries envelopes over an MQTT broker. Subscriptions are replayed
// on every (re)connect.
type MQTTBus struct {
	client         mqtt.Client
	logger         customlog.Logger
	connectTimeout time.Duration
	handlers       map[string][]Handler
	running        bool
	closed         bool
	mu             sync.RWMutex
}

func NewMQTTBus(cfg config.BusConfig, logger customlog.Logger) (*MQTTBus, error) {
	if cfg.MQTT.Broker == "" {
		return nil, fmt.Errorf("mqtt broker address is required")
	}
	clientID := cfg.MQTT.ClientID
	if clientID == "" {
		clientID = "hamilton-" + uuid.NewString()[:8]
	}
	timeout := cfg.MQTT.ConnectTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	b := &MQTTBus{
		logger:         logger,
		connectTimeout: timeout,
		handlers:       make(map[string][]Handler),
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTT.Broker).
		SetClientID(clientID).
		SetConnectTimeout(timeout).
		SetAutoReconnect(true).
		SetOnConnectHandler(b.onConnect).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logger.Warnf("Connection to broker lost: %v", err)
		})
	b.client = mqtt.NewClient(opts)

	logger.Infof("MQTT bus configured for %s as %s", cfg.MQTT.Broker, clientID)
	return b, nil
}

func (b *MQTTBus) onConnect(client mqtt.Client) {
	b.mu.RLock()
	topics := make([]string, 0, len(b.handlers))
	for topic := range b.handlers {
		topics = append(topics, topic)
	}
	b.mu.RUnlock()

	for _, topic := range topics {
		if err := b.subscribe(client, topic); err != nil {
			b.logger.Errorf("Failed to resubscribe to %s: %v", topic, err)
		}
	}
	b.logger.Infof("Connected to broker, %d subscriptions active", len(topics))
}

func (b *MQTTBus) subscribe(client mqtt.Client, topic string) error {
	token := client.Subscribe(topic, mqttQoS, func(_ mqtt.Client, m mqtt.Message) {
		msg, err := Decode(m.Payload())
		if err != nil {
			b.logger.Warnf("Dropping message on %s: %v", m.Topic(), err)
			return
		}
		b.dispatch(msg)
	})
	if !token.WaitTimeout(b.connectTimeout) {
		return fmt.Errorf("timed out subscribing to %s", topic)
	}
	return token.Error()
}

func (b *MQTTBus) dispatch(msg *Message) {
	b.mu.RLock()
	handlers := b.handlers[msg.Topic]
	b.mu.RUnlock()

	for _, h := range handlers {
		h(msg)
	}
}

func (b *MQTTBus) Publish(topic string, contentType message.ContentType, payload []byte) error {
	b.mu.RLock()
	running := b.running
	b.mu.RUnlock()
	if !running {
		return ErrClosed
	}

	frame := Encode(&Message{
		Topic:       topic,
		TimestampNs: time.Now().UnixNano(),
		ContentType: contentType,
		Payload:     payload,
	})
	token := b.client.Publish(topic, mqttQoS, false, frame)
	if !token.WaitTimeout(mqttPublishTimeout) {
		return fmt.Errorf("timed out publishing to %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}

func (b *MQTTBus) Subscribe(topic string, handler Handler) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	_, seen := b.handlers[topic]
	b.handlers[topic] = append(b.handlers[topic], handler)
	running := b.running
	b.mu.Unlock()

	if running && !seen {
		return b.subscribe(b.client, topic)
	}
	return nil
}

func (b *MQTTBus) Start() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	if b.running {
		b.mu.Unlock()
		return nil
	}
	b.mu.Unlock()

	token := b.client.Connect()
	if !token.WaitTimeout(b.connectTimeout) {
		return fmt.Errorf("timed out connecting to broker")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to connect to broker: %w", err)
	}

	b.mu.Lock()
	b.running = true
	b.mu.Unlock()
	return nil
}

func (b *MQTTBus) Stop() error {
	b.mu.Lock()
	wasRunning := b.running
	b.running = false
	b.closed = true
	b.mu.Unlock()

	if wasRunning {
		b.client.Disconnect(mqttDisconnectQuiet)
		b.logger.Infof("Disconnected from broker")
	}
	return nil
}

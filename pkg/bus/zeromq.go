package bus

import (
	"fmt"
	"sync"
	"time"

	"github.com/pebbe/zmq4"
	"go.uber.org/multierr"

	"github.com/dmweis/hamilton/pkg/config"
	message "github.com/dmweis/hamilton/pkg/flatbuffers/hamilton/message"
	customlog "github.com/dmweis/hamilton/pkg/log"
)

const zmqPollTimeout = 500 * time.Millisecond

// ZeroMQBus publishes on a bound PUB socket and receives from SUB sockets
// connected to every configured endpoint. Frames are [topic, envelope].
type ZeroMQBus struct {
	ctx      *zmq4.Context
	pub      *zmq4.Socket
	sub      *zmq4.Socket
	poller   *zmq4.Poller
	logger   customlog.Logger
	handlers map[string][]Handler
	running  bool
	closed   bool
	pubMu    sync.Mutex
	mu       sync.RWMutex
	wg       sync.WaitGroup
}

// NewZeroMQBus binds the publisher and connects the subscriber. Nothing is
// received until Start.
func NewZeroMQBus(cfg config.BusConfig, logger customlog.Logger) (*ZeroMQBus, error) {
	ctx, err := zmq4.NewContext()
	if err != nil {
		return nil, fmt.Errorf("failed to create ZMQ context: %w", err)
	}

	pub, err := newPublisher(ctx, cfg.PublishAddress)
	if err != nil {
		ctx.Term()
		return nil, err
	}
	logger.Infof("Publisher bound on %s", cfg.PublishAddress)

	b := &ZeroMQBus{
		ctx:      ctx,
		pub:      pub,
		logger:   logger,
		handlers: make(map[string][]Handler),
	}

	if len(cfg.SubscribeEndpoints) > 0 {
		sub, err := newSubscriber(ctx, cfg.SubscribeEndpoints)
		if err != nil {
			pub.Close()
			ctx.Term()
			return nil, err
		}
		b.sub = sub
		b.poller = zmq4.NewPoller()
		b.poller.Add(sub, zmq4.POLLIN)
		logger.Infof("Subscriber connected to %v", cfg.SubscribeEndpoints)
	}

	return b, nil
}

func newPublisher(ctx *zmq4.Context, address string) (*zmq4.Socket, error) {
	socket, err := ctx.NewSocket(zmq4.PUB)
	if err != nil {
		return nil, fmt.Errorf("failed to create PUB socket: %w", err)
	}
	if err := socket.SetLinger(0); err != nil {
		socket.Close()
		return nil, fmt.Errorf("failed to set linger option: %w", err)
	}
	if err := socket.Bind(address); err != nil {
		socket.Close()
		return nil, fmt.Errorf("failed to bind to %s: %w", address, err)
	}
	return socket, nil
}

func newSubscriber(ctx *zmq4.Context, endpoints []string) (*zmq4.Socket, error) {
	socket, err := ctx.NewSocket(zmq4.SUB)
	if err != nil {
		return nil, fmt.Errorf("failed to create SUB socket: %w", err)
	}
	if err := socket.SetLinger(0); err != nil {
		socket.Close()
		return nil, fmt.Errorf("failed to set linger option: %w", err)
	}
	for _, endpoint := range endpoints {
		if err := socket.Connect(endpoint); err != nil {
			socket.Close()
			return nil, fmt.Errorf("failed to connect to %s: %w", endpoint, err)
		}
	}
	return socket, nil
}

// Publish sends the topic frame followed by the envelope frame.
func (b *ZeroMQBus) Publish(topic string, contentType message.ContentType, payload []byte) error {
	frame := Encode(&Message{
		Topic:       topic,
		TimestampNs: time.Now().UnixNano(),
		ContentType: contentType,
		Payload:     payload,
	})

	b.pubMu.Lock()
	defer b.pubMu.Unlock()

	if b.pub == nil {
		return ErrClosed
	}
	if _, err := b.pub.Send(topic, zmq4.SNDMORE); err != nil {
		return fmt.Errorf("failed to send topic: %w", err)
	}
	if _, err := b.pub.SendBytes(frame, 0); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// Subscribe must be called before Start; SUB sockets are owned by the
// receive goroutine once it runs.
func (b *ZeroMQBus) Subscribe(topic string, handler Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	if b.running {
		return ErrRunning
	}
	if b.sub == nil {
		b.logger.Warnf("No subscribe endpoints configured, %s will never be delivered", topic)
	} else if _, seen := b.handlers[topic]; !seen {
		// SUB filters are prefix matches, dispatch below matches exactly
		if err := b.sub.SetSubscribe(topic); err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", topic, err)
		}
	}
	b.handlers[topic] = append(b.handlers[topic], handler)
	return nil
}

func (b *ZeroMQBus) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	if b.running {
		return nil
	}
	b.running = true

	if b.sub == nil {
		return nil
	}

	b.wg.Add(1)
	go b.receive()
	return nil
}

func (b *ZeroMQBus) isRunning() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.running
}

func (b *ZeroMQBus) receive() {
	defer b.wg.Done()
	b.logger.Infof("Receiver started")

	for b.isRunning() {
		polled, err := b.poller.Poll(zmqPollTimeout)
		if err != nil {
			if b.isRunning() {
				b.logger.Errorf("Error polling socket: %v", err)
			}
			continue
		}
		if len(polled) == 0 {
			continue
		}

		frames, err := b.sub.RecvMessageBytes(0)
		if err != nil {
			if b.isRunning() {
				b.logger.Errorf("Error receiving message: %v", err)
			}
			continue
		}
		if len(frames) != 2 {
			b.logger.Warnf("Dropping message with %d frames", len(frames))
			continue
		}

		msg, err := Decode(frames[1])
		if err != nil {
			b.logger.Warnf("Dropping message on %s: %v", string(frames[0]), err)
			continue
		}
		b.dispatch(msg)
	}

	b.logger.Infof("Receiver stopped")
}

func (b *ZeroMQBus) dispatch(msg *Message) {
	b.mu.RLock()
	handlers := b.handlers[msg.Topic]
	b.mu.RUnlock()

	for _, h := range handlers {
		h(msg)
	}
}

// Stop ends the receive loop, closes both sockets and terminates the
// context.
func (b *ZeroMQBus) Stop() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.running = false
	b.closed = true
	b.mu.Unlock()

	b.wg.Wait()

	var err error
	b.pubMu.Lock()
	if b.pub != nil {
		err = multierr.Append(err, b.pub.Close())
		b.pub = nil
	}
	b.pubMu.Unlock()

	if b.sub != nil {
		err = multierr.Append(err, b.sub.Close())
		b.sub = nil
	}
	err = multierr.Append(err, b.ctx.Term())

	b.logger.Infof("ZeroMQ bus stopped")
	return err
}

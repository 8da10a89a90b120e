package processing

import (
	"fmt"
	"sync"

	"github.com/dmweis/hamilton/pkg/bus"
	"github.com/dmweis/hamilton/pkg/config"
	customlog "github.com/dmweis/hamilton/pkg/log"
)

// MessageDirector routes inbound bus messages to a pool by topic priority.
type MessageDirector struct {
	logger           customlog.Logger
	highPriorityPool *ProcessingPool
	standardPool     *ProcessingPool
	lowPriorityPool  *ProcessingPool
	topicRegistry    *TopicRegistry
	running          bool
	mu               sync.RWMutex
}

// NewMessageDirector creates the three pools sized by cfg.
func NewMessageDirector(cfg config.ProcessingConfig, topicRegistry *TopicRegistry, logger customlog.Logger) *MessageDirector {
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 64
	}

	d := &MessageDirector{
		logger:           logger,
		topicRegistry:    topicRegistry,
		highPriorityPool: NewProcessingPool(PriorityHigh, cfg.HighPriorityWorkers, queueSize, logger),
		standardPool:     NewProcessingPool(PriorityStandard, cfg.StandardPriorityWorkers, queueSize, logger),
		lowPriorityPool:  NewProcessingPool(PriorityLow, cfg.LowPriorityWorkers, queueSize, logger),
	}

	logger.Infof("Message Director initialized with pools: HIGH(%d), STANDARD(%d), LOW(%d)",
		d.highPriorityPool.workerCount, d.standardPool.workerCount, d.lowPriorityPool.workerCount)
	return d
}

// SetProcessor sets the message processor function for all pools
func (d *MessageDirector) SetProcessor(processor MessageProcessor) {
	for _, pool := range d.pools() {
		pool.SetProcessor(processor)
	}
}

// SetResultHandler sets the result handler function for all pools
func (d *MessageDirector) SetResultHandler(handler ResultHandler) {
	for _, pool := range d.pools() {
		pool.SetResultHandler(handler)
	}
}

func (d *MessageDirector) pools() []*ProcessingPool {
	return []*ProcessingPool{d.highPriorityPool, d.standardPool, d.lowPriorityPool}
}

// RouteMessage enqueues msg on the pool matching its topic priority.
// Unregistered topics go to STANDARD.
func (d *MessageDirector) RouteMessage(msg *bus.Message) error {
	d.mu.RLock()
	running := d.running
	d.mu.RUnlock()

	if !running {
		return fmt.Errorf("message director is not running")
	}

	priority, exists := d.topicRegistry.GetTopicPriority(msg.Topic)
	if !exists {
		d.logger.Warnf("No priority found for topic '%s', using STANDARD", msg.Topic)
		priority = PriorityStandard
	}
	d.topicRegistry.UpdateTopicStats(msg.Topic, msg.TimestampNs)

	var successful bool
	switch priority {
	case PriorityHigh:
		successful = d.highPriorityPool.ProcessMessage(msg)
	case PriorityLow:
		successful = d.lowPriorityPool.ProcessMessage(msg)
	default:
		successful = d.standardPool.ProcessMessage(msg)
	}

	if !successful {
		return fmt.Errorf("failed to enqueue message for topic '%s' (priority: %s)", msg.Topic, priority)
	}
	return nil
}

// Handler adapts RouteMessage to a bus subscription.
func (d *MessageDirector) Handler() bus.Handler {
	return func(msg *bus.Message) {
		if err := d.RouteMessage(msg); err != nil {
			d.logger.Warnf("%v", err)
		}
	}
}

// Start starts all processing pools
func (d *MessageDirector) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return
	}
	d.running = true
	d.logger.Infof("Starting Message Director")

	for _, pool := range d.pools() {
		pool.Start()
	}
}

// Stop stops all processing pools
func (d *MessageDirector) Stop() {
	d.mu.Lock()
	running := d.running
	d.running = false
	d.mu.Unlock()

	if !running {
		return
	}

	d.logger.Infof("Stopping Message Director")
	for _, pool := range d.pools() {
		pool.Stop()
	}
	d.logger.Infof("Message Director stopped")
}

// GetPoolMetrics returns metrics for all pools
func (d *MessageDirector) GetPoolMetrics() map[string]PoolMetrics {
	metrics := make(map[string]PoolMetrics, 3)
	for _, pool := range d.pools() {
		metrics[pool.GetName()] = pool.GetMetrics()
	}
	return metrics
}

// Topics exposes the registry's per-topic statistics.
func (d *MessageDirector) Topics() []TopicInfo {
	return d.topicRegistry.Topics()
}

// Register assigns a priority to an inbound topic.
func (d *MessageDirector) Register(topic, messageType, priority string) {
	d.topicRegistry.Register(topic, messageType, priority)
}

package processing

import (
	"sync"
	"time"

	"github.com/dmweis/hamilton/pkg/bus"
	customlog "github.com/dmweis/hamilton/pkg/log"
)

// ProcessResult is the result of processing a message
type ProcessResult struct {
	Topic     string
	Timestamp int64
	Duration  time.Duration
	Error     error
}

// ResultHandler is a function that handles processed results
type ResultHandler func(result *ProcessResult)

// MessageProcessor processes messages in a worker
type MessageProcessor func(msg *bus.Message) error

// ProcessingPool represents a priority-based worker pool
type ProcessingPool struct {
	name          string
	workerCount   int
	logger        customlog.Logger
	messageQueue  chan *bus.Message
	running       bool
	wg            sync.WaitGroup
	mu            sync.Mutex
	processor     MessageProcessor
	resultHandler ResultHandler
	queueSize     int
	metrics       PoolMetrics
	metricsMu     sync.Mutex
}

// PoolMetrics tracks metrics for a processing pool
type PoolMetrics struct {
	ProcessedCount    int64 `json:"processed"`
	ErrorCount        int64 `json:"errors"`
	QueuedCount       int64 `json:"queued"`
	DroppedCount      int64 `json:"dropped"`
	LastProcessedTime int64 `json:"last_processed_ns"`
	ProcessingTimeAvg int64 `json:"avg_us"` // in microseconds
	ProcessingTimeMax int64 `json:"max_us"` // in microseconds
}

// NewProcessingPool creates a new processing pool
func NewProcessingPool(name string, workerCount, queueSize int, logger customlog.Logger) *ProcessingPool {
	if workerCount < 1 {
		workerCount = 1
	}
	return &ProcessingPool{
		name:         name,
		workerCount:  workerCount,
		queueSize:    queueSize,
		logger:       logger.WithField("pool", name),
		messageQueue: make(chan *bus.Message, queueSize),
	}
}

// SetProcessor sets the message processor function
func (p *ProcessingPool) SetProcessor(processor MessageProcessor) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.processor = processor
}

// SetResultHandler sets the result handler function
func (p *ProcessingPool) SetResultHandler(handler ResultHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resultHandler = handler
}

// ProcessMessage adds a message to the queue for processing. It never
// blocks: a full queue drops the message.
func (p *ProcessingPool) ProcessMessage(msg *bus.Message) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		p.logger.Warnf("%s pool not running, discarding message", p.name)
		return false
	}

	select {
	case p.messageQueue <- msg:
		p.metricsMu.Lock()
		p.metrics.QueuedCount++
		p.metricsMu.Unlock()
		return true
	default:
		p.metricsMu.Lock()
		p.metrics.DroppedCount++
		p.metricsMu.Unlock()
		p.logger.Warnf("%s pool queue is full, discarding message for %s", p.name, msg.Topic)
		return false
	}
}

// Start starts the processing pool workers
func (p *ProcessingPool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return
	}

	p.running = true
	p.logger.Infof("Starting %s priority pool with %d workers", p.name, p.workerCount)

	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Stop drains the queue and waits for the workers.
func (p *ProcessingPool) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	// enqueue holds mu, so nothing sends after this close
	close(p.messageQueue)
	p.mu.Unlock()

	p.logger.Infof("Stopping %s priority pool", p.name)
	p.wg.Wait()
	p.logMetrics()
}

func (p *ProcessingPool) worker(id int) {
	defer p.wg.Done()

	p.logger.Debugf("%s pool worker %d started", p.name, id)

	for msg := range p.messageQueue {
		p.mu.Lock()
		processor := p.processor
		resultHandler := p.resultHandler
		p.mu.Unlock()

		if processor == nil {
			p.logger.Errorf("No message processor set for %s pool", p.name)
			continue
		}

		startTime := time.Now()
		err := processor(msg)
		elapsed := time.Since(startTime)
		processingTime := elapsed.Microseconds()

		p.metricsMu.Lock()
		p.metrics.ProcessedCount++
		p.metrics.LastProcessedTime = time.Now().UnixNano()
		if p.metrics.ProcessingTimeAvg == 0 {
			p.metrics.ProcessingTimeAvg = processingTime
		} else {
			// Simple moving average
			p.metrics.ProcessingTimeAvg = (p.metrics.ProcessingTimeAvg + processingTime) / 2
		}
		if processingTime > p.metrics.ProcessingTimeMax {
			p.metrics.ProcessingTimeMax = processingTime
		}
		if err != nil {
			p.metrics.ErrorCount++
		}
		p.metricsMu.Unlock()

		if resultHandler != nil {
			resultHandler(&ProcessResult{
				Topic:     msg.Topic,
				Timestamp: msg.TimestampNs,
				Duration:  elapsed,
				Error:     err,
			})
		}
	}

	p.logger.Debugf("%s pool worker %d stopped", p.name, id)
}

// GetMetrics returns a copy of the current metrics
func (p *ProcessingPool) GetMetrics() PoolMetrics {
	p.metricsMu.Lock()
	defer p.metricsMu.Unlock()

	return p.metrics
}

func (p *ProcessingPool) logMetrics() {
	metrics := p.GetMetrics()

	p.logger.Infof("%s pool metrics: processed=%d, errors=%d, dropped=%d, avg_time=%dµs, max_time=%dµs",
		p.name, metrics.ProcessedCount, metrics.ErrorCount, metrics.DroppedCount,
		metrics.ProcessingTimeAvg, metrics.ProcessingTimeMax)
}

// GetName returns the pool name
func (p *ProcessingPool) GetName() string {
	return p.name
}

// GetQueueLength returns the current length of the message queue
func (p *ProcessingPool) GetQueueLength() int {
	return len(p.messageQueue)
}

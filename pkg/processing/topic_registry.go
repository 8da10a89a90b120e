package processing

import (
	"sort"
	"sync"
)

// Priority levels
const (
	PriorityHigh     = "HIGH"
	PriorityStandard = "STANDARD"
	PriorityLow      = "LOW"
)

// TopicInfo holds metadata for a subscribed topic
type TopicInfo struct {
	Topic        string `json:"topic"`
	MessageType  string `json:"type"`
	Priority     string `json:"priority"`
	StatCount    int64  `json:"count"`
	LastReceived int64  `json:"last_received"`
}

// TopicRegistry maintains priority and receive statistics per topic
type TopicRegistry struct {
	topics map[string]*TopicInfo
	mu     sync.RWMutex
}

// NewTopicRegistry creates a new topic registry
func NewTopicRegistry() *TopicRegistry {
	return &TopicRegistry{topics: make(map[string]*TopicInfo)}
}

// Register records a topic with its message type and priority. An unknown
// priority is stored as STANDARD.
func (r *TopicRegistry) Register(topic, messageType, priority string) {
	switch priority {
	case PriorityHigh, PriorityStandard, PriorityLow:
	default:
		priority = PriorityStandard
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.topics[topic] = &TopicInfo{Topic: topic, MessageType: messageType, Priority: priority}
}

// GetTopicPriority gets the priority for a topic
func (r *TopicRegistry) GetTopicPriority(topic string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	info, exists := r.topics[topic]
	if !exists {
		return "", false
	}
	return info.Priority, true
}

// UpdateTopicStats updates statistics for a topic
func (r *TopicRegistry) UpdateTopicStats(topic string, timestamp int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	info, exists := r.topics[topic]
	if !exists {
		info = &TopicInfo{Topic: topic, Priority: PriorityStandard}
		r.topics[topic] = info
	}
	info.StatCount++
	info.LastReceived = timestamp
}

// Topics returns a copy of every topic's info, sorted by name.
func (r *TopicRegistry) Topics() []TopicInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]TopicInfo, 0, len(r.topics))
	for _, info := range r.topics {
		out = append(out, *info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Topic < out[j].Topic })
	return out
}

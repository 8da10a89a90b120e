package api

// --- Data structures for HTTP and WebSocket messages ---

// Envelope wraps every message pushed over the map WebSocket.
type Envelope struct {
	Type      string      `json:"type"`
	Timestamp float64     `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// MsgTypePose tags pose updates on the map WebSocket.
const MsgTypePose = "POSE"

// GoalRequest is the body of POST /api/v1/goal. Theta is optional.
type GoalRequest struct {
	X     *float64 `json:"x"`
	Y     *float64 `json:"y"`
	Theta *float64 `json:"theta,omitempty"`
}

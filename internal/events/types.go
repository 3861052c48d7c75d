package events

import (
	"time"
)

// EventType identifies the kind of event delivered over the stream.
type EventType string

const (
	// EventTypeDecision is emitted for every completed inspection.
	EventTypeDecision EventType = "inspection_decision"
	// EventTypeEscalation is emitted when an escalation record is created.
	EventTypeEscalation EventType = "escalation_created"
	// EventTypeSecurityAlert is emitted for CRITICAL security events.
	EventTypeSecurityAlert EventType = "security_alert"
	// EventTypeSystemStatus carries periodic health information.
	EventTypeSystemStatus EventType = "system_status"
	// EventTypeConnection announces client connects and disconnects.
	EventTypeConnection EventType = "connection"
)

// Event is the envelope sent to subscribed clients.
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
	RequestID string      `json:"request_id,omitempty"`
}

// DecisionEvent summarizes a finished inspection. Content is identified
// only by hash.
type DecisionEvent struct {
	RequestID   string   `json:"request_id"`
	UserID      string   `json:"user_id"`
	Stage       string   `json:"stage"`
	Decision    string   `json:"decision"`
	Confidence  float64  `json:"confidence"`
	Score       float64  `json:"score"`
	PatternIDs  []string `json:"pattern_ids,omitempty"`
	PIITypes    []string `json:"pii_types,omitempty"`
	ContentHash string   `json:"content_hash"`
	ElapsedMS   float64  `json:"elapsed_ms"`
}

// EscalationEvent announces a new record on the review queue.
type EscalationEvent struct {
	EscalationID string  `json:"escalation_id"`
	UserID       string  `json:"user_id"`
	Severity     string  `json:"severity"`
	Score        float64 `json:"score"`
	Ephemeral    bool    `json:"ephemeral"`
}

// SecurityAlertEvent announces a CRITICAL security event.
type SecurityAlertEvent struct {
	EventID     string   `json:"event_id"`
	Kind        string   `json:"kind"`
	Severity    string   `json:"severity"`
	UserID      string   `json:"user_id"`
	RequestID   string   `json:"request_id"`
	PIITypes    []string `json:"pii_types,omitempty"`
	ContentHash string   `json:"content_hash"`
}

// SystemStatusEvent carries periodic operational state.
type SystemStatusEvent struct {
	Status           string `json:"status"`
	Uptime           string `json:"uptime"`
	TotalInspections int64  `json:"total_inspections"`
	TotalBlocks      int64  `json:"total_blocks"`
	ActivePatterns   int    `json:"active_patterns"`
	ConnectedClients int    `json:"connected_clients"`
}

// ConnectionEvent announces WebSocket connection changes.
type ConnectionEvent struct {
	Action   string `json:"action"` // "connected", "disconnected"
	ClientID string `json:"client_id"`
	ClientIP string `json:"client_ip"`
}

// ClientMessage is a message received from a client.
type ClientMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// SubscriptionRequest narrows which event types a client receives.
type SubscriptionRequest struct {
	Events []EventType `json:"events"`
}

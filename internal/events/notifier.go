package events

import (
	"time"

	"github.com/spendlens/guardrails/internal/audit"
	"github.com/spendlens/guardrails/internal/escalate"
)

// Notifier bridges audit activity onto the hub.
type Notifier struct {
	hub *Hub
}

// NewNotifier wraps the hub for use as the audit recorder's notifier.
func NewNotifier(hub *Hub) *Notifier {
	return &Notifier{hub: hub}
}

// AuditRecorded broadcasts a decision event. Non-blocking.
func (n *Notifier) AuditRecorded(entry audit.Entry) {
	n.hub.Broadcast(Event{
		Type:      EventTypeDecision,
		Timestamp: time.Now(),
		RequestID: entry.RequestID,
		Data: DecisionEvent{
			RequestID:   entry.RequestID,
			UserID:      entry.UserID,
			Stage:       entry.Stage,
			Decision:    entry.Decision,
			Confidence:  entry.Confidence,
			Score:       entry.Score,
			PatternIDs:  entry.PatternIDs,
			PIITypes:    entry.PIITypes,
			ContentHash: entry.ContentHash,
			ElapsedMS:   entry.ElapsedMS,
		},
	})
}

// SecurityAlert broadcasts a security alert event. Non-blocking.
func (n *Notifier) SecurityAlert(event audit.SecurityEvent) {
	n.hub.Broadcast(Event{
		Type:      EventTypeSecurityAlert,
		Timestamp: time.Now(),
		RequestID: event.RequestID,
		Data: SecurityAlertEvent{
			EventID:     event.ID,
			Kind:        event.Kind,
			Severity:    event.Severity,
			UserID:      event.UserID,
			RequestID:   event.RequestID,
			PIITypes:    event.PIITypes,
			ContentHash: event.ContentHash,
		},
	})
}

// EscalationCreated broadcasts a queue event for a new escalation.
func (n *Notifier) EscalationCreated(record *escalate.Record) {
	n.hub.Broadcast(Event{
		Type:      EventTypeEscalation,
		Timestamp: time.Now(),
		RequestID: record.RequestID,
		Data: EscalationEvent{
			EscalationID: record.ID,
			UserID:       record.UserID,
			Severity:     string(record.Severity),
			Score:        record.Score,
			Ephemeral:    record.Ephemeral,
		},
	})
}

package command

import (
	"strings"
	"time"

	"github.com/louisbranch/contentstream/internal/services/content/domain/event"
)

// Decision represents the pure outcome of handling a command.
type Decision struct {
	Events     []event.Event
	Rejections []Rejection
}

// Rejection captures a domain-level reason a command was declined.
type Rejection struct {
	Code    string
	Message string
}

// Accept returns a decision that emits the provided events.
func Accept(events ...event.Event) Decision {
	return Decision{Events: append([]event.Event(nil), events...)}
}

// Reject returns a decision that carries the provided rejections.
func Reject(rejections ...Rejection) Decision {
	return Decision{Rejections: append([]Rejection(nil), rejections...)}
}

// Rejected reports whether the decision declined the command.
func (d Decision) Rejected() bool {
	return len(d.Rejections) > 0
}

// RejectionError reports a declined command as an error value.
type RejectionError struct {
	Type       Type
	Rejections []Rejection
}

func (e *RejectionError) Error() string {
	parts := make([]string, len(e.Rejections))
	for i, r := range e.Rejections {
		parts[i] = r.Code + ": " + r.Message
	}
	return string(e.Type) + " rejected: " + strings.Join(parts, "; ")
}

// Err returns a *RejectionError for rejected decisions and nil otherwise.
func (d Decision) Err(cmdType Type) error {
	if !d.Rejected() {
		return nil
	}
	return &RejectionError{Type: cmdType, Rejections: append([]Rejection(nil), d.Rejections...)}
}

// NewEvent builds an event carrying cmd in its metadata. The engine fills in
// the stream name before appending.
func NewEvent(cmd Command, eventType event.Type, payloadJSON []byte, now time.Time) event.Event {
	return event.Event{
		Type:        eventType,
		Timestamp:   now.UTC(),
		PayloadJSON: payloadJSON,
		Metadata: event.Metadata{
			CommandID:          cmd.ID,
			CommandType:        string(cmd.Type),
			CommandPayloadJSON: append([]byte(nil), cmd.PayloadJSON...),
			InitiatingUserID:   cmd.InitiatingUserID,
			CorrelationID:      cmd.CorrelationID,
			CausationID:        cmd.CausationID,
		},
	}
}

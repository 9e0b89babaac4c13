package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrTypeRequired indicates a missing event type.
	ErrTypeRequired = errors.New("event type is required")
	// ErrStreamRequired indicates a missing stream name.
	ErrStreamRequired = errors.New("event stream is required")
	// ErrPayloadInvalid indicates malformed payload JSON.
	ErrPayloadInvalid = errors.New("event payload json must be valid")
)

// Type identifies the event type string.
type Type string

// Core event types.
const (
	TypeContentStreamCreated Type = "content_stream.created"
	TypeContentStreamForked  Type = "content_stream.forked"
	TypeContentStreamClosed  Type = "content_stream.closed"

	TypeWorkspaceCreated   Type = "workspace.created"
	TypeWorkspaceRebased   Type = "workspace.rebased"
	TypeWorkspaceDiscarded Type = "workspace.discarded"
	TypeWorkspacePublished Type = "workspace.published"

	TypeSubtreeTagged   Type = "subtree.tagged"
	TypeSubtreeUntagged Type = "subtree.untagged"
)

// Category returns the part of a type before the first dot.
func (t Type) Category() string {
	category, _, _ := strings.Cut(string(t), ".")
	return category
}

// Metadata records why an event exists.
type Metadata struct {
	CommandID          string
	CommandType        string
	CommandPayloadJSON []byte
	InitiatingUserID   string
	CorrelationID      string
	CausationID        string
}

// HasCommand reports whether the event was produced by a command.
func (m Metadata) HasCommand() bool {
	return m.CommandID != "" && m.CommandType != ""
}

// Event is the stored envelope.
type Event struct {
	Stream      string
	Version     int64
	Seq         int64
	Type        Type
	Timestamp   time.Time
	PayloadJSON []byte
	Metadata    Metadata
}

// Validate checks the producer-supplied fields.
func (e Event) Validate() error {
	if strings.TrimSpace(e.Stream) == "" {
		return ErrStreamRequired
	}
	if strings.TrimSpace(string(e.Type)) == "" {
		return ErrTypeRequired
	}
	if len(e.PayloadJSON) > 0 && !json.Valid(e.PayloadJSON) {
		return fmt.Errorf("%s: %w", e.Type, ErrPayloadInvalid)
	}
	return nil
}

// New encodes payload into an event for stream.
func New(stream string, payload Payload, now time.Time) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("encode %s payload: %w", payload.EventType(), err)
	}
	return Event{
		Stream:      stream,
		Type:        payload.EventType(),
		Timestamp:   now.UTC(),
		PayloadJSON: data,
	}, nil
}

package event

import (
	"encoding/json"
	"fmt"

	"github.com/louisbranch/contentstream/internal/services/content/domain/dimensionspace"
)

// Payload is one of the core payload variants or Opaque.
type Payload interface {
	EventType() Type
	payload()
}

// ContentStreamCreated starts a root content stream.
type ContentStreamCreated struct {
	ContentStreamID string `json:"content_stream_id"`
}

// ContentStreamForked starts a stream that sees SourceID's history up to
// SourceVersion before its own events.
type ContentStreamForked struct {
	ContentStreamID string `json:"content_stream_id"`
	SourceID        string `json:"source_content_stream_id"`
	SourceVersion   int64  `json:"source_version"`
}

// ContentStreamClosed marks a stream read-only for commands.
type ContentStreamClosed struct {
	ContentStreamID string `json:"content_stream_id"`
}

// WorkspaceCreated names a workspace and its first content stream.
type WorkspaceCreated struct {
	Name            string `json:"name"`
	BaseWorkspace   string `json:"base_workspace,omitempty"`
	ContentStreamID string `json:"content_stream_id"`
}

// WorkspaceRebased repoints a workspace at a stream forked from its base tip
// with its own commands replayed on top.
type WorkspaceRebased struct {
	Name                    string `json:"name"`
	ContentStreamID         string `json:"content_stream_id"`
	PreviousContentStreamID string `json:"previous_content_stream_id"`
	FailedCommands          int    `json:"failed_commands"`
}

// WorkspaceDiscarded repoints a workspace at a fresh fork of its base tip.
type WorkspaceDiscarded struct {
	Name                    string `json:"name"`
	ContentStreamID         string `json:"content_stream_id"`
	PreviousContentStreamID string `json:"previous_content_stream_id"`
}

// WorkspacePublished records that a workspace's own events were appended to
// its base and the workspace restarted on a fresh fork.
type WorkspacePublished struct {
	Name                    string `json:"name"`
	BaseWorkspace           string `json:"base_workspace"`
	ContentStreamID         string `json:"content_stream_id"`
	PreviousContentStreamID string `json:"previous_content_stream_id"`
	PublishedEvents         int    `json:"published_events"`
}

// SubtreeTagged grants Tag on AggregateID at AffectedPoints.
type SubtreeTagged struct {
	AggregateID    string                  `json:"aggregate_id"`
	Tag            string                  `json:"tag"`
	AffectedPoints dimensionspace.PointSet `json:"affected_points"`
}

// SubtreeUntagged revokes AggregateID's own grants of Tag at AffectedPoints.
type SubtreeUntagged struct {
	AggregateID    string                  `json:"aggregate_id"`
	Tag            string                  `json:"tag"`
	AffectedPoints dimensionspace.PointSet `json:"affected_points"`
}

// Opaque carries an event type the core does not interpret.
type Opaque struct {
	Type Type
	Raw  json.RawMessage
}

func (ContentStreamCreated) EventType() Type { return TypeContentStreamCreated }
func (ContentStreamForked) EventType() Type  { return TypeContentStreamForked }
func (ContentStreamClosed) EventType() Type  { return TypeContentStreamClosed }
func (WorkspaceCreated) EventType() Type     { return TypeWorkspaceCreated }
func (WorkspaceRebased) EventType() Type     { return TypeWorkspaceRebased }
func (WorkspaceDiscarded) EventType() Type   { return TypeWorkspaceDiscarded }
func (WorkspacePublished) EventType() Type   { return TypeWorkspacePublished }
func (SubtreeTagged) EventType() Type        { return TypeSubtreeTagged }
func (SubtreeUntagged) EventType() Type      { return TypeSubtreeUntagged }
func (o Opaque) EventType() Type             { return o.Type }

func (ContentStreamCreated) payload() {}
func (ContentStreamForked) payload()  {}
func (ContentStreamClosed) payload()  {}
func (WorkspaceCreated) payload()     {}
func (WorkspaceRebased) payload()     {}
func (WorkspaceDiscarded) payload()   {}
func (WorkspacePublished) payload()   {}
func (SubtreeTagged) payload()        {}
func (SubtreeUntagged) payload()      {}
func (Opaque) payload()               {}

// MarshalJSON writes the raw payload unchanged.
func (o Opaque) MarshalJSON() ([]byte, error) {
	if len(o.Raw) == 0 {
		return []byte("{}"), nil
	}
	return o.Raw, nil
}

// Decode returns the payload variant for evt.
func Decode(evt Event) (Payload, error) {
	switch evt.Type {
	case TypeContentStreamCreated:
		return decodeAs[ContentStreamCreated](evt)
	case TypeContentStreamForked:
		return decodeAs[ContentStreamForked](evt)
	case TypeContentStreamClosed:
		return decodeAs[ContentStreamClosed](evt)
	case TypeWorkspaceCreated:
		return decodeAs[WorkspaceCreated](evt)
	case TypeWorkspaceRebased:
		return decodeAs[WorkspaceRebased](evt)
	case TypeWorkspaceDiscarded:
		return decodeAs[WorkspaceDiscarded](evt)
	case TypeWorkspacePublished:
		return decodeAs[WorkspacePublished](evt)
	case TypeSubtreeTagged:
		return decodeAs[SubtreeTagged](evt)
	case TypeSubtreeUntagged:
		return decodeAs[SubtreeUntagged](evt)
	default:
		return Opaque{Type: evt.Type, Raw: append(json.RawMessage(nil), evt.PayloadJSON...)}, nil
	}
}

func decodeAs[T Payload](evt Event) (Payload, error) {
	var p T
	if len(evt.PayloadJSON) == 0 {
		return p, nil
	}
	if err := json.Unmarshal(evt.PayloadJSON, &p); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", evt.Type, err)
	}
	return p, nil
}

package contentstream

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/louisbranch/contentstream/internal/platform/errors"
	"github.com/louisbranch/contentstream/internal/platform/id"
	"github.com/louisbranch/contentstream/internal/services/content/domain/event"
	"github.com/louisbranch/contentstream/internal/services/content/storage"
)

// Category is the stream category of content streams.
const Category = "contentstream"

var (
	// ErrInvalidID indicates a malformed content stream id.
	ErrInvalidID = apperrors.New(apperrors.CodeInvalidContentStreamID, "invalid content stream id")
	// ErrStreamNotFound indicates a content stream without lifecycle events.
	ErrStreamNotFound = apperrors.New(apperrors.CodeStreamNotFound, "content stream not found")
	// ErrStreamAlreadyExists indicates an id that was already used.
	ErrStreamAlreadyExists = apperrors.New(apperrors.CodeStreamAlreadyExists, "content stream already exists")
	// ErrStreamClosed indicates a write to a closed stream.
	ErrStreamClosed = apperrors.New(apperrors.CodeStreamClosed, "content stream is closed")

	errStoreRequired = errors.New("event store is required")
)

// ID identifies a content stream. IDs are never reused.
type ID string

// NewID returns a fresh random id.
func NewID() (ID, error) {
	value, err := id.NewID()
	if err != nil {
		return "", fmt.Errorf("generate content stream id: %w", err)
	}
	return ID(value), nil
}

// ParseID validates a caller-supplied id.
func ParseID(value string) (ID, error) {
	if value == "" || strings.TrimSpace(value) != value || strings.ContainsAny(value, ": \t\n") {
		return "", apperrors.Wrap(apperrors.CodeInvalidContentStreamID, fmt.Sprintf("invalid content stream id %q", value), ErrInvalidID)
	}
	return ID(value), nil
}

// String returns the raw id.
func (i ID) String() string { return string(i) }

// StreamName returns the event log stream of the content stream.
func StreamName(i ID) string {
	return Category + ":" + string(i)
}

// IDFromStream extracts the id from a content stream name.
func IDFromStream(stream string) (ID, bool) {
	category, rest, ok := strings.Cut(stream, ":")
	if !ok || category != Category || rest == "" {
		return "", false
	}
	return ID(rest), true
}

// State is the lifecycle state folded from a stream's events.
type State struct {
	ID            ID
	Exists        bool
	Closed        bool
	Version       int64
	SourceID      ID
	SourceVersion int64
}

// IsFork reports whether the stream was forked from another stream.
func (s State) IsFork() bool { return s.SourceID != "" }

// Fold folds the events of one stream into its lifecycle state.
func Fold(streamID ID, events []event.Event) (State, error) {
	state := State{ID: streamID}
	for _, evt := range events {
		state.Version = evt.Version
		switch evt.Type {
		case event.TypeContentStreamCreated:
			state.Exists = true
		case event.TypeContentStreamForked:
			payload, err := event.Decode(evt)
			if err != nil {
				return State{}, err
			}
			forked := payload.(event.ContentStreamForked)
			state.Exists = true
			state.SourceID = ID(forked.SourceID)
			state.SourceVersion = forked.SourceVersion
		case event.TypeContentStreamClosed:
			state.Closed = true
		}
	}
	return state, nil
}

// Streams runs lifecycle operations against the event log.
type Streams struct {
	Store storage.EventStore
	Now   func() time.Time
}

// NewStreams returns lifecycle operations over store.
func NewStreams(store storage.EventStore) *Streams {
	return &Streams{Store: store, Now: time.Now}
}

func (s *Streams) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

// Create starts a root stream.
func (s *Streams) Create(ctx context.Context, streamID ID, meta event.Metadata) (event.Event, error) {
	if s == nil || s.Store == nil {
		return event.Event{}, errStoreRequired
	}
	if _, err := ParseID(string(streamID)); err != nil {
		return event.Event{}, err
	}
	evt, err := event.New(StreamName(streamID), event.ContentStreamCreated{ContentStreamID: string(streamID)}, s.now())
	if err != nil {
		return event.Event{}, err
	}
	evt.Metadata = meta
	return s.appendFirst(ctx, streamID, evt)
}

// Fork starts newID at the current tip of sourceID.
func (s *Streams) Fork(ctx context.Context, newID, sourceID ID, meta event.Metadata) (event.Event, error) {
	if s == nil || s.Store == nil {
		return event.Event{}, errStoreRequired
	}
	if _, err := ParseID(string(newID)); err != nil {
		return event.Event{}, err
	}
	source, err := s.Load(ctx, sourceID)
	if err != nil {
		return event.Event{}, err
	}
	if !source.Exists {
		return event.Event{}, notFound(sourceID)
	}
	evt, err := event.New(StreamName(newID), event.ContentStreamForked{
		ContentStreamID: string(newID),
		SourceID:        string(sourceID),
		SourceVersion:   source.Version,
	}, s.now())
	if err != nil {
		return event.Event{}, err
	}
	evt.Metadata = meta
	return s.appendFirst(ctx, newID, evt)
}

func (s *Streams) appendFirst(ctx context.Context, streamID ID, evt event.Event) (event.Event, error) {
	stored, err := s.Store.AppendEvents(ctx, StreamName(streamID), storage.ExpectNoStream(), []event.Event{evt})
	if errors.Is(err, storage.ErrConcurrencyConflict) {
		return event.Event{}, apperrors.WrapWithMetadata(apperrors.CodeStreamAlreadyExists,
			fmt.Sprintf("content stream %s already exists", streamID),
			map[string]string{"content_stream_id": string(streamID)}, ErrStreamAlreadyExists)
	}
	if err != nil {
		return event.Event{}, fmt.Errorf("append %s: %w", evt.Type, err)
	}
	return stored[0], nil
}

// Close appends the terminal event. Closing a closed stream fails with
// ErrStreamClosed.
func (s *Streams) Close(ctx context.Context, streamID ID, meta event.Metadata) (event.Event, error) {
	if s == nil || s.Store == nil {
		return event.Event{}, errStoreRequired
	}
	state, err := s.Load(ctx, streamID)
	if err != nil {
		return event.Event{}, err
	}
	if err := state.RequireWritable(); err != nil {
		return event.Event{}, err
	}
	evt, err := event.New(StreamName(streamID), event.ContentStreamClosed{ContentStreamID: string(streamID)}, s.now())
	if err != nil {
		return event.Event{}, err
	}
	evt.Metadata = meta
	stored, err := s.Store.AppendEvents(ctx, StreamName(streamID), storage.ExpectVersion(state.Version), []event.Event{evt})
	if err != nil {
		return event.Event{}, fmt.Errorf("append %s: %w", evt.Type, err)
	}
	return stored[0], nil
}

// RequireWritable returns ErrStreamNotFound or ErrStreamClosed when the
// stream cannot accept command-originated writes.
func (s State) RequireWritable() error {
	if !s.Exists {
		return notFound(s.ID)
	}
	if s.Closed {
		return apperrors.WrapWithMetadata(apperrors.CodeStreamClosed,
			fmt.Sprintf("content stream %s is closed", s.ID),
			map[string]string{"content_stream_id": string(s.ID)}, ErrStreamClosed)
	}
	return nil
}

// Load folds the stream's own events into its state. A stream without events
// loads with Exists false.
func (s *Streams) Load(ctx context.Context, streamID ID) (State, error) {
	if s == nil || s.Store == nil {
		return State{}, errStoreRequired
	}
	events, err := s.Store.ReadStream(ctx, StreamName(streamID), 0, 0)
	if err != nil {
		return State{}, fmt.Errorf("read %s: %w", StreamName(streamID), err)
	}
	return Fold(streamID, events)
}

// History returns the events visible in a stream: the source's visible
// history up to the fork version followed by the stream's own events.
func (s *Streams) History(ctx context.Context, streamID ID) ([]event.Event, error) {
	if s == nil || s.Store == nil {
		return nil, errStoreRequired
	}
	return s.history(ctx, streamID, 0, make(map[ID]bool))
}

// history returns the visible events of streamID whose own version is at
// most upTo; zero means the whole stream.
func (s *Streams) history(ctx context.Context, streamID ID, upTo int64, seen map[ID]bool) ([]event.Event, error) {
	if seen[streamID] {
		return nil, fmt.Errorf("content stream %s forks from itself", streamID)
	}
	seen[streamID] = true

	limit := 0
	if upTo > 0 {
		limit = int(upTo)
	}
	own, err := s.Store.ReadStream(ctx, StreamName(streamID), 0, limit)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", StreamName(streamID), err)
	}
	if len(own) == 0 {
		return nil, notFound(streamID)
	}
	state, err := Fold(streamID, own[:1])
	if err != nil {
		return nil, err
	}
	if !state.IsFork() {
		return own, nil
	}
	prefix, err := s.history(ctx, state.SourceID, state.SourceVersion, seen)
	if err != nil {
		return nil, err
	}
	return append(prefix, own...), nil
}

func notFound(streamID ID) error {
	return apperrors.WrapWithMetadata(apperrors.CodeStreamNotFound,
		fmt.Sprintf("content stream %s not found", streamID),
		map[string]string{"content_stream_id": string(streamID)}, ErrStreamNotFound)
}

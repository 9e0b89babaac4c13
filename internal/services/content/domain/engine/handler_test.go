package engine

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/louisbranch/contentstream/internal/platform/requestctx"
	"github.com/louisbranch/contentstream/internal/services/content/domain/command"
	"github.com/louisbranch/contentstream/internal/services/content/domain/contentstream"
	"github.com/louisbranch/contentstream/internal/services/content/domain/event"
	"github.com/louisbranch/contentstream/internal/services/content/storage"
	"github.com/louisbranch/contentstream/internal/services/content/storage/memory"
)

var fixedNow = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

type noteDecider struct {
	before func(ctx context.Context)
	seen   State
}

func (d *noteDecider) Decide(ctx context.Context, state State, cmd command.Command, now func() time.Time) (command.Decision, error) {
	d.seen = state
	if d.before != nil {
		d.before(ctx)
	}
	var payload struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(cmd.PayloadJSON, &payload); err != nil {
		return command.Decision{}, err
	}
	if payload.Text == "" {
		return command.Reject(command.Rejection{Code: "NOTE_EMPTY", Message: "note text is required"}), nil
	}
	return command.Accept(command.NewEvent(cmd, "note.added", cmd.PayloadJSON, now())), nil
}

func newHandler(t *testing.T, decider Decider) (Handler, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	registry := NewRegistry()
	if err := registry.Register(command.Definition{Type: "note.add"}, decider); err != nil {
		t.Fatalf("register: %v", err)
	}
	streams := contentstream.NewStreams(store)
	if _, err := streams.Create(context.Background(), "live", event.Metadata{}); err != nil {
		t.Fatalf("create stream: %v", err)
	}
	return Handler{
		Registry: registry,
		Streams:  streams,
		Now:      func() time.Time { return fixedNow },
		NewID:    func() (string, error) { return "cmd-1", nil },
	}, store
}

func TestHandleAppendsWithMetadata(t *testing.T) {
	decider := &noteDecider{}
	handler, _ := newHandler(t, decider)
	var hooked []event.Event
	handler.OnCommit = func(_ context.Context, events []event.Event) { hooked = events }

	ctx := requestctx.WithCorrelationID(requestctx.WithUserID(context.Background(), "user-7"), "corr-9")
	result, err := handler.Handle(ctx, command.Command{
		StreamID:    "live",
		Type:        "note.add",
		PayloadJSON: []byte(`{ "text": "hi" }`),
	})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(result.Events) != 1 {
		t.Fatalf("events = %d, want 1", len(result.Events))
	}
	evt := result.Events[0]
	if evt.Stream != "contentstream:live" || evt.Version != 2 || evt.Seq != 2 {
		t.Fatalf("event = %s v%d seq%d, want contentstream:live v2 seq2", evt.Stream, evt.Version, evt.Seq)
	}
	if evt.Metadata.CommandID != "cmd-1" || evt.Metadata.CommandType != "note.add" {
		t.Fatalf("metadata = %+v", evt.Metadata)
	}
	if evt.Metadata.InitiatingUserID != "user-7" || evt.Metadata.CorrelationID != "corr-9" {
		t.Fatalf("request metadata = %+v, want user-7/corr-9", evt.Metadata)
	}
	if string(evt.Metadata.CommandPayloadJSON) != `{"text":"hi"}` {
		t.Fatalf("command payload = %s, want canonical json", evt.Metadata.CommandPayloadJSON)
	}
	if !evt.Timestamp.Equal(fixedNow) {
		t.Fatalf("timestamp = %v, want %v", evt.Timestamp, fixedNow)
	}
	if len(hooked) != 1 || hooked[0].Seq != 2 {
		t.Fatalf("commit hook saw %+v", hooked)
	}
	if !decider.seen.Stream.Exists || decider.seen.Stream.Version != 1 || len(decider.seen.History) != 1 {
		t.Fatalf("decider state = %+v", decider.seen)
	}

	rebuilt, ok := command.FromEvent(evt, "other")
	if !ok || rebuilt.Type != "note.add" || rebuilt.StreamID != "other" || rebuilt.ID != "cmd-1" {
		t.Fatalf("FromEvent = %+v, %v", rebuilt, ok)
	}
}

func TestHandleRejection(t *testing.T) {
	handler, store := newHandler(t, &noteDecider{})
	result, err := handler.Handle(context.Background(), command.Command{StreamID: "live", Type: "note.add", PayloadJSON: []byte(`{}`)})
	var rejection *command.RejectionError
	if !errors.As(err, &rejection) {
		t.Fatalf("error = %v, want *command.RejectionError", err)
	}
	if rejection.Rejections[0].Code != "NOTE_EMPTY" || !result.Decision.Rejected() {
		t.Fatalf("rejection = %+v", rejection)
	}
	if !IsNonRetryable(err) || IsAppendFailure(err) {
		t.Fatalf("rejection classification: nonRetryable=%v append=%v", IsNonRetryable(err), IsAppendFailure(err))
	}
	version, _ := store.StreamVersion(context.Background(), "contentstream:live")
	if version != 1 {
		t.Fatalf("version = %d, want rejected command to append nothing", version)
	}
}

func TestHandleValidation(t *testing.T) {
	handler, _ := newHandler(t, &noteDecider{})
	tests := []struct {
		name string
		cmd  command.Command
		want error
	}{
		{name: "unknown type", cmd: command.Command{StreamID: "live", Type: "note.remove"}, want: command.ErrTypeUnknown},
		{name: "missing stream", cmd: command.Command{Type: "note.add"}, want: command.ErrStreamIDRequired},
		{name: "bad payload", cmd: command.Command{StreamID: "live", Type: "note.add", PayloadJSON: []byte("{")}, want: command.ErrPayloadInvalid},
		{name: "missing target", cmd: command.Command{StreamID: "ghost", Type: "note.add", PayloadJSON: []byte(`{"text":"x"}`)}, want: contentstream.ErrStreamNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := handler.Handle(context.Background(), tt.cmd)
			if !errors.Is(err, tt.want) {
				t.Fatalf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestHandleClosedStream(t *testing.T) {
	handler, _ := newHandler(t, &noteDecider{})
	if _, err := handler.Streams.Close(context.Background(), "live", event.Metadata{}); err != nil {
		t.Fatalf("close: %v", err)
	}
	_, err := handler.Handle(context.Background(), command.Command{StreamID: "live", Type: "note.add", PayloadJSON: []byte(`{"text":"x"}`)})
	if !errors.Is(err, contentstream.ErrStreamClosed) {
		t.Fatalf("error = %v, want ErrStreamClosed", err)
	}
}

func TestHandleConcurrentAppendFails(t *testing.T) {
	decider := &noteDecider{}
	handler, store := newHandler(t, decider)
	decider.before = func(ctx context.Context) {
		_, err := store.AppendEvents(ctx, "contentstream:live", storage.ExpectAny(), []event.Event{{Type: "note.added", PayloadJSON: []byte(`{}`)}})
		if err != nil {
			t.Errorf("concurrent append: %v", err)
		}
	}
	_, err := handler.Handle(context.Background(), command.Command{StreamID: "live", Type: "note.add", PayloadJSON: []byte(`{"text":"x"}`)})
	if !IsAppendFailure(err) {
		t.Fatalf("error = %v, want append failure", err)
	}
	if !errors.Is(err, storage.ErrConcurrencyConflict) {
		t.Fatalf("error = %v, want concurrency conflict in chain", err)
	}
	if IsNonRetryable(err) {
		t.Fatal("concurrency conflicts must stay retryable")
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	registry := NewRegistry()
	if err := registry.Register(command.Definition{Type: "a"}, &noteDecider{}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := registry.Register(command.Definition{Type: "a"}, &noteDecider{}); err == nil {
		t.Fatal("expected duplicate registration error")
	}
	if err := registry.Register(command.Definition{Type: "b"}, nil); !errors.Is(err, ErrDeciderRequired) {
		t.Fatalf("nil decider error = %v, want ErrDeciderRequired", err)
	}
}

func TestHandlerRequiresCollaborators(t *testing.T) {
	if _, err := (Handler{}).Handle(context.Background(), command.Command{}); !errors.Is(err, ErrRegistryRequired) {
		t.Fatalf("error = %v, want ErrRegistryRequired", err)
	}
	if _, err := (Handler{Registry: NewRegistry()}).Handle(context.Background(), command.Command{}); !errors.Is(err, ErrStreamsRequired) {
		t.Fatalf("error = %v, want ErrStreamsRequired", err)
	}
}

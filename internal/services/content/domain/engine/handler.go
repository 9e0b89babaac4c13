package engine

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	apperrors "github.com/louisbranch/contentstream/internal/platform/errors"
	"github.com/louisbranch/contentstream/internal/platform/id"
	platformotel "github.com/louisbranch/contentstream/internal/platform/otel"
	"github.com/louisbranch/contentstream/internal/platform/requestctx"
	"github.com/louisbranch/contentstream/internal/services/content/domain/command"
	"github.com/louisbranch/contentstream/internal/services/content/domain/contentstream"
	"github.com/louisbranch/contentstream/internal/services/content/domain/event"
	"github.com/louisbranch/contentstream/internal/services/content/storage"
)

// CommitHook observes events right after they were appended. It must not
// block; the subscription engine's Notify is the usual hook.
type CommitHook func(ctx context.Context, events []event.Event)

// Handler validates, decides and commits commands.
type Handler struct {
	Registry *Registry
	Streams  *contentstream.Streams
	OnCommit CommitHook
	Now      func() time.Time
	NewID    func() (string, error)
}

// Result captures the outcome of a handled command.
type Result struct {
	Command  command.Command
	Decision command.Decision
	// Events are the stored events, with Version and Seq assigned.
	Events []event.Event
}

// Handle runs one command against its content stream. Rejections are
// returned as *command.RejectionError together with the decision and are
// non-retryable; append failures satisfy IsAppendFailure.
func (h Handler) Handle(ctx context.Context, cmd command.Command) (result Result, err error) {
	ctx, span := platformotel.Tracer().Start(ctx, "engine.Handle")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if h.Registry == nil {
		return Result{}, ErrRegistryRequired
	}
	if h.Streams == nil || h.Streams.Store == nil {
		return Result{}, ErrStreamsRequired
	}
	validated, err := h.Registry.Commands().ValidateForDecision(cmd)
	if err != nil {
		return Result{}, apperrors.Wrap(apperrors.CodeInvalidCommand, err.Error(), err)
	}
	cmd, err = h.stamp(ctx, validated)
	if err != nil {
		return Result{}, err
	}
	span.SetAttributes(
		attribute.String("command.type", string(cmd.Type)),
		attribute.String("content_stream.id", cmd.StreamID),
	)

	decider, ok := h.Registry.Decider(cmd.Type)
	if !ok {
		return Result{}, fmt.Errorf("%s: %w", cmd.Type, ErrDeciderRequired)
	}

	streamID := contentstream.ID(cmd.StreamID)
	stream, err := h.Streams.Load(ctx, streamID)
	if err != nil {
		return Result{}, err
	}
	if err := stream.RequireWritable(); err != nil {
		return Result{}, err
	}
	history, err := h.Streams.History(ctx, streamID)
	if err != nil {
		return Result{}, err
	}

	decision, err := decider.Decide(ctx, State{Stream: stream, History: history}, cmd, h.now)
	if err != nil {
		return Result{}, err
	}
	result = Result{Command: cmd, Decision: decision}
	if err := decision.Err(cmd.Type); err != nil {
		return result, wrapNonRetryable(err)
	}
	if len(decision.Events) == 0 {
		return result, nil
	}

	name := contentstream.StreamName(streamID)
	events := make([]event.Event, len(decision.Events))
	for i, evt := range decision.Events {
		evt.Stream = name
		if evt.Timestamp.IsZero() {
			evt.Timestamp = h.now().UTC()
		}
		if !evt.Metadata.HasCommand() {
			evt.Metadata = command.NewEvent(cmd, evt.Type, nil, evt.Timestamp).Metadata
		}
		events[i] = evt
	}

	stored, err := h.Streams.Store.AppendEvents(ctx, name, storage.ExpectVersion(stream.Version), events)
	if err != nil {
		return result, &appendError{err: err}
	}
	result.Events = stored
	span.SetAttributes(attribute.Int("events.appended", len(stored)))

	if h.OnCommit != nil {
		h.OnCommit(ctx, stored)
	}
	return result, nil
}

// stamp fills the command id and request metadata the caller left empty.
func (h Handler) stamp(ctx context.Context, cmd command.Command) (command.Command, error) {
	if cmd.ID == "" {
		newID := h.NewID
		if newID == nil {
			newID = id.NewID
		}
		value, err := newID()
		if err != nil {
			return command.Command{}, fmt.Errorf("generate command id: %w", err)
		}
		cmd.ID = value
	}
	if cmd.InitiatingUserID == "" {
		cmd.InitiatingUserID = requestctx.UserIDFromContext(ctx)
	}
	if cmd.CorrelationID == "" {
		cmd.CorrelationID = requestctx.CorrelationIDFromContext(ctx)
	}
	return cmd, nil
}

func (h Handler) now() time.Time {
	if h.Now == nil {
		return time.Now().UTC()
	}
	return h.Now()
}

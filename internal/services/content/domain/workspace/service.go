package workspace

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	apperrors "github.com/louisbranch/contentstream/internal/platform/errors"
	platformotel "github.com/louisbranch/contentstream/internal/platform/otel"
	"github.com/louisbranch/contentstream/internal/platform/requestctx"
	"github.com/louisbranch/contentstream/internal/services/content/domain/command"
	"github.com/louisbranch/contentstream/internal/services/content/domain/contentstream"
	"github.com/louisbranch/contentstream/internal/services/content/domain/engine"
	"github.com/louisbranch/contentstream/internal/services/content/domain/event"
	"github.com/louisbranch/contentstream/internal/services/content/storage"
)

var errServiceIncomplete = errors.New("workspace service requires an engine handler with content streams")

// Service runs workspace operations. Commands are replayed through Handler,
// the same handler used for live writes.
type Service struct {
	Handler     engine.Handler
	NewStreamID func() (contentstream.ID, error)
	Now         func() time.Time
}

// NewService returns a workspace service over handler.
func NewService(handler engine.Handler) *Service {
	return &Service{Handler: handler, NewStreamID: contentstream.NewID, Now: time.Now}
}

// RebaseOptions tune a rebase.
type RebaseOptions struct {
	// Force rebases even when the workspace is up to date.
	Force bool
}

// RebaseResult reports a rebase.
type RebaseResult struct {
	Workspace Workspace
	Failed    FailedCommands
	// Skipped is true when an up-to-date workspace was left untouched.
	Skipped bool
}

// PublishResult reports a publish.
type PublishResult struct {
	Workspace       Workspace
	PublishedEvents []event.Event
}

func (s *Service) streams() (*contentstream.Streams, error) {
	if s == nil || s.Handler.Streams == nil || s.Handler.Streams.Store == nil {
		return nil, errServiceIncomplete
	}
	return s.Handler.Streams, nil
}

func (s *Service) store() storage.EventStore { return s.Handler.Streams.Store }

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

func (s *Service) newStreamID() (contentstream.ID, error) {
	if s.NewStreamID == nil {
		return contentstream.NewID()
	}
	return s.NewStreamID()
}

func metadata(ctx context.Context) event.Metadata {
	return event.Metadata{
		InitiatingUserID: requestctx.UserIDFromContext(ctx),
		CorrelationID:    requestctx.CorrelationIDFromContext(ctx),
	}
}

// CreateRoot creates a workspace on a new root content stream.
func (s *Service) CreateRoot(ctx context.Context, name Name) (Workspace, error) {
	streams, err := s.streams()
	if err != nil {
		return Workspace{}, err
	}
	if err := s.requireAvailable(ctx, name); err != nil {
		return Workspace{}, err
	}
	streamID, err := s.newStreamID()
	if err != nil {
		return Workspace{}, err
	}
	if _, err := streams.Create(ctx, streamID, metadata(ctx)); err != nil {
		return Workspace{}, err
	}
	return s.appendCreated(ctx, event.WorkspaceCreated{Name: string(name), ContentStreamID: string(streamID)})
}

// Create creates a workspace on a fork of base's current stream.
func (s *Service) Create(ctx context.Context, name, base Name) (Workspace, error) {
	streams, err := s.streams()
	if err != nil {
		return Workspace{}, err
	}
	if err := s.requireAvailable(ctx, name); err != nil {
		return Workspace{}, err
	}
	baseWS, err := s.Get(ctx, base)
	if err != nil {
		return Workspace{}, err
	}
	streamID, err := s.newStreamID()
	if err != nil {
		return Workspace{}, err
	}
	if _, err := streams.Fork(ctx, streamID, baseWS.ContentStreamID, metadata(ctx)); err != nil {
		return Workspace{}, err
	}
	return s.appendCreated(ctx, event.WorkspaceCreated{
		Name:            string(name),
		BaseWorkspace:   string(base),
		ContentStreamID: string(streamID),
	})
}

func (s *Service) requireAvailable(ctx context.Context, name Name) error {
	if _, err := ParseName(string(name)); err != nil {
		return err
	}
	version, err := s.store().StreamVersion(ctx, StreamName(name))
	if err != nil {
		return err
	}
	if version > 0 {
		return alreadyExists(name)
	}
	return nil
}

func (s *Service) appendCreated(ctx context.Context, created event.WorkspaceCreated) (Workspace, error) {
	name := Name(created.Name)
	evt, err := event.New(StreamName(name), created, s.now())
	if err != nil {
		return Workspace{}, err
	}
	evt.Metadata = metadata(ctx)
	_, err = s.store().AppendEvents(ctx, StreamName(name), storage.ExpectNoStream(), []event.Event{evt})
	if errors.Is(err, storage.ErrConcurrencyConflict) {
		return Workspace{}, alreadyExists(name)
	}
	if err != nil {
		return Workspace{}, fmt.Errorf("append %s: %w", evt.Type, err)
	}
	return s.Get(ctx, name)
}

// Get loads a workspace and computes its status.
func (s *Service) Get(ctx context.Context, name Name) (Workspace, error) {
	streams, err := s.streams()
	if err != nil {
		return Workspace{}, err
	}
	events, err := s.store().ReadStream(ctx, StreamName(name), 0, 0)
	if err != nil {
		return Workspace{}, fmt.Errorf("read %s: %w", StreamName(name), err)
	}
	ws, ok, err := fold(name, events)
	if err != nil {
		return Workspace{}, err
	}
	if !ok {
		return Workspace{}, notFound(name)
	}

	current, err := streams.Load(ctx, ws.ContentStreamID)
	if err != nil {
		return Workspace{}, err
	}
	ws.BaseContentStreamID = current.SourceID
	ws.BaseVersion = current.SourceVersion
	ws.Status = StatusUpToDate
	if ws.IsRoot() {
		return ws, nil
	}

	base, err := s.current(ctx, ws.BaseWorkspace)
	if err != nil {
		return Workspace{}, err
	}
	baseTip, err := s.store().StreamVersion(ctx, contentstream.StreamName(base))
	if err != nil {
		return Workspace{}, err
	}
	if current.SourceID != base || current.SourceVersion != baseTip {
		ws.Status = StatusOutdated
	}
	return ws, nil
}

// current returns the current content stream of name without computing status.
func (s *Service) current(ctx context.Context, name Name) (contentstream.ID, error) {
	events, err := s.store().ReadStream(ctx, StreamName(name), 0, 0)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", StreamName(name), err)
	}
	ws, ok, err := fold(name, events)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", notFound(name)
	}
	return ws.ContentStreamID, nil
}

// List returns every workspace ordered by name.
func (s *Service) List(ctx context.Context) ([]Workspace, error) {
	if _, err := s.streams(); err != nil {
		return nil, err
	}
	infos, err := s.store().ListStreams(ctx, Category)
	if err != nil {
		return nil, err
	}
	out := make([]Workspace, 0, len(infos))
	for _, info := range infos {
		ws, err := s.Get(ctx, Name(info.Name[len(Category)+1:]))
		if err != nil {
			return nil, err
		}
		out = append(out, ws)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Rebase moves the workspace's own commands onto the base's current tip.
// Commands that no longer apply are returned as failures; any other error
// aborts the rebase and closes the new stream.
func (s *Service) Rebase(ctx context.Context, name Name, opts RebaseOptions) (result RebaseResult, err error) {
	ctx, span := platformotel.Tracer().Start(ctx, "workspace.Rebase")
	span.SetAttributes(attribute.String("workspace", string(name)), attribute.Bool("force", opts.Force))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetAttributes(attribute.Int("failed_commands", len(result.Failed)))
		}
		span.End()
	}()

	streams, err := s.streams()
	if err != nil {
		return RebaseResult{}, err
	}
	ws, err := s.Get(ctx, name)
	if err != nil {
		return RebaseResult{}, err
	}
	if ws.IsRoot() {
		return RebaseResult{}, hasNoBase(name)
	}
	if ws.Status == StatusUpToDate && !opts.Force {
		return RebaseResult{Workspace: ws, Skipped: true}, nil
	}

	base, err := s.current(ctx, ws.BaseWorkspace)
	if err != nil {
		return RebaseResult{}, err
	}
	newID, err := s.newStreamID()
	if err != nil {
		return RebaseResult{}, err
	}
	if _, err := streams.Fork(ctx, newID, base, metadata(ctx)); err != nil {
		return RebaseResult{}, err
	}

	commands, err := s.ownCommands(ctx, ws.ContentStreamID, newID)
	if err != nil {
		s.abandon(ctx, newID)
		return RebaseResult{}, err
	}
	var failed FailedCommands
	for _, replay := range commands {
		_, err := s.Handler.Handle(ctx, replay.cmd)
		if err == nil {
			continue
		}
		if !engine.IsCommandFailure(err) {
			s.abandon(ctx, newID)
			return RebaseResult{}, fmt.Errorf("rebase %s: replay seq %d: %w", name, replay.seq, err)
		}
		failed = append(failed, FailedCommand{SequenceNumber: replay.seq, Command: replay.cmd, Cause: err})
	}

	updated, err := s.repoint(ctx, ws, newID, event.WorkspaceRebased{
		Name:                    string(name),
		ContentStreamID:         string(newID),
		PreviousContentStreamID: string(ws.ContentStreamID),
		FailedCommands:          len(failed),
	})
	if err != nil {
		return RebaseResult{}, err
	}
	return RebaseResult{Workspace: updated, Failed: failed}, nil
}

// Discard drops the workspace's own changes by repointing it at a fresh fork
// of the base's current tip.
func (s *Service) Discard(ctx context.Context, name Name) (Workspace, error) {
	streams, err := s.streams()
	if err != nil {
		return Workspace{}, err
	}
	ws, err := s.Get(ctx, name)
	if err != nil {
		return Workspace{}, err
	}
	if ws.IsRoot() {
		return Workspace{}, hasNoBase(name)
	}
	base, err := s.current(ctx, ws.BaseWorkspace)
	if err != nil {
		return Workspace{}, err
	}
	newID, err := s.newStreamID()
	if err != nil {
		return Workspace{}, err
	}
	if _, err := streams.Fork(ctx, newID, base, metadata(ctx)); err != nil {
		return Workspace{}, err
	}
	return s.repoint(ctx, ws, newID, event.WorkspaceDiscarded{
		Name:                    string(name),
		ContentStreamID:         string(newID),
		PreviousContentStreamID: string(ws.ContentStreamID),
	})
}

// Publish appends the workspace's own events to its base's current stream
// and restarts the workspace on a fresh fork. Outdated workspaces must be
// rebased first.
func (s *Service) Publish(ctx context.Context, name Name) (PublishResult, error) {
	streams, err := s.streams()
	if err != nil {
		return PublishResult{}, err
	}
	ws, err := s.Get(ctx, name)
	if err != nil {
		return PublishResult{}, err
	}
	if ws.IsRoot() {
		return PublishResult{}, hasNoBase(name)
	}
	if ws.Status == StatusOutdated {
		return PublishResult{}, outdated(name)
	}

	own, err := s.ownEvents(ctx, ws.ContentStreamID)
	if err != nil {
		return PublishResult{}, err
	}
	var published []event.Event
	if len(own) > 0 {
		baseName := contentstream.StreamName(ws.BaseContentStreamID)
		copies := make([]event.Event, len(own))
		for i, evt := range own {
			evt.Stream = baseName
			evt.Version = 0
			evt.Seq = 0
			copies[i] = evt
		}
		published, err = s.store().AppendEvents(ctx, baseName, storage.ExpectVersion(ws.BaseVersion), copies)
		if errors.Is(err, storage.ErrConcurrencyConflict) {
			return PublishResult{}, outdated(name)
		}
		if err != nil {
			return PublishResult{}, fmt.Errorf("publish %s: %w", name, err)
		}
	}

	newID, err := s.newStreamID()
	if err != nil {
		return PublishResult{}, err
	}
	if _, err := streams.Fork(ctx, newID, ws.BaseContentStreamID, metadata(ctx)); err != nil {
		return PublishResult{}, err
	}
	updated, err := s.repoint(ctx, ws, newID, event.WorkspacePublished{
		Name:                    string(name),
		BaseWorkspace:           string(ws.BaseWorkspace),
		ContentStreamID:         string(newID),
		PreviousContentStreamID: string(ws.ContentStreamID),
		PublishedEvents:         len(published),
	})
	if err != nil {
		return PublishResult{}, err
	}
	return PublishResult{Workspace: updated, PublishedEvents: published}, nil
}

// repoint appends payload to the workspace stream at the version ws was
// loaded at, then closes the superseded content stream. When the append
// fails, for example because a concurrent rebase won, the new stream next is
// closed instead.
func (s *Service) repoint(ctx context.Context, ws Workspace, next contentstream.ID, payload event.Payload) (Workspace, error) {
	evt, err := event.New(StreamName(ws.Name), payload, s.now())
	if err != nil {
		s.abandon(ctx, next)
		return Workspace{}, err
	}
	evt.Metadata = metadata(ctx)
	if _, err := s.store().AppendEvents(ctx, StreamName(ws.Name), storage.ExpectVersion(ws.Version), []event.Event{evt}); err != nil {
		s.abandon(ctx, next)
		return Workspace{}, fmt.Errorf("repoint %s: %w", ws.Name, err)
	}
	if _, err := s.Handler.Streams.Close(ctx, ws.ContentStreamID, metadata(ctx)); err != nil && !errors.Is(err, contentstream.ErrStreamClosed) {
		return Workspace{}, err
	}
	return s.Get(ctx, ws.Name)
}

// abandon closes a stream forked for a repoint that did not happen. It is
// best effort: an unreferenced open stream is harmless besides the clutter.
func (s *Service) abandon(ctx context.Context, id contentstream.ID) {
	_, _ = s.Handler.Streams.Close(context.WithoutCancel(ctx), id, metadata(ctx))
}

// ownEvents returns the events a content stream added on top of its
// lifecycle start, excluding lifecycle events.
func (s *Service) ownEvents(ctx context.Context, streamID contentstream.ID) ([]event.Event, error) {
	events, err := s.store().ReadStream(ctx, contentstream.StreamName(streamID), 0, 0)
	if err != nil {
		return nil, err
	}
	out := make([]event.Event, 0, len(events))
	for _, evt := range events {
		if evt.Type.Category() == "content_stream" {
			continue
		}
		out = append(out, evt)
	}
	return out, nil
}

type replayCommand struct {
	seq int64
	cmd command.Command
}

// ownCommands reconstructs the commands behind a stream's own events in
// original order, addressed to target. A command that produced several
// events is replayed once.
func (s *Service) ownCommands(ctx context.Context, source, target contentstream.ID) ([]replayCommand, error) {
	own, err := s.ownEvents(ctx, source)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var out []replayCommand
	for _, evt := range own {
		cmd, ok := command.FromEvent(evt, string(target))
		if !ok || seen[cmd.ID] {
			continue
		}
		seen[cmd.ID] = true
		out = append(out, replayCommand{seq: evt.Seq, cmd: cmd})
	}
	return out, nil
}

func alreadyExists(name Name) error {
	return apperrors.WrapWithMetadata(apperrors.CodeWorkspaceAlreadyExists,
		fmt.Sprintf("workspace %s already exists", name),
		map[string]string{"workspace": string(name)}, ErrAlreadyExists)
}

func hasNoBase(name Name) error {
	return apperrors.WrapWithMetadata(apperrors.CodeWorkspaceHasNoBase,
		fmt.Sprintf("workspace %s has no base workspace", name),
		map[string]string{"workspace": string(name)}, ErrHasNoBase)
}

func outdated(name Name) error {
	return apperrors.WrapWithMetadata(apperrors.CodeWorkspaceOutdated,
		fmt.Sprintf("workspace %s is outdated; rebase first", name),
		map[string]string{"workspace": string(name)}, ErrOutdated)
}

// Package workspace manages named workspaces: pointers to a current content
// stream, usually forked from the current stream of a base workspace.
//
// Workspaces are event sourced as "workspace:<name>" streams in the same log
// as content. Repointing a workspace is an optimistic append to its stream,
// so two concurrent rebases cannot both win.
package workspace

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	apperrors "github.com/louisbranch/contentstream/internal/platform/errors"
	"github.com/louisbranch/contentstream/internal/services/content/domain/command"
	"github.com/louisbranch/contentstream/internal/services/content/domain/contentstream"
	"github.com/louisbranch/contentstream/internal/services/content/domain/event"
)

// Category is the stream category of workspaces.
const Category = "workspace"

var (
	// ErrInvalidName indicates a malformed workspace name.
	ErrInvalidName = apperrors.New(apperrors.CodeInvalidWorkspaceName, "invalid workspace name")
	// ErrNotFound indicates an unknown workspace.
	ErrNotFound = apperrors.New(apperrors.CodeWorkspaceNotFound, "workspace not found")
	// ErrAlreadyExists indicates a workspace name already in use.
	ErrAlreadyExists = apperrors.New(apperrors.CodeWorkspaceAlreadyExists, "workspace already exists")
	// ErrHasNoBase indicates a base-relative operation on a root workspace.
	ErrHasNoBase = apperrors.New(apperrors.CodeWorkspaceHasNoBase, "workspace has no base workspace")
	// ErrOutdated indicates a publish from a workspace behind its base.
	ErrOutdated = apperrors.New(apperrors.CodeWorkspaceOutdated, "workspace is outdated")
)

var namePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,35}$`)

// Name is a validated workspace name.
type Name string

// ParseName validates value as a workspace name.
func ParseName(value string) (Name, error) {
	if !namePattern.MatchString(value) {
		return "", apperrors.WrapWithMetadata(apperrors.CodeInvalidWorkspaceName,
			fmt.Sprintf("invalid workspace name %q", value),
			map[string]string{"workspace": value}, ErrInvalidName)
	}
	return Name(value), nil
}

func (n Name) String() string { return string(n) }

// StreamName returns the event log stream of the workspace.
func StreamName(name Name) string {
	return Category + ":" + string(name)
}

// Status describes a workspace relative to its base.
type Status string

const (
	// StatusUpToDate means the current stream forks the base's current stream
	// at its tip. Root workspaces are always up to date.
	StatusUpToDate Status = "up_to_date"
	// StatusOutdated means the base moved on since the current stream forked.
	StatusOutdated Status = "outdated"
)

// Workspace is the folded state of a workspace stream.
type Workspace struct {
	Name          Name
	BaseWorkspace Name
	// BaseContentStreamID is the stream the current stream was forked from.
	BaseContentStreamID contentstream.ID
	// BaseVersion is the version of BaseContentStreamID at the fork.
	BaseVersion     int64
	ContentStreamID contentstream.ID
	Status          Status
	// Version is the workspace stream version, used for compare-and-swap.
	Version int64
}

// IsRoot reports whether the workspace has no base.
func (w Workspace) IsRoot() bool { return w.BaseWorkspace == "" }

// fold replays a workspace stream. It returns false for an empty stream.
func fold(name Name, events []event.Event) (Workspace, bool, error) {
	ws := Workspace{Name: name}
	for _, evt := range events {
		payload, err := event.Decode(evt)
		if err != nil {
			return Workspace{}, false, err
		}
		ws.Version = evt.Version
		switch p := payload.(type) {
		case event.WorkspaceCreated:
			ws.BaseWorkspace = Name(p.BaseWorkspace)
			ws.ContentStreamID = contentstream.ID(p.ContentStreamID)
		case event.WorkspaceRebased:
			ws.ContentStreamID = contentstream.ID(p.ContentStreamID)
		case event.WorkspaceDiscarded:
			ws.ContentStreamID = contentstream.ID(p.ContentStreamID)
		case event.WorkspacePublished:
			ws.ContentStreamID = contentstream.ID(p.ContentStreamID)
		}
	}
	return ws, len(events) > 0, nil
}

// FailedCommand is a command that could not be re-applied during a rebase.
type FailedCommand struct {
	// SequenceNumber is the global sequence of the command's first event in
	// the superseded stream.
	SequenceNumber int64
	Command        command.Command
	Cause          error
}

// FailedCommands lists rebase failures in original order.
type FailedCommands []FailedCommand

// IsEmpty reports whether every command was re-applied.
func (f FailedCommands) IsEmpty() bool { return len(f) == 0 }

// SequenceNumbers returns the sequence number of each failure.
func (f FailedCommands) SequenceNumbers() []int64 {
	out := make([]int64, len(f))
	for i, failed := range f {
		out[i] = failed.SequenceNumber
	}
	return out
}

// Err joins the failure causes, or returns nil when there are none.
func (f FailedCommands) Err() error {
	if len(f) == 0 {
		return nil
	}
	errs := make([]error, len(f))
	for i, failed := range f {
		errs[i] = fmt.Errorf("command %s (%s) at seq %d: %w", failed.Command.ID, failed.Command.Type, failed.SequenceNumber, failed.Cause)
	}
	return errors.Join(errs...)
}

func (f FailedCommands) String() string {
	parts := make([]string, len(f))
	for i, failed := range f {
		parts[i] = fmt.Sprintf("%d:%s", failed.SequenceNumber, failed.Command.Type)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

func notFound(name Name) error {
	return apperrors.WrapWithMetadata(apperrors.CodeWorkspaceNotFound,
		fmt.Sprintf("workspace %s not found", name),
		map[string]string{"workspace": string(name)}, ErrNotFound)
}

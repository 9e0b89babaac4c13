package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/louisbranch/contentstream/internal/services/content/domain/command"
	"github.com/louisbranch/contentstream/internal/services/content/domain/contentstream"
	"github.com/louisbranch/contentstream/internal/services/content/domain/event"
)

// State is what a decider sees of the target stream.
type State struct {
	Stream contentstream.State
	// History holds the events visible in the stream, source prefix first.
	History []event.Event
}

// Decider returns a decision for a command against the stream state.
type Decider interface {
	Decide(ctx context.Context, state State, cmd command.Command, now func() time.Time) (command.Decision, error)
}

// DeciderFunc adapts a function to Decider.
type DeciderFunc func(ctx context.Context, state State, cmd command.Command, now func() time.Time) (command.Decision, error)

// Decide calls f.
func (f DeciderFunc) Decide(ctx context.Context, state State, cmd command.Command, now func() time.Time) (command.Decision, error) {
	return f(ctx, state, cmd, now)
}

// Registry routes command types to their definitions and deciders.
type Registry struct {
	commands *command.Registry
	deciders map[command.Type]Decider
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		commands: command.NewRegistry(),
		deciders: make(map[command.Type]Decider),
	}
}

// Register adds a command definition with its decider.
func (r *Registry) Register(def command.Definition, decider Decider) error {
	if r == nil {
		return ErrRegistryRequired
	}
	if decider == nil {
		return fmt.Errorf("%s: %w", def.Type, ErrDeciderRequired)
	}
	if err := r.commands.Register(def); err != nil {
		return err
	}
	def, _ = r.commands.Definition(def.Type)
	r.deciders[def.Type] = decider
	return nil
}

// Commands returns the command definitions registry.
func (r *Registry) Commands() *command.Registry {
	if r == nil {
		return nil
	}
	return r.commands
}

// Decider returns the decider routed for cmdType.
func (r *Registry) Decider(cmdType command.Type) (Decider, bool) {
	if r == nil {
		return nil, false
	}
	decider, ok := r.deciders[cmdType]
	return decider, ok
}

package subtreetag

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/contentstream/internal/services/content/domain/command"
	"github.com/louisbranch/contentstream/internal/services/content/domain/dimensionspace"
	"github.com/louisbranch/contentstream/internal/services/content/domain/engine"
	"github.com/louisbranch/contentstream/internal/services/content/domain/event"
)

// Command types.
const (
	CommandTag   command.Type = "subtree.tag"
	CommandUntag command.Type = "subtree.untag"
)

// Rejection codes.
const (
	RejectionAlreadyTagged = "SUBTREE_TAG_ALREADY_GRANTED"
	RejectionNotTagged     = "SUBTREE_TAG_NOT_GRANTED"
)

var (
	errAggregateRequired = errors.New("aggregate_id is required")
	errPointsRequired    = errors.New("affected_points must not be empty")
)

// Payload is the payload of both tag commands.
type Payload struct {
	AggregateID    string                  `json:"aggregate_id"`
	AffectedPoints dimensionspace.PointSet `json:"affected_points"`
	Tag            string                  `json:"tag"`
}

// Validate checks the payload shape.
func (p Payload) Validate() error {
	if strings.TrimSpace(p.AggregateID) == "" {
		return errAggregateRequired
	}
	if _, err := ParseTag(p.Tag); err != nil {
		return err
	}
	if p.AffectedPoints.IsEmpty() {
		return errPointsRequired
	}
	return nil
}

func decodePayload(raw []byte) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Payload{}, fmt.Errorf("decode subtree tag payload: %w", err)
	}
	return p, p.Validate()
}

func validatePayload(raw json.RawMessage) error {
	_, err := decodePayload(raw)
	return err
}

// Register adds the tag commands to registry. A nil resolver skips the
// allowed-subspace check.
func Register(registry *engine.Registry, resolver *dimensionspace.Resolver) error {
	decider := Decider{Resolver: resolver}
	if err := registry.Register(command.Definition{Type: CommandTag, ValidatePayload: validatePayload}, engine.DeciderFunc(decider.decideTag)); err != nil {
		return err
	}
	return registry.Register(command.Definition{Type: CommandUntag, ValidatePayload: validatePayload}, engine.DeciderFunc(decider.decideUntag))
}

// Decider decides tag commands against the grants visible in a stream.
type Decider struct {
	Resolver *dimensionspace.Resolver
}

func (d Decider) prepare(state engine.State, cmd command.Command) (Payload, Grants, error) {
	p, err := decodePayload(cmd.PayloadJSON)
	if err != nil {
		return Payload{}, Grants{}, err
	}
	if d.Resolver != nil {
		for _, point := range p.AffectedPoints.Points() {
			if err := d.Resolver.RequireAllowed(point); err != nil {
				return Payload{}, Grants{}, err
			}
		}
	}
	grants, err := FoldGrants(state.History)
	if err != nil {
		return Payload{}, Grants{}, err
	}
	return p, grants, nil
}

// decideTag grants the tag at the affected points that do not hold it yet.
func (d Decider) decideTag(_ context.Context, state engine.State, cmd command.Command, now func() time.Time) (command.Decision, error) {
	p, grants, err := d.prepare(state, cmd)
	if err != nil {
		return command.Decision{}, err
	}
	tag := Tag(p.Tag)
	var fresh []dimensionspace.Point
	for _, point := range p.AffectedPoints.Points() {
		if !grants.Active(p.AggregateID, tag, point) {
			fresh = append(fresh, point)
		}
	}
	if len(fresh) == 0 {
		return command.Reject(command.Rejection{
			Code:    RejectionAlreadyTagged,
			Message: fmt.Sprintf("%s is already tagged %q at every affected point", p.AggregateID, tag),
		}), nil
	}
	return accept(cmd, event.SubtreeTagged{
		AggregateID:    p.AggregateID,
		Tag:            p.Tag,
		AffectedPoints: dimensionspace.NewPointSet(fresh...),
	}, now)
}

// decideUntag revokes the aggregate's own grants at the affected points.
func (d Decider) decideUntag(_ context.Context, state engine.State, cmd command.Command, now func() time.Time) (command.Decision, error) {
	p, grants, err := d.prepare(state, cmd)
	if err != nil {
		return command.Decision{}, err
	}
	tag := Tag(p.Tag)
	var granted []dimensionspace.Point
	for _, point := range p.AffectedPoints.Points() {
		if grants.Active(p.AggregateID, tag, point) {
			granted = append(granted, point)
		}
	}
	if len(granted) == 0 {
		return command.Reject(command.Rejection{
			Code:    RejectionNotTagged,
			Message: fmt.Sprintf("%s has no grant of %q at the affected points", p.AggregateID, tag),
		}), nil
	}
	return accept(cmd, event.SubtreeUntagged{
		AggregateID:    p.AggregateID,
		Tag:            p.Tag,
		AffectedPoints: dimensionspace.NewPointSet(granted...),
	}, now)
}

func accept(cmd command.Command, payload event.Payload, now func() time.Time) (command.Decision, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return command.Decision{}, fmt.Errorf("encode %s payload: %w", payload.EventType(), err)
	}
	return command.Accept(command.NewEvent(cmd, payload.EventType(), data, now())), nil
}

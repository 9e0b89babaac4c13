// Package tagindex projects subtree tag events into the grant read model and
// answers tag queries against it.
//
// Grants are stored per (content stream, aggregate, tag, point). Forking a
// stream copies the source's grants active at the fork version. Inheritance to
// descendants is not stored: InheritedTagsAt unions the grants of the
// aggregate and the ancestors supplied by the caller.
package tagindex

import (
	"context"
	"fmt"
	"strings"

	"github.com/louisbranch/contentstream/internal/services/content/domain/contentstream"
	"github.com/louisbranch/contentstream/internal/services/content/domain/dimensionspace"
	"github.com/louisbranch/contentstream/internal/services/content/domain/event"
	"github.com/louisbranch/contentstream/internal/services/content/domain/subtreetag"
	"github.com/louisbranch/contentstream/internal/services/content/storage"
)

// Name is the subscription id and checkpoint key of the projection.
const Name = "subtree_tags"

// Projection maintains the subtree tag read model.
type Projection struct {
	store storage.TagGrantStore
}

// New returns a projection writing to store.
func New(store storage.TagGrantStore) *Projection {
	return &Projection{store: store}
}

// ApplyEvent writes the grant changes of evt together with the checkpoint.
// Events of other categories only advance the checkpoint.
func (p *Projection) ApplyEvent(ctx context.Context, evt event.Event) error {
	changes, err := Changes(evt)
	if err != nil {
		return err
	}
	if _, err := p.store.ApplyTagGrantChanges(ctx, Name, evt.Seq, changes); err != nil {
		return fmt.Errorf("apply tag grants for event %d: %w", evt.Seq, err)
	}
	return nil
}

// CurrentCheckpoint returns the last applied global sequence.
func (p *Projection) CurrentCheckpoint(ctx context.Context) (int64, error) {
	return p.store.ProjectionCheckpoint(ctx, Name)
}

// Reset drops the read model so it can be rebuilt from the start of the log.
func (p *Projection) Reset(ctx context.Context) error {
	return p.store.ResetTagGrants(ctx, Name)
}

// Changes maps one event to its grant changes.
func Changes(evt event.Event) (storage.TagGrantChanges, error) {
	streamID, ok := contentstream.IDFromStream(evt.Stream)
	if !ok {
		return storage.TagGrantChanges{}, nil
	}
	switch evt.Type {
	case event.TypeSubtreeTagged, event.TypeSubtreeUntagged, event.TypeContentStreamForked:
	default:
		return storage.TagGrantChanges{}, nil
	}
	payload, err := event.Decode(evt)
	if err != nil {
		return storage.TagGrantChanges{}, err
	}

	var changes storage.TagGrantChanges
	switch p := payload.(type) {
	case event.SubtreeTagged:
		for _, point := range p.AffectedPoints.Points() {
			changes.Grants = append(changes.Grants, storage.TagGrant{
				ContentStreamID: streamID.String(),
				AggregateID:     p.AggregateID,
				Tag:             p.Tag,
				PointHash:       point.Hash(),
				Point:           point.String(),
				GrantedVersion:  evt.Version,
			})
		}
	case event.SubtreeUntagged:
		for _, point := range p.AffectedPoints.Points() {
			changes.Revocations = append(changes.Revocations, storage.TagGrantRevocation{
				ContentStreamID: streamID.String(),
				AggregateID:     p.AggregateID,
				Tag:             p.Tag,
				PointHash:       point.Hash(),
				Version:         evt.Version,
			})
		}
	case event.ContentStreamForked:
		changes.Fork = &storage.TagGrantFork{
			ContentStreamID: streamID.String(),
			SourceID:        strings.TrimSpace(p.SourceID),
			SourceVersion:   p.SourceVersion,
		}
	}
	return changes, nil
}

// TagsAt returns the tags aggregate holds directly at point in stream.
func (p *Projection) TagsAt(ctx context.Context, streamID contentstream.ID, aggregateID string, point dimensionspace.Point) (subtreetag.Tags, error) {
	return p.InheritedTagsAt(ctx, streamID, aggregateID, nil, point)
}

// InheritedTagsAt unions the active grants at point of aggregate and its
// ancestors. Each grant stands on its own: revoking an ancestor's grant never
// clears a descendant's independent grant of the same tag.
func (p *Projection) InheritedTagsAt(ctx context.Context, streamID contentstream.ID, aggregateID string, ancestors []string, point dimensionspace.Point) (subtreetag.Tags, error) {
	rows, err := p.store.ListTagGrants(ctx, storage.TagGrantQuery{
		ContentStreamID: streamID.String(),
		AggregateIDs:    append([]string{aggregateID}, ancestors...),
		PointHash:       point.Hash(),
		ActiveOnly:      true,
	})
	if err != nil {
		return subtreetag.Tags{}, fmt.Errorf("list tag grants: %w", err)
	}
	var grants subtreetag.Grants
	for _, row := range rows {
		tag, err := subtreetag.ParseTag(row.Tag)
		if err != nil {
			return subtreetag.Tags{}, err
		}
		grants.Grant(row.AggregateID, tag, row.PointHash)
	}
	return grants.InheritedAt(aggregateID, ancestors, point), nil
}

// Grant is one active grant as reported to callers.
type Grant struct {
	AggregateID string
	Tag         subtreetag.Tag
	Point       dimensionspace.Point
}

// ActiveGrants lists the active grants of stream, optionally narrowed to one
// aggregate.
func (p *Projection) ActiveGrants(ctx context.Context, streamID contentstream.ID, aggregateID string) ([]Grant, error) {
	query := storage.TagGrantQuery{ContentStreamID: streamID.String(), ActiveOnly: true}
	if aggregateID = strings.TrimSpace(aggregateID); aggregateID != "" {
		query.AggregateIDs = []string{aggregateID}
	}
	rows, err := p.store.ListTagGrants(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list tag grants: %w", err)
	}
	out := make([]Grant, 0, len(rows))
	for _, row := range rows {
		point, err := dimensionspace.ParseCanonical(row.Point)
		if err != nil {
			return nil, fmt.Errorf("decode grant point: %w", err)
		}
		out = append(out, Grant{AggregateID: row.AggregateID, Tag: subtreetag.Tag(row.Tag), Point: point})
	}
	return out, nil
}

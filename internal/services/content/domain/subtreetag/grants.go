package subtreetag

import (
	"github.com/louisbranch/contentstream/internal/services/content/domain/dimensionspace"
	"github.com/louisbranch/contentstream/internal/services/content/domain/event"
)

type grantKey struct {
	aggregate string
	tag       Tag
	point     string
}

// Grants is the set of active (aggregate, tag, point) grants folded from a
// stream's visible history.
type Grants struct {
	active map[grantKey]bool
}

// FoldGrants folds tag events in history order. Other events are ignored.
func FoldGrants(history []event.Event) (Grants, error) {
	g := Grants{active: make(map[grantKey]bool)}
	for _, evt := range history {
		if evt.Type != event.TypeSubtreeTagged && evt.Type != event.TypeSubtreeUntagged {
			continue
		}
		if err := g.Apply(evt); err != nil {
			return Grants{}, err
		}
	}
	return g, nil
}

// Apply folds one tag event into the grants.
func (g *Grants) Apply(evt event.Event) error {
	payload, err := event.Decode(evt)
	if err != nil {
		return err
	}
	switch p := payload.(type) {
	case event.SubtreeTagged:
		for _, hash := range p.AffectedPoints.Hashes() {
			g.Grant(p.AggregateID, Tag(p.Tag), hash)
		}
	case event.SubtreeUntagged:
		for _, hash := range p.AffectedPoints.Hashes() {
			delete(g.active, grantKey{aggregate: p.AggregateID, tag: Tag(p.Tag), point: hash})
		}
	}
	return nil
}

// Grant records an active grant of tag to aggregate at the point with the
// given hash.
func (g *Grants) Grant(aggregate string, tag Tag, pointHash string) {
	if g.active == nil {
		g.active = make(map[grantKey]bool)
	}
	g.active[grantKey{aggregate: aggregate, tag: tag, point: pointHash}] = true
}

// Active reports whether aggregate holds its own grant of tag at point.
func (g Grants) Active(aggregate string, tag Tag, point dimensionspace.Point) bool {
	return g.active[grantKey{aggregate: aggregate, tag: tag, point: point.Hash()}]
}

// TagsAt returns the tags aggregate was granted directly at point.
func (g Grants) TagsAt(aggregate string, point dimensionspace.Point) Tags {
	var tags []Tag
	hash := point.Hash()
	for key := range g.active {
		if key.aggregate == aggregate && key.point == hash {
			tags = append(tags, key.tag)
		}
	}
	return NewTags(tags...)
}

// InheritedAt unions the grants at point of aggregate and its ancestors.
// Grants are independent: an ancestor's revocation never clears a
// descendant's own grant.
func (g Grants) InheritedAt(aggregate string, ancestors []string, point dimensionspace.Point) Tags {
	tags := g.TagsAt(aggregate, point)
	for _, ancestor := range ancestors {
		tags = tags.Union(g.TagsAt(ancestor, point))
	}
	return tags
}

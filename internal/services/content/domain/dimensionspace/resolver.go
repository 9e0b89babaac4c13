package dimensionspace

import (
	"errors"
	"fmt"
	"sort"

	apperrors "github.com/louisbranch/contentstream/internal/platform/errors"
	"github.com/louisbranch/contentstream/internal/services/content/domain/dimension"
)

// FallbackMatch is the candidate chosen for a requested point.
type FallbackMatch struct {
	Point  Point
	Weight Weight
}

// Depth returns the total fallback depth of the match.
func (m FallbackMatch) Depth() int { return m.Weight.Sum() }

// Resolver answers generalization questions over the allowed dimension
// subspace of a catalog.
type Resolver struct {
	catalog *dimension.Catalog
	table   *PointTable
	allowed PointSet
}

// NewResolver computes the allowed subspace of catalog: every combination of
// declared values whose constraints permit each other. Points are interned in
// table; a nil table gets a private one.
func NewResolver(catalog *dimension.Catalog, table *PointTable) (*Resolver, error) {
	if catalog == nil {
		return nil, errors.New("dimension catalog is required")
	}
	if table == nil {
		table = NewPointTable()
	}
	r := &Resolver{catalog: catalog, table: table}

	var points []Point
	dims := catalog.Dimensions()
	coords := make(map[string]string, len(dims))
	var walk func(i int) error
	walk = func(i int) error {
		if i == len(dims) {
			if !catalog.AllowsCombination(coords) {
				return nil
			}
			p, err := table.InternCoordinates(coords)
			if err != nil {
				return err
			}
			points = append(points, p)
			return nil
		}
		for _, v := range dims[i].Values() {
			coords[dims[i].ID()] = v
			if err := walk(i + 1); err != nil {
				return err
			}
		}
		delete(coords, dims[i].ID())
		return nil
	}
	if err := walk(0); err != nil {
		return nil, err
	}
	r.allowed = NewPointSet(points...)
	return r, nil
}

// Catalog returns the resolver's dimension catalog.
func (r *Resolver) Catalog() *dimension.Catalog { return r.catalog }

// AllowedPoints returns the allowed dimension subspace.
func (r *Resolver) AllowedPoints() PointSet { return r.allowed }

// IsAllowed reports whether p lies in the allowed subspace.
func (r *Resolver) IsAllowed(p Point) bool { return r.allowed.Contains(p) }

// Point validates coordinates against the allowed subspace and returns the
// interned point.
func (r *Resolver) Point(coordinates map[string]string) (Point, error) {
	if err := r.catalog.Validate(coordinates); err != nil {
		return Point{}, err
	}
	p, err := r.table.InternCoordinates(coordinates)
	if err != nil {
		return Point{}, err
	}
	if err := r.RequireAllowed(p); err != nil {
		return Point{}, err
	}
	return p, nil
}

// Weight returns the per-dimension fallback depth from specialization to
// generalization. ErrNotAGeneralization is returned when some coordinate of
// generalization is not on the matching coordinate's fallback chain.
func (r *Resolver) Weight(specialization, generalization Point) (Weight, error) {
	if err := r.RequireAllowed(specialization); err != nil {
		return Weight{}, err
	}
	if err := r.RequireAllowed(generalization); err != nil {
		return Weight{}, err
	}
	depths := make(map[string]int, r.catalog.Len())
	for _, d := range r.catalog.Dimensions() {
		sv, _ := specialization.Coordinate(d.ID())
		gv, _ := generalization.Coordinate(d.ID())
		depth, err := d.CalculateFallbackDepth(sv, gv)
		if err != nil {
			if errors.Is(err, dimension.ErrInvalidFallback) {
				return Weight{}, apperrors.WrapWithMetadata(apperrors.CodeNotAGeneralization,
					fmt.Sprintf("%s is not a generalization of %s", generalization, specialization),
					map[string]string{"dimension": d.ID()}, err)
			}
			return Weight{}, err
		}
		depths[d.ID()] = depth
	}
	return NewWeight(depths), nil
}

// Generalizations returns every allowed point that p falls back to,
// including p itself, most preferred first.
func (r *Resolver) Generalizations(p Point) ([]Point, error) {
	if err := r.RequireAllowed(p); err != nil {
		return nil, err
	}
	var matches []FallbackMatch
	for _, candidate := range r.allowed.Points() {
		w, err := r.Weight(p, candidate)
		if errors.Is(err, ErrNotAGeneralization) {
			continue
		}
		if err != nil {
			return nil, err
		}
		matches = append(matches, FallbackMatch{Point: candidate, Weight: w})
	}
	r.sortMatches(matches)
	out := make([]Point, len(matches))
	for i, m := range matches {
		out[i] = m.Point
	}
	return out, nil
}

// Specializations returns every allowed point that falls back to p,
// including p itself, closest first.
func (r *Resolver) Specializations(p Point) ([]Point, error) {
	if err := r.RequireAllowed(p); err != nil {
		return nil, err
	}
	var matches []FallbackMatch
	for _, candidate := range r.allowed.Points() {
		w, err := r.Weight(candidate, p)
		if errors.Is(err, ErrNotAGeneralization) {
			continue
		}
		if err != nil {
			return nil, err
		}
		matches = append(matches, FallbackMatch{Point: candidate, Weight: w})
	}
	r.sortMatches(matches)
	out := make([]Point, len(matches))
	for i, m := range matches {
		out[i] = m.Point
	}
	return out, nil
}

// ResolveFallback picks, among candidates that generalize requested, the one
// with minimal total fallback depth. Ties go to the candidate whose values
// come first in catalog priority, comparing dimensions in declaration order.
func (r *Resolver) ResolveFallback(requested Point, candidates PointSet) (FallbackMatch, error) {
	if err := r.RequireAllowed(requested); err != nil {
		return FallbackMatch{}, err
	}
	var matches []FallbackMatch
	for _, candidate := range candidates.Points() {
		if !r.IsAllowed(candidate) {
			continue
		}
		w, err := r.Weight(requested, candidate)
		if errors.Is(err, ErrNotAGeneralization) {
			continue
		}
		if err != nil {
			return FallbackMatch{}, err
		}
		matches = append(matches, FallbackMatch{Point: r.table.Intern(candidate), Weight: w})
	}
	if len(matches) == 0 {
		return FallbackMatch{}, apperrors.WrapWithMetadata(apperrors.CodeNoFallbackMatch,
			fmt.Sprintf("no candidate generalizes %s", requested),
			map[string]string{"point": requested.String()}, ErrNoFallbackMatch)
	}
	r.sortMatches(matches)
	return matches[0], nil
}

func (r *Resolver) sortMatches(matches []FallbackMatch) {
	sort.SliceStable(matches, func(i, j int) bool {
		si, sj := matches[i].Weight.Sum(), matches[j].Weight.Sum()
		if si != sj {
			return si < sj
		}
		return r.comparePriority(matches[i].Point, matches[j].Point) < 0
	})
}

func (r *Resolver) comparePriority(a, b Point) int {
	for _, d := range r.catalog.Dimensions() {
		av, _ := a.Coordinate(d.ID())
		bv, _ := b.Coordinate(d.ID())
		ap, _ := d.Priority(av)
		bp, _ := d.Priority(bv)
		if ap != bp {
			return ap - bp
		}
	}
	return 0
}

// RequireAllowed returns ErrPointNotInAllowedSubspace for points outside the
// allowed subspace.
func (r *Resolver) RequireAllowed(p Point) error {
	if r.allowed.Contains(p) {
		return nil
	}
	return apperrors.WrapWithMetadata(apperrors.CodePointNotInAllowedSubspace,
		fmt.Sprintf("point %s is not in the allowed subspace", p),
		map[string]string{"point": p.String()}, ErrPointNotInAllowedSubspace)
}

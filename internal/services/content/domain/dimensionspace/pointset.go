package dimensionspace

import (
	"encoding/json"
	"fmt"
	"sort"
)

// PointSet is an immutable, deduplicated set of points keyed by point hash.
type PointSet struct {
	points map[string]Point
}

// NewPointSet builds a set from points; duplicates collapse.
func NewPointSet(points ...Point) PointSet {
	set := PointSet{points: make(map[string]Point, len(points))}
	for _, p := range points {
		set.points[p.Hash()] = p
	}
	return set
}

// FromArray builds a set from the plain-map wire form.
func FromArray(raw []map[string]string) (PointSet, error) {
	points := make([]Point, 0, len(raw))
	for _, coords := range raw {
		p, err := NewPoint(coords)
		if err != nil {
			return PointSet{}, err
		}
		points = append(points, p)
	}
	return NewPointSet(points...), nil
}

// ToArray returns the plain-map wire form ordered by point hash.
func (s PointSet) ToArray() []map[string]string {
	points := s.Points()
	out := make([]map[string]string, len(points))
	for i, p := range points {
		out[i] = p.Coordinates()
	}
	return out
}

// Points returns the members ordered by point hash.
func (s PointSet) Points() []Point {
	hashes := s.Hashes()
	out := make([]Point, len(hashes))
	for i, h := range hashes {
		out[i] = s.points[h]
	}
	return out
}

// Hashes returns the member hashes in ascending order.
func (s PointSet) Hashes() []string {
	hashes := make([]string, 0, len(s.points))
	for h := range s.points {
		hashes = append(hashes, h)
	}
	sort.Strings(hashes)
	return hashes
}

// Len returns the number of members.
func (s PointSet) Len() int { return len(s.points) }

// IsEmpty reports whether the set has no members.
func (s PointSet) IsEmpty() bool { return len(s.points) == 0 }

// Contains reports whether p is a member.
func (s PointSet) Contains(p Point) bool {
	_, ok := s.points[p.Hash()]
	return ok
}

// ContainsHash reports whether a member has the given hash.
func (s PointSet) ContainsHash(hash string) bool {
	_, ok := s.points[hash]
	return ok
}

// Union returns the members of s or other.
func (s PointSet) Union(other PointSet) PointSet {
	out := PointSet{points: make(map[string]Point, len(s.points)+len(other.points))}
	for h, p := range s.points {
		out.points[h] = p
	}
	for h, p := range other.points {
		out.points[h] = p
	}
	return out
}

// Intersect returns the members of both s and other.
func (s PointSet) Intersect(other PointSet) PointSet {
	out := PointSet{points: make(map[string]Point)}
	for h, p := range s.points {
		if _, ok := other.points[h]; ok {
			out.points[h] = p
		}
	}
	return out
}

// Difference returns the members of s that are not in other.
func (s PointSet) Difference(other PointSet) PointSet {
	out := PointSet{points: make(map[string]Point)}
	for h, p := range s.points {
		if _, ok := other.points[h]; !ok {
			out.points[h] = p
		}
	}
	return out
}

// Equal reports whether both sets have the same members.
func (s PointSet) Equal(other PointSet) bool {
	if len(s.points) != len(other.points) {
		return false
	}
	for h := range s.points {
		if _, ok := other.points[h]; !ok {
			return false
		}
	}
	return true
}

// MarshalJSON encodes the set as an array of plain objects.
func (s PointSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.ToArray())
}

// UnmarshalJSON decodes an array of plain objects.
func (s *PointSet) UnmarshalJSON(data []byte) error {
	var raw []map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode point set: %w", err)
	}
	parsed, err := FromArray(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

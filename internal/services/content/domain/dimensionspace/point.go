package dimensionspace

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	apperrors "github.com/louisbranch/contentstream/internal/platform/errors"
)

const (
	pairSeparator  = "|"
	valueSeparator = "="
)

// Point is an immutable mapping of dimension identifiers to values.
type Point struct {
	coordinates map[string]string
	canonical   string
	hash        string
}

// NewPoint copies coordinates into a point. Identifiers and values must be
// non-empty and free of the canonical separators.
func NewPoint(coordinates map[string]string) (Point, error) {
	copied := make(map[string]string, len(coordinates))
	for id, value := range coordinates {
		if id == "" || value == "" || strings.ContainsAny(id, pairSeparator+valueSeparator) || strings.Contains(value, pairSeparator) {
			return Point{}, apperrors.WrapWithMetadata(apperrors.CodePointInvalid,
				fmt.Sprintf("invalid coordinate %q=%q", id, value),
				map[string]string{"dimension": id, "value": value}, ErrInvalidPoint)
		}
		copied[id] = value
	}
	canonical := canonicalize(copied)
	return Point{coordinates: copied, canonical: canonical, hash: hashOf(canonical)}, nil
}

// MustPoint is NewPoint for literals known to be valid.
func MustPoint(coordinates map[string]string) Point {
	p, err := NewPoint(coordinates)
	if err != nil {
		panic(err)
	}
	return p
}

func canonicalize(coordinates map[string]string) string {
	ids := make([]string, 0, len(coordinates))
	for id := range coordinates {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	var b strings.Builder
	for i, id := range ids {
		if i > 0 {
			b.WriteString(pairSeparator)
		}
		b.WriteString(id)
		b.WriteString(valueSeparator)
		b.WriteString(coordinates[id])
	}
	return b.String()
}

func hashOf(canonical string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(canonical))
}

// Hash returns the 16 hex character canonical hash.
func (p Point) Hash() string {
	if p.hash == "" {
		return hashOf(p.canonical)
	}
	return p.hash
}

// String returns the canonical serialization.
func (p Point) String() string { return p.canonical }

// Len returns the number of coordinates.
func (p Point) Len() int { return len(p.coordinates) }

// Coordinate returns the value chosen for a dimension.
func (p Point) Coordinate(id string) (string, bool) {
	v, ok := p.coordinates[id]
	return v, ok
}

// Coordinates returns a copy of the coordinate map.
func (p Point) Coordinates() map[string]string {
	out := make(map[string]string, len(p.coordinates))
	for id, v := range p.coordinates {
		out[id] = v
	}
	return out
}

// Identifiers returns the dimension identifiers in ascending order.
func (p Point) Identifiers() []string {
	ids := make([]string, 0, len(p.coordinates))
	for id := range p.coordinates {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Equal reports whether both points hold the same coordinates.
func (p Point) Equal(other Point) bool {
	return p.canonical == other.canonical
}

// Vary returns a copy of p with one coordinate replaced.
func (p Point) Vary(id, value string) (Point, error) {
	coords := p.Coordinates()
	coords[id] = value
	return NewPoint(coords)
}

// MarshalJSON encodes the point as a plain object.
func (p Point) MarshalJSON() ([]byte, error) {
	if p.coordinates == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(p.coordinates)
}

// UnmarshalJSON decodes a plain object into the point.
func (p *Point) UnmarshalJSON(data []byte) error {
	var coords map[string]string
	if err := json.Unmarshal(data, &coords); err != nil {
		return fmt.Errorf("decode point: %w", err)
	}
	parsed, err := NewPoint(coords)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// ParseCanonical parses the canonical "id=value|id=value" form produced by
// String. The empty string is the empty point.
func ParseCanonical(s string) (Point, error) {
	coords := make(map[string]string)
	if s == "" {
		return NewPoint(coords)
	}
	for _, pair := range strings.Split(s, pairSeparator) {
		id, value, ok := strings.Cut(pair, valueSeparator)
		if !ok {
			return Point{}, apperrors.Wrap(apperrors.CodePointInvalid, "invalid canonical pair "+strconv.Quote(pair), ErrInvalidPoint)
		}
		coords[id] = value
	}
	return NewPoint(coords)
}

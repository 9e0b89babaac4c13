package dimension

import (
	"fmt"
	"sort"
	"strings"

	apperrors "github.com/louisbranch/contentstream/internal/platform/errors"
)

// Catalog is the ordered set of configured dimensions. Declaration order is
// the dimension priority used by fallback tie-breaking.
type Catalog struct {
	dimensions []*Dimension
	index      map[string]int
}

// NewCatalog builds a catalog from dimensions in priority order.
func NewCatalog(dimensions ...*Dimension) (*Catalog, error) {
	c := &Catalog{index: make(map[string]int, len(dimensions))}
	for _, d := range dimensions {
		if d == nil {
			return nil, fmt.Errorf("nil dimension: %w", ErrInvalidConfig)
		}
		if _, exists := c.index[d.ID()]; exists {
			return nil, fmt.Errorf("dimension %q declared twice: %w", d.ID(), ErrInvalidConfig)
		}
		c.index[d.ID()] = len(c.dimensions)
		c.dimensions = append(c.dimensions, d)
	}
	return c, nil
}

// Dimension returns the dimension with the given identifier.
func (c *Catalog) Dimension(id string) (*Dimension, bool) {
	if c == nil {
		return nil, false
	}
	i, ok := c.index[id]
	if !ok {
		return nil, false
	}
	return c.dimensions[i], true
}

// Dimensions returns the dimensions in priority order.
func (c *Catalog) Dimensions() []*Dimension {
	if c == nil {
		return nil
	}
	return append([]*Dimension(nil), c.dimensions...)
}

// Identifiers returns the dimension identifiers in priority order.
func (c *Catalog) Identifiers() []string {
	if c == nil {
		return nil
	}
	out := make([]string, len(c.dimensions))
	for i, d := range c.dimensions {
		out[i] = d.ID()
	}
	return out
}

// Len returns the number of dimensions.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.dimensions)
}

// Defaults returns the coordinates of every dimension's default value.
func (c *Catalog) Defaults() map[string]string {
	out := make(map[string]string, c.Len())
	for _, d := range c.Dimensions() {
		out[d.ID()] = d.Default()
	}
	return out
}

// Validate checks that coordinates name exactly the catalog's dimensions and
// that every value is declared.
func (c *Catalog) Validate(coordinates map[string]string) error {
	if len(coordinates) != c.Len() {
		return apperrors.WithMetadata(apperrors.CodePointInvalid,
			fmt.Sprintf("point has %d coordinates, catalog has %d dimensions", len(coordinates), c.Len()),
			map[string]string{"dimensions": strings.Join(c.Identifiers(), ",")})
	}
	ids := make([]string, 0, len(coordinates))
	for id := range coordinates {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		d, ok := c.Dimension(id)
		if !ok {
			return apperrors.WithMetadata(apperrors.CodePointInvalid,
				fmt.Sprintf("unknown dimension %q", id), map[string]string{"dimension": id})
		}
		if !d.Has(coordinates[id]) {
			return apperrors.WithMetadata(apperrors.CodeDimensionUnknownValue,
				fmt.Sprintf("dimension %q has no value %q", id, coordinates[id]),
				map[string]string{"dimension": id, "value": coordinates[id]})
		}
	}
	return nil
}

// AllowsCombination reports whether every pair of coordinates satisfies the
// constraints declared on their values. Coordinates must already be valid.
func (c *Catalog) AllowsCombination(coordinates map[string]string) bool {
	for id, value := range coordinates {
		d, ok := c.Dimension(id)
		if !ok {
			return false
		}
		i, ok := d.index[value]
		if !ok {
			return false
		}
		for otherID, constraints := range d.nodes[i].constraints {
			otherValue, present := coordinates[otherID]
			if !present {
				continue
			}
			if !constraints.Allows(otherValue) {
				return false
			}
		}
	}
	return true
}

package dimensionspace

import (
	"fmt"
	"sort"
	"strings"

	apperrors "github.com/louisbranch/contentstream/internal/platform/errors"
)

// Weight is the per-dimension fallback depth between a specialization and
// one of its generalizations.
type Weight struct {
	depths map[string]int
}

// NewWeight copies depths into a weight.
func NewWeight(depths map[string]int) Weight {
	copied := make(map[string]int, len(depths))
	for id, d := range depths {
		copied[id] = d
	}
	return Weight{depths: copied}
}

// Depth returns the depth recorded for a dimension.
func (w Weight) Depth(id string) (int, bool) {
	d, ok := w.depths[id]
	return d, ok
}

// Depths returns a copy of the depth map.
func (w Weight) Depths() map[string]int {
	out := make(map[string]int, len(w.depths))
	for id, d := range w.depths {
		out[id] = d
	}
	return out
}

// Sum returns the total fallback depth across dimensions.
func (w Weight) Sum() int {
	total := 0
	for _, d := range w.depths {
		total += d
	}
	return total
}

// IsMoreSpecializedThan reports whether w is at least as deep as other in
// every dimension and strictly deeper in one. It is a strict partial order.
func (w Weight) IsMoreSpecializedThan(other Weight) (bool, error) {
	if err := w.comparable(other); err != nil {
		return false, err
	}
	strictly := false
	for id, d := range w.depths {
		o := other.depths[id]
		if d < o {
			return false, nil
		}
		if d > o {
			strictly = true
		}
	}
	return strictly, nil
}

// IsAtLeastAsSpecializedAs reports whether w is at least as deep as other in
// every dimension. It is the reflexive partial order matching
// IsMoreSpecializedThan.
func (w Weight) IsAtLeastAsSpecializedAs(other Weight) (bool, error) {
	if err := w.comparable(other); err != nil {
		return false, err
	}
	for id, d := range w.depths {
		if d < other.depths[id] {
			return false, nil
		}
	}
	return true, nil
}

// Equal reports whether both weights hold the same depths.
func (w Weight) Equal(other Weight) bool {
	if len(w.depths) != len(other.depths) {
		return false
	}
	for id, d := range w.depths {
		if o, ok := other.depths[id]; !ok || o != d {
			return false
		}
	}
	return true
}

// String renders the weight as sorted "id:depth" pairs.
func (w Weight) String() string {
	ids := w.identifiers()
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("%s:%d", id, w.depths[id])
	}
	return strings.Join(parts, ",")
}

func (w Weight) comparable(other Weight) error {
	if len(w.depths) != len(other.depths) {
		return incomparable(w, other)
	}
	for id := range w.depths {
		if _, ok := other.depths[id]; !ok {
			return incomparable(w, other)
		}
	}
	return nil
}

func (w Weight) identifiers() []string {
	ids := make([]string, 0, len(w.depths))
	for id := range w.depths {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func incomparable(a, b Weight) error {
	return apperrors.WrapWithMetadata(apperrors.CodeWeightsAreIncomparable,
		fmt.Sprintf("weights %q and %q cover different dimensions", a.String(), b.String()),
		map[string]string{"left": strings.Join(a.identifiers(), ","), "right": strings.Join(b.identifiers(), ",")},
		ErrWeightsAreIncomparable)
}

package dimensionspace

import (
	"errors"
	"testing"
)

func TestWeightComparisonRequiresSameKeys(t *testing.T) {
	a := NewWeight(map[string]int{"language": 1})
	b := NewWeight(map[string]int{"market": 1})
	c := NewWeight(map[string]int{"language": 1, "market": 0})

	for _, other := range []Weight{b, c} {
		if _, err := a.IsMoreSpecializedThan(other); !errors.Is(err, ErrWeightsAreIncomparable) {
			t.Fatalf("IsMoreSpecializedThan(%s) error = %v", other, err)
		}
		if _, err := a.IsAtLeastAsSpecializedAs(other); !errors.Is(err, ErrWeightsAreIncomparable) {
			t.Fatalf("IsAtLeastAsSpecializedAs(%s) error = %v", other, err)
		}
	}
}

func TestWeightPartialOrder(t *testing.T) {
	weights := []Weight{
		NewWeight(map[string]int{"language": 0, "market": 0}),
		NewWeight(map[string]int{"language": 1, "market": 0}),
		NewWeight(map[string]int{"language": 0, "market": 1}),
		NewWeight(map[string]int{"language": 1, "market": 1}),
		NewWeight(map[string]int{"language": 2, "market": 1}),
	}
	geq := func(a, b Weight) bool {
		ok, err := a.IsAtLeastAsSpecializedAs(b)
		if err != nil {
			t.Fatalf("compare %s %s: %v", a, b, err)
		}
		return ok
	}
	gt := func(a, b Weight) bool {
		ok, err := a.IsMoreSpecializedThan(b)
		if err != nil {
			t.Fatalf("compare %s %s: %v", a, b, err)
		}
		return ok
	}

	for _, a := range weights {
		if !geq(a, a) {
			t.Fatalf("reflexivity failed for %s", a)
		}
		if gt(a, a) {
			t.Fatalf("strict order must be irreflexive for %s", a)
		}
		for _, b := range weights {
			if geq(a, b) && geq(b, a) && !a.Equal(b) {
				t.Fatalf("antisymmetry failed for %s and %s", a, b)
			}
			if gt(a, b) != (geq(a, b) && !a.Equal(b)) {
				t.Fatalf("strict order inconsistent for %s and %s", a, b)
			}
			for _, c := range weights {
				if geq(a, b) && geq(b, c) && !geq(a, c) {
					t.Fatalf("transitivity failed for %s, %s, %s", a, b, c)
				}
			}
		}
	}

	if geq(weights[1], weights[2]) || geq(weights[2], weights[1]) {
		t.Fatal("expected language-only and market-only weights to be unordered")
	}
}

func TestWeightSum(t *testing.T) {
	w := NewWeight(map[string]int{"language": 2, "market": 1})
	if w.Sum() != 3 {
		t.Fatalf("sum = %d, want 3", w.Sum())
	}
	if w.String() != "language:2,market:1" {
		t.Fatalf("string = %q", w.String())
	}
}

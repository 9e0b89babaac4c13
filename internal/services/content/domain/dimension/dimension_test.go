package dimension

import (
	"errors"
	"testing"
)

func languageDimension(t *testing.T) *Dimension {
	t.Helper()
	d, err := New("language", []Value{{Value: "en"}, {Value: "en_US"}, {Value: "en_GB"}, {Value: "de"}, {Value: "de_CH"}}, "en")
	if err != nil {
		t.Fatalf("new dimension: %v", err)
	}
	for _, link := range [][2]string{{"en", "en_US"}, {"en", "en_GB"}, {"de", "de_CH"}} {
		if err := d.RegisterSpecialization(link[0], link[1]); err != nil {
			t.Fatalf("register %s -> %s: %v", link[0], link[1], err)
		}
	}
	return d
}

func TestNewRejectsMissingValues(t *testing.T) {
	_, err := New("language", nil, "en")
	if !errors.Is(err, ErrValuesAreMissing) {
		t.Fatalf("expected ErrValuesAreMissing, got %v", err)
	}
}

func TestNewRejectsMissingDefault(t *testing.T) {
	values := []Value{{Value: "en"}}
	for _, def := range []string{"", "fr"} {
		_, err := New("language", values, def)
		if !errors.Is(err, ErrDefaultValueIsMissing) {
			t.Fatalf("default %q: expected ErrDefaultValueIsMissing, got %v", def, err)
		}
	}
}

func TestNewRejectsInvalidTokens(t *testing.T) {
	if _, err := New("lang|uage", []Value{{Value: "en"}}, "en"); !errors.Is(err, ErrInvalidIdentifier) {
		t.Fatalf("expected ErrInvalidIdentifier for id, got %v", err)
	}
	if _, err := New("language", []Value{{Value: "en=US"}}, "en=US"); !errors.Is(err, ErrInvalidIdentifier) {
		t.Fatalf("expected ErrInvalidIdentifier for value, got %v", err)
	}
	if _, err := New("language", []Value{{Value: "en"}, {Value: "en"}}, "en"); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for duplicate value, got %v", err)
	}
}

func TestDepthFollowsGeneralization(t *testing.T) {
	d := languageDimension(t)
	for _, v := range d.Values() {
		depth, err := d.Depth(v)
		if err != nil {
			t.Fatalf("depth %s: %v", v, err)
		}
		parent, ok, err := d.Generalization(v)
		if err != nil {
			t.Fatalf("generalization %s: %v", v, err)
		}
		want := 0
		if ok {
			parentDepth, err := d.Depth(parent)
			if err != nil {
				t.Fatalf("depth %s: %v", parent, err)
			}
			want = parentDepth + 1
		}
		if depth != want {
			t.Fatalf("depth(%s) = %d, want %d", v, depth, want)
		}
	}
	if got := d.MaxDepth(); got != 1 {
		t.Fatalf("max depth = %d, want 1", got)
	}
}

func TestRegisterSpecializationOverwritesParent(t *testing.T) {
	d := languageDimension(t)
	if err := d.RegisterSpecialization("de", "en_GB"); err != nil {
		t.Fatalf("re-register: %v", err)
	}
	parent, _, _ := d.Generalization("en_GB")
	if parent != "de" {
		t.Fatalf("parent = %q, want de", parent)
	}
	children, _ := d.Specializations("en")
	if len(children) != 1 || children[0] != "en_US" {
		t.Fatalf("en specializations = %v, want [en_US]", children)
	}
	children, _ = d.Specializations("de")
	if len(children) != 2 || children[0] != "de_CH" || children[1] != "en_GB" {
		t.Fatalf("de specializations = %v, want [de_CH en_GB]", children)
	}

	if err := d.RegisterSpecialization("de", "en_GB"); err != nil {
		t.Fatalf("idempotent re-register: %v", err)
	}
	children, _ = d.Specializations("de")
	if len(children) != 2 {
		t.Fatalf("duplicate child after re-register: %v", children)
	}
}

func TestRegisterSpecializationRejectsCycles(t *testing.T) {
	d := languageDimension(t)
	if err := d.RegisterSpecialization("en_US", "en"); !errors.Is(err, ErrCircularGeneralization) {
		t.Fatalf("expected ErrCircularGeneralization, got %v", err)
	}
	if err := d.RegisterSpecialization("en", "en"); !errors.Is(err, ErrCircularGeneralization) {
		t.Fatalf("expected ErrCircularGeneralization for self link, got %v", err)
	}
}

func TestCalculateFallbackDepth(t *testing.T) {
	d := languageDimension(t)

	for _, v := range d.Values() {
		depth, err := d.CalculateFallbackDepth(v, v)
		if err != nil || depth != 0 {
			t.Fatalf("fallback(%s, %s) = %d, %v; want 0", v, v, depth, err)
		}
	}
	depth, err := d.CalculateFallbackDepth("en_US", "en")
	if err != nil || depth != 1 {
		t.Fatalf("fallback(en_US, en) = %d, %v; want 1", depth, err)
	}
	if _, err := d.CalculateFallbackDepth("en_US", "de"); !errors.Is(err, ErrInvalidFallback) {
		t.Fatalf("expected ErrInvalidFallback, got %v", err)
	}
	if _, err := d.CalculateFallbackDepth("en", "en_US"); !errors.Is(err, ErrInvalidFallback) {
		t.Fatalf("generalization must not fall back to specialization, got %v", err)
	}
	if _, err := d.CalculateFallbackDepth("fr", "en"); !errors.Is(err, ErrUnknownValue) {
		t.Fatalf("expected ErrUnknownValue, got %v", err)
	}
}

func TestPriorityFollowsDeclarationOrder(t *testing.T) {
	d := languageDimension(t)
	for want, v := range d.Values() {
		got, err := d.Priority(v)
		if err != nil || got != want {
			t.Fatalf("priority(%s) = %d, %v; want %d", v, got, err, want)
		}
	}
	if roots := d.Roots(); len(roots) != 2 || roots[0] != "en" || roots[1] != "de" {
		t.Fatalf("roots = %v, want [en de]", roots)
	}
}

func TestConstraintsAllows(t *testing.T) {
	c := Constraints{Wildcard: false, Identifiers: map[string]bool{"us": true}}
	if !c.Allows("us") || c.Allows("ch") {
		t.Fatalf("unexpected constraint evaluation")
	}
	if !AllowAll().Allows("anything") {
		t.Fatal("AllowAll should allow any value")
	}
}

package dimension

import (
	"fmt"
	"strings"

	apperrors "github.com/louisbranch/contentstream/internal/platform/errors"
)

const noParent = -1

// Constraints restrict which values of another dimension a value may be
// combined with. An explicit entry in Identifiers wins over Wildcard.
type Constraints struct {
	Wildcard    bool
	Identifiers map[string]bool
}

// AllowAll permits every value of the constrained dimension.
func AllowAll() Constraints {
	return Constraints{Wildcard: true}
}

// Allows reports whether value may be combined under these constraints.
func (c Constraints) Allows(value string) bool {
	if allowed, ok := c.Identifiers[value]; ok {
		return allowed
	}
	return c.Wildcard
}

// Value is a declared dimension value. Constraints is keyed by the identifier
// of the other dimension; dimensions without an entry are unconstrained.
type Value struct {
	Value       string
	Constraints map[string]Constraints
}

type node struct {
	value       string
	constraints map[string]Constraints
	parent      int
	children    []int
}

// Dimension is one axis of content variation.
type Dimension struct {
	id           string
	defaultValue string
	nodes        []node
	index        map[string]int
}

// New builds a dimension from values in declaration order. Declaration order
// is the value priority used to break ties during fallback resolution.
func New(id string, values []Value, defaultValue string) (*Dimension, error) {
	id = strings.TrimSpace(id)
	if err := validateToken(id); err != nil {
		return nil, fmt.Errorf("dimension %q: %w", id, err)
	}
	if len(values) == 0 {
		return nil, apperrors.WithMetadata(apperrors.CodeDimensionValuesAreMissing,
			fmt.Sprintf("dimension %q has no values", id), map[string]string{"dimension": id})
	}

	d := &Dimension{
		id:    id,
		nodes: make([]node, 0, len(values)),
		index: make(map[string]int, len(values)),
	}
	for _, v := range values {
		if err := validateToken(v.Value); err != nil {
			return nil, fmt.Errorf("dimension %q value %q: %w", id, v.Value, err)
		}
		if _, exists := d.index[v.Value]; exists {
			return nil, fmt.Errorf("dimension %q value %q declared twice: %w", id, v.Value, ErrInvalidConfig)
		}
		d.index[v.Value] = len(d.nodes)
		d.nodes = append(d.nodes, node{
			value:       v.Value,
			constraints: copyConstraints(v.Constraints),
			parent:      noParent,
		})
	}

	if defaultValue == "" {
		return nil, apperrors.WithMetadata(apperrors.CodeDimensionDefaultValueIsMissing,
			fmt.Sprintf("dimension %q has no default value", id), map[string]string{"dimension": id})
	}
	if _, ok := d.index[defaultValue]; !ok {
		return nil, apperrors.WithMetadata(apperrors.CodeDimensionDefaultValueIsMissing,
			fmt.Sprintf("dimension %q default value %q is not declared", id, defaultValue),
			map[string]string{"dimension": id, "value": defaultValue})
	}
	d.defaultValue = defaultValue
	return d, nil
}

// ID returns the dimension identifier.
func (d *Dimension) ID() string { return d.id }

// Default returns the default value.
func (d *Dimension) Default() string { return d.defaultValue }

// Len returns the number of declared values.
func (d *Dimension) Len() int { return len(d.nodes) }

// Has reports whether value is declared.
func (d *Dimension) Has(value string) bool {
	_, ok := d.index[value]
	return ok
}

// Values returns the declared values in priority order.
func (d *Dimension) Values() []string {
	out := make([]string, len(d.nodes))
	for i, n := range d.nodes {
		out[i] = n.value
	}
	return out
}

// Value returns the declared value with its constraints.
func (d *Dimension) Value(value string) (Value, bool) {
	i, ok := d.index[value]
	if !ok {
		return Value{}, false
	}
	return Value{Value: d.nodes[i].value, Constraints: copyConstraints(d.nodes[i].constraints)}, true
}

// Priority returns the declaration index of value; lower is preferred.
func (d *Dimension) Priority(value string) (int, error) {
	i, err := d.lookup(value)
	if err != nil {
		return 0, err
	}
	return i, nil
}

// Generalization returns the parent of value, if any.
func (d *Dimension) Generalization(value string) (string, bool, error) {
	i, err := d.lookup(value)
	if err != nil {
		return "", false, err
	}
	if p := d.nodes[i].parent; p != noParent {
		return d.nodes[p].value, true, nil
	}
	return "", false, nil
}

// Specializations returns the direct children of value in registration order.
func (d *Dimension) Specializations(value string) ([]string, error) {
	i, err := d.lookup(value)
	if err != nil {
		return nil, err
	}
	children := d.nodes[i].children
	out := make([]string, len(children))
	for j, c := range children {
		out[j] = d.nodes[c].value
	}
	return out, nil
}

// Roots returns the values without a generalization, in priority order.
func (d *Dimension) Roots() []string {
	var out []string
	for _, n := range d.nodes {
		if n.parent == noParent {
			out = append(out, n.value)
		}
	}
	return out
}

// Depth returns the number of generalization steps from value to its root.
func (d *Dimension) Depth(value string) (int, error) {
	i, err := d.lookup(value)
	if err != nil {
		return 0, err
	}
	depth := 0
	for p := d.nodes[i].parent; p != noParent; p = d.nodes[p].parent {
		depth++
	}
	return depth, nil
}

// MaxDepth returns the greatest depth of any value.
func (d *Dimension) MaxDepth() int {
	maxDepth := 0
	for _, n := range d.nodes {
		depth, _ := d.Depth(n.value)
		maxDepth = max(maxDepth, depth)
	}
	return maxDepth
}

// RegisterSpecialization links child under parent. Registering a child again
// moves it to the new parent. A link that would make child an ancestor of
// itself fails with ErrCircularGeneralization.
func (d *Dimension) RegisterSpecialization(parent, child string) error {
	pi, err := d.lookup(parent)
	if err != nil {
		return err
	}
	ci, err := d.lookup(child)
	if err != nil {
		return err
	}
	for a := pi; a != noParent; a = d.nodes[a].parent {
		if a == ci {
			return apperrors.WithMetadata(apperrors.CodeDimensionCircularGeneralization,
				fmt.Sprintf("dimension %q: %q cannot specialize %q", d.id, child, parent),
				map[string]string{"dimension": d.id, "parent": parent, "child": child})
		}
	}

	if old := d.nodes[ci].parent; old != noParent {
		d.nodes[old].children = removeIndex(d.nodes[old].children, ci)
	}
	d.nodes[ci].parent = pi
	d.nodes[pi].children = append(removeIndex(d.nodes[pi].children, ci), ci)
	return nil
}

// CalculateFallbackDepth walks candidate's generalization chain until target
// and returns the number of steps taken. A value is its own fallback at depth
// zero. ErrInvalidFallback is returned when target is not on the chain.
func (d *Dimension) CalculateFallbackDepth(candidate, target string) (int, error) {
	ci, err := d.lookup(candidate)
	if err != nil {
		return 0, err
	}
	ti, err := d.lookup(target)
	if err != nil {
		return 0, err
	}
	depth := 0
	for i := ci; i != noParent; i = d.nodes[i].parent {
		if i == ti {
			return depth, nil
		}
		depth++
	}
	return 0, apperrors.WithMetadata(apperrors.CodeDimensionInvalidFallback,
		fmt.Sprintf("dimension %q: %q is not a fallback of %q", d.id, target, candidate),
		map[string]string{"dimension": d.id, "candidate": candidate, "target": target})
}

func (d *Dimension) lookup(value string) (int, error) {
	i, ok := d.index[value]
	if !ok {
		return 0, apperrors.WithMetadata(apperrors.CodeDimensionUnknownValue,
			fmt.Sprintf("dimension %q has no value %q", d.id, value),
			map[string]string{"dimension": d.id, "value": value})
	}
	return i, nil
}

func removeIndex(indices []int, target int) []int {
	out := indices[:0:0]
	for _, i := range indices {
		if i != target {
			out = append(out, i)
		}
	}
	return out
}

func copyConstraints(in map[string]Constraints) map[string]Constraints {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]Constraints, len(in))
	for dim, c := range in {
		ids := make(map[string]bool, len(c.Identifiers))
		for k, v := range c.Identifiers {
			ids[k] = v
		}
		out[dim] = Constraints{Wildcard: c.Wildcard, Identifiers: ids}
	}
	return out
}

// validateToken rejects strings that would break the canonical point
// serialization ("id=value" pairs joined by "|").
func validateToken(s string) error {
	if s == "" || strings.TrimSpace(s) != s || strings.ContainsAny(s, "=|") {
		return apperrors.Wrap(apperrors.CodeDimensionInvalidIdentifier, fmt.Sprintf("invalid token %q", s), ErrInvalidIdentifier)
	}
	return nil
}

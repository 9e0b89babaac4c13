package dimensionspace

import "sync"

// PointTable interns points by hash so repeated lookups share one instance.
// It is owned by whoever creates it (typically the resolver's caller) and
// lives until Clear is called; there is no package-level table.
type PointTable struct {
	mu     sync.RWMutex
	points map[string]Point
}

// NewPointTable creates an empty table.
func NewPointTable() *PointTable {
	return &PointTable{points: make(map[string]Point)}
}

// Intern returns the canonical instance for p, storing p if it is new.
func (t *PointTable) Intern(p Point) Point {
	h := p.Hash()
	t.mu.RLock()
	existing, ok := t.points[h]
	t.mu.RUnlock()
	if ok {
		return existing
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if existing, ok := t.points[h]; ok {
		return existing
	}
	if t.points == nil {
		t.points = make(map[string]Point)
	}
	t.points[h] = p
	return p
}

// InternCoordinates builds and interns a point.
func (t *PointTable) InternCoordinates(coordinates map[string]string) (Point, error) {
	p, err := NewPoint(coordinates)
	if err != nil {
		return Point{}, err
	}
	return t.Intern(p), nil
}

// Lookup returns the interned point with the given hash.
func (t *PointTable) Lookup(hash string) (Point, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.points[hash]
	return p, ok
}

// Len returns the number of interned points.
func (t *PointTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.points)
}

// Clear drops every interned point.
func (t *PointTable) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.points = make(map[string]Point)
}

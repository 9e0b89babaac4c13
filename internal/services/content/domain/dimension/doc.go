// Package dimension models content dimensions: named axes of variation (for
// example language or market) whose values form a generalization forest.
//
// Values are stored in a per-dimension arena. Generalization and
// specialization links are arena indices, so a value's depth and its
// fallback chain are plain index walks that always terminate: the forest
// invariant (one parent per value, no cycles) is enforced when links are
// registered.
//
// A Catalog is built once at startup, typically from YAML via ParseYAML, and
// is read-only afterwards.
package dimension

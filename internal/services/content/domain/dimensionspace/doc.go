// Package dimensionspace provides dimension space points, point sets,
// variation weights and the fallback resolver built on a dimension catalog.
//
// A Point is an immutable coordinate tuple. Its hash is the xxhash64 of the
// canonical serialization (identifiers sorted ascending, "id=value" pairs
// joined by "|"), so it is stable across processes and safe to use as a
// read-model partition key.
package dimensionspace

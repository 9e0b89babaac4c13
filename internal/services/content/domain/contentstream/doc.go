// Package contentstream manages the lifecycle of content streams: append-only
// branches of the shared event log named "contentstream:<id>".
//
// A fork records a single fact referencing its source and the source version
// it branched from. Nothing is copied; History layers the source prefix and
// the fork's own events at read time.
package contentstream

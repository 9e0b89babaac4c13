// Package storage defines the persistence contracts of the content service:
// the append-only event log with optimistic concurrency, subscription
// bookkeeping and the subtree tag read model.
//
// Streams are named "<category>:<id>". Versions are 1-based and dense within
// a stream; Seq is a dense global sequence across every stream. Backends live
// in the memory and sqlite subpackages and share the behavior tests in
// storagetest.
package storage

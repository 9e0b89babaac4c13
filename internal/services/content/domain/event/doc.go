// Package event defines the event envelope shared by every stream in the
// content log and the closed set of payload variants the core understands.
//
// Events are immutable facts. The store assigns Version (1-based, per stream)
// and Seq (global, gap-free) at append time; everything else is set by the
// producer. Each event carries the command that caused it in Metadata so that
// a stream's own commands can be reconstructed and replayed in order.
//
// Payloads are tagged variants: Decode switches on Type and returns one of
// the concrete payload structs. Types the core does not own (node edits and
// other handler-defined facts) decode to Opaque.
package event

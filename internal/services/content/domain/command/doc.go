// Package command defines the command envelope, the per-type registry that
// validates commands before they reach a decider, and the Decision a decider
// returns.
//
// Commands are the unit of replay: every accepted command's envelope is
// copied into the metadata of the events it produced, so a stream's own
// commands can be reconstructed in original order when a workspace is rebased.
package command

// Package engine is the commit path for content stream commands: it validates
// a command, loads the target stream, asks the registered decider for events,
// and appends them with an expected-version check.
//
// The same Handler serves live writes and rebase replays, so a command that
// fails during a rebase fails for exactly the reason it would fail live.
package engine

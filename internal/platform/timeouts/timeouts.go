// Package timeouts defines shared timeout constants used across services.
package timeouts

import "time"

// GRPCDial caps the wait time when dialing the daemon's gRPC endpoint.
const GRPCDial = 2 * time.Second

// Shutdown limits how long a service waits for in-flight work during
// graceful shutdown.
const Shutdown = 5 * time.Second

// CatchUpPass caps a single subscription catch-up pass started by the poll
// loop.
const CatchUpPass = 30 * time.Second

// CommitHook caps the synchronous part of a post-commit notification.
const CommitHook = 100 * time.Millisecond

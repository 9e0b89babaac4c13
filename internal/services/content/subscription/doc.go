// Package subscription drives read-model projections to the tip of the global
// event log.
//
// Each registered projection owns its checkpoint and advances it in the same
// transaction as its own write, so a crash can never separate the two. The
// engine reads the log after that checkpoint in sequence order, refuses to
// skip a gap, and records bookkeeping (status, retry attempt, last error) in a
// storage.SubscriptionStore. Failed passes leave the checkpoint untouched and
// are retried per a RetryStrategy until the strategy gives up, at which point
// the subscription stays failed until an operator reactivates it.
//
// Overlapping catch-up requests for one subscription share a single pass.
package subscription

// Package transport buffers, batches, retries, and ships events and
// heartbeats to the remote collector. It owns the per-session bounded queue
// with its drop-oldest policy, the exponential-backoff retry of transient
// failures, and the classification of transmission outcomes into the
// pipeline error taxonomy.
//
// Exactly one worker drains each session's queue, which is what makes the
// ordering guarantee cheap: events leave in the order they were sequenced,
// and a retried batch keeps its order because it is retried whole.
package transport

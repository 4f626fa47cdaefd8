// Package ledger owns the lifecycle of runs: creation, state
// transitions and reads.
//
// Every transition is judged by the transition policy and committed
// with an optimistic versioned update, so concurrent writers to the
// same run serialize cleanly: one commit wins, the loser re-reads and
// re-judges against the new current state. Committed transitions are
// published on the event bus and counted in the metrics collector.
package ledger

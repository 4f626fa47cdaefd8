// Package workers implements the background marking of late runs.
//
// The scanner sweeps the run store on an interval and submits every
// scheduled flow run whose due time plus the grace margin has passed.
// A fixed pool of goroutines consumes those jobs and asks the ledger
// to mark each run late; the ledger re-checks eligibility under its
// optimistic concurrency loop, so a run that started in the meantime
// is left alone.
//
// The health monitor tracks worker status and records pool gauges.
package workers

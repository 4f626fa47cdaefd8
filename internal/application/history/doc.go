// Package history aggregates runs over an interval-bucketed time grid.
//
// A request names a window, a bucket width and an optional run filter;
// the result is one bucket per interval with per-(state type, state
// name) counts and summed estimated run time and lateness. Runs in a
// SCHEDULED state are binned by when they were due rather than when
// the state was recorded, so upcoming work appears where it belongs on
// the timeline.
//
// The whole aggregation is computed against a single snapshot and a
// single "now", so a bucket's sums are internally consistent even while
// runs keep moving underneath.
package history

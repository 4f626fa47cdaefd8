// Package domain defines the core model of the orchestration engine.
//
// It contains:
//   - Flow, Task, Edge: the authored task graph and its metadata
//   - Schedule, Environment: tagged variants attached to a flow
//   - Run, State: execution instances tracked through the state machine
//   - Policy: the ordered transition rule list consulted on every
//     state change
//   - the error taxonomy shared across application and adapter layers
//
// Derived run metrics (estimated run time, estimated lateness) are
// computed on demand against an explicit "now" so they stay meaningful
// for runs that are still in flight.
package domain

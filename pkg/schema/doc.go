// Package schema converts flows to and from their wire documents.
//
// A dumped document references tasks by id everywhere a graph element
// points at a task, and Load resolves those ids through a single arena,
// so task identity survives a round trip: an edge endpoint and the task
// set entry for the same id come back as the same instance.
//
// Documents are tolerant of foreign variants. A task whose type tag
// this engine does not know loads as a plain task with the tag kept in
// the flow's task info; schedules and environments of unknown kinds
// pass through untouched.
package schema

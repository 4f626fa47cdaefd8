// Package ports defines the interfaces between the application layer
// and its adapters: run and flow storage, the event bus, and metrics
// collection. Adapters under pkg/adapters implement them; the
// application layer depends only on these contracts.
package ports

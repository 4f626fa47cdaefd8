// Package storage provides run and flow document storage implementations.
//
// Implementations:
//   - redis: Redis with JSON serialization and optimistic versioned updates
//   - memory: In-memory for testing and single-process deployments
package storage

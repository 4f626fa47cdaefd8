// Package catalog implements the flow definition catalog.
//
// The catalog service owns the stored flow documents by:
//   - Validating flow structure before anything is persisted
//   - Round-tripping submissions through the codec so stored documents
//     are always in canonical form
//   - Publishing events when flows are saved or deleted
//   - Previewing upcoming fire times for scheduled flows
//
// The validator ensures flows are well-formed with unique slugs and no
// dependency cycles.
package catalog

// Package models contains GORM-specific persistence models that map to database tables.
// These models are separate from domain entities to keep the domain layer pure and free
// from ORM concerns.
//
// Structure:
//   - base.go: identity, audit and version columns
//   - ledger.go: materials, batches, reservations, consumption records, spoilage records
//     and batch code sequences
//
// Every model has ToDomain and FromDomain mappers; repositories only ever read and
// write models.
package models

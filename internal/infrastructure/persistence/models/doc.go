// Package models contains GORM-specific persistence models that map to database tables.
// These models are separate from domain entities to keep the domain layer pure and free
// from ORM concerns.
//
// Structure:
// - base.go: Base persistence model with an auto-increment key
// - identity.go: profiles and technicians
// - lab.go: labs and their billing customer id
// - work_order.go: work orders and their history thread
// - invoice.go: the invoice ledger
//
// Column types are chosen so the same models migrate on PostgreSQL and on the
// in-memory SQLite databases used by tests.
package models

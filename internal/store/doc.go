// Package store provides PostgreSQL persistence for calendar accounts,
// appointments and patient lookups.
//
// Repositories are exposed as interfaces so the sync engine can be tested
// against in-memory fakes. The de-duplication invariant, at most one local
// appointment per (owner, external event id), is enforced by a partial
// unique index in addition to the set-once semantics of SetExternalEventID.
package store

// Package database provides the PostgreSQL connection pool for the recorder.
//
// One database holds both tables: state_changes (append-only history) and
// entity_states (latest state per entity). See internal/recorder for the
// schema.
package database

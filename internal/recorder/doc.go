// Package recorder persists the Home Assistant state stream to Postgres.
//
// Two sinks share the batching configuration:
//   - ChangeRecorder appends state_changed events to the state_changes
//     history table.
//   - SnapshotRecorder upserts poller snapshots into the entity_states
//     latest-state table.
//
// History inserts are append-only and deduplicated on (entity_id,
// changed_at), so replaying events after a reconnect is harmless.
//
// Expected schema:
//
//	CREATE TABLE state_changes (
//	    entity_id   TEXT        NOT NULL,
//	    domain      TEXT        NOT NULL,
//	    state       TEXT        NOT NULL,
//	    old_state   TEXT,
//	    attributes  JSONB,
//	    changed_at  TIMESTAMPTZ NOT NULL,
//	    recorded_at TIMESTAMPTZ NOT NULL,
//	    PRIMARY KEY (entity_id, changed_at)
//	);
//
//	CREATE TABLE entity_states (
//	    entity_id    TEXT PRIMARY KEY,
//	    domain       TEXT        NOT NULL,
//	    state        TEXT        NOT NULL,
//	    attributes   JSONB,
//	    last_changed TIMESTAMPTZ,
//	    last_updated TIMESTAMPTZ,
//	    captured_at  TIMESTAMPTZ NOT NULL
//	);
package recorder

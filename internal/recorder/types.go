package recorder

import (
	"encoding/json"
	"time"
)

// Config controls batching for the database recorders.
type Config struct {
	// BatchSize is the number of rows to accumulate before flushing.
	BatchSize int

	// FlushInterval is the maximum time between flushes.
	FlushInterval time.Duration

	// BufferSize caps the intake buffer between the event stream and the
	// flush loop.
	BufferSize int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:     500,
		FlushInterval: time.Second,
		BufferSize:    10000,
	}
}

// changeRow represents a row to be inserted into the state_changes table.
type changeRow struct {
	EntityID   string
	Domain     string
	State      string
	OldState   *string // nil for newly created entities
	Attributes []byte  // JSONB, nil when the entity has none
	ChangedAt  time.Time
	RecordedAt time.Time
}

// snapshotRow represents a row for the entity_states table.
type snapshotRow struct {
	EntityID    string
	Domain      string
	State       string
	Attributes  []byte // JSONB
	LastChanged time.Time
	LastUpdated time.Time
	CapturedAt  time.Time
}

// Metrics holds counters for a recorder.
type Metrics struct {
	Inserts   int64
	Conflicts int64
	Errors    int64
	Flushes   int64
	Dropped   int64
}

// attributesJSON marshals entity attributes for a JSONB column. Empty
// attributes come back nil so the column stays NULL.
func attributesJSON(attrs map[string]any) []byte {
	if len(attrs) == 0 {
		return nil
	}
	data, _ := json.Marshal(attrs)
	return data
}

package recorder

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/shbatm/ha-mcp-sub001/internal/model"
)

func TestSnapshotRowFrom(t *testing.T) {
	lastUpdated := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	capturedAt := lastUpdated.Add(time.Minute)

	st := model.EntityState{
		EntityID:    "climate.bedroom",
		State:       "heat",
		Attributes:  map[string]any{"temperature": 21.5},
		LastChanged: lastUpdated.Add(-time.Hour),
		LastUpdated: lastUpdated,
	}

	row := snapshotRowFrom(&st, capturedAt)

	if row.EntityID != "climate.bedroom" {
		t.Errorf("EntityID = %s, want climate.bedroom", row.EntityID)
	}
	if row.Domain != "climate" {
		t.Errorf("Domain = %s, want climate", row.Domain)
	}
	if row.State != "heat" {
		t.Errorf("State = %s, want heat", row.State)
	}
	if !row.LastUpdated.Equal(lastUpdated) {
		t.Errorf("LastUpdated = %v, want %v", row.LastUpdated, lastUpdated)
	}
	if !row.CapturedAt.Equal(capturedAt) {
		t.Errorf("CapturedAt = %v, want %v", row.CapturedAt, capturedAt)
	}

	var attrs map[string]any
	if err := json.Unmarshal(row.Attributes, &attrs); err != nil {
		t.Fatalf("attributes not valid JSON: %v", err)
	}
	if attrs["temperature"] != 21.5 {
		t.Errorf("attributes temperature = %v, want 21.5", attrs["temperature"])
	}
}

func TestAttributesJSON(t *testing.T) {
	if got := attributesJSON(nil); got != nil {
		t.Errorf("attributesJSON(nil) = %s, want nil", got)
	}
	if got := attributesJSON(map[string]any{}); got != nil {
		t.Errorf("attributesJSON(empty) = %s, want nil", got)
	}

	data := attributesJSON(map[string]any{"unit_of_measurement": "°C"})
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["unit_of_measurement"] != "°C" {
		t.Errorf("unit_of_measurement = %v, want °C", decoded["unit_of_measurement"])
	}
}

func TestSnapshotRecorder_EmptySnapshot(t *testing.T) {
	r := NewSnapshotRecorder(DefaultConfig(), nil, nil)

	if err := r.HandleSnapshot(context.Background(), nil); err != nil {
		t.Fatalf("HandleSnapshot(nil) error = %v", err)
	}

	stats := r.Stats()
	if stats.Inserts != 0 || stats.Flushes != 0 {
		t.Errorf("expected no metrics movement, got %+v", stats)
	}
}

func TestNewSnapshotRecorder_NormalizesBatchSize(t *testing.T) {
	r := NewSnapshotRecorder(Config{}, nil, nil)
	if r.cfg.BatchSize != DefaultConfig().BatchSize {
		t.Errorf("BatchSize = %d, want default %d", r.cfg.BatchSize, DefaultConfig().BatchSize)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.BatchSize != 500 {
		t.Errorf("BatchSize = %d, want 500", cfg.BatchSize)
	}
	if cfg.FlushInterval != time.Second {
		t.Errorf("FlushInterval = %v, want 1s", cfg.FlushInterval)
	}
	if cfg.BufferSize != 10000 {
		t.Errorf("BufferSize = %d, want 10000", cfg.BufferSize)
	}
}

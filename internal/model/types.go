package model

import (
	"encoding/json"
	"strings"
	"time"
)

// -----------------------------------------------------------------------------
// Entity Types
// -----------------------------------------------------------------------------

// EntityState represents the state of a single Home Assistant entity.
// The JSON layout matches both the REST /api/states endpoint and the
// WebSocket get_states result, so the same type decodes either source.
type EntityState struct {
	EntityID    string         `json:"entity_id"`              // e.g. "light.living_room"
	State       string         `json:"state"`                  // e.g. "on", "off", "unavailable"
	Attributes  map[string]any `json:"attributes,omitempty"`   // Domain-specific attributes
	LastChanged time.Time      `json:"last_changed,omitempty"` // Last state value change
	LastUpdated time.Time      `json:"last_updated,omitempty"` // Last state or attribute change
	Context     *EventContext  `json:"context,omitempty"`      // Originating context, if any
}

// Domain returns the entity's domain, the part of the entity_id before the
// first dot ("light.living_room" -> "light"). Empty if the id is malformed.
func (s *EntityState) Domain() string {
	domain, _, ok := strings.Cut(s.EntityID, ".")
	if !ok {
		return ""
	}
	return domain
}

// Available reports whether the entity is reachable. Home Assistant marks
// unreachable entities with the literal states "unavailable" or "unknown".
func (s *EntityState) Available() bool {
	return s.State != "unavailable" && s.State != "unknown"
}

// EventContext identifies what triggered a state change or event.
type EventContext struct {
	ID       string `json:"id"`
	ParentID string `json:"parent_id,omitempty"`
	UserID   string `json:"user_id,omitempty"`
}

// -----------------------------------------------------------------------------
// Event Types
// -----------------------------------------------------------------------------

// Event is a server-pushed Home Assistant event as delivered inside a
// WebSocket frame of type "event". Data stays raw so handlers decode only
// the event types they understand.
type Event struct {
	EventType string          `json:"event_type"`           // e.g. "state_changed", "call_service"
	Data      json.RawMessage `json:"data,omitempty"`       // Event-type specific payload
	Origin    string          `json:"origin,omitempty"`     // "LOCAL" or "REMOTE"
	TimeFired time.Time       `json:"time_fired,omitempty"` // Server-side fire time
	Context   *EventContext   `json:"context,omitempty"`
}

// StateChange is the payload of a state_changed event. OldState is nil for
// newly created entities; NewState is nil for removed ones.
type StateChange struct {
	EntityID string       `json:"entity_id"`
	OldState *EntityState `json:"old_state"`
	NewState *EntityState `json:"new_state"`
}

// ParseStateChange decodes the payload of a state_changed event.
func ParseStateChange(ev Event) (StateChange, error) {
	var sc StateChange
	if err := json.Unmarshal(ev.Data, &sc); err != nil {
		return StateChange{}, err
	}
	return sc, nil
}

// -----------------------------------------------------------------------------
// Instance Types
// -----------------------------------------------------------------------------

// HAConfig describes the remote Home Assistant instance, as returned by the
// WebSocket get_config command and the REST /api/config endpoint.
type HAConfig struct {
	Version      string   `json:"version"`
	LocationName string   `json:"location_name"`
	TimeZone     string   `json:"time_zone"`
	State        string   `json:"state"` // e.g. "RUNNING"
	Latitude     float64  `json:"latitude"`
	Longitude    float64  `json:"longitude"`
	Elevation    float64  `json:"elevation"`
	UnitSystem   UnitInfo `json:"unit_system"`
	Components   []string `json:"components,omitempty"`
	ConfigDir    string   `json:"config_dir,omitempty"`
}

// UnitInfo holds the instance's configured measurement units.
type UnitInfo struct {
	Length      string `json:"length"`
	Mass        string `json:"mass"`
	Temperature string `json:"temperature"`
	Pressure    string `json:"pressure"`
	Volume      string `json:"volume,omitempty"`
}

// ServiceTarget selects the entities, devices, or areas a service call
// applies to. All fields are optional.
type ServiceTarget struct {
	EntityID []string `json:"entity_id,omitempty"`
	DeviceID []string `json:"device_id,omitempty"`
	AreaID   []string `json:"area_id,omitempty"`
}

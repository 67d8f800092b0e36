// Package model defines shared Home Assistant data types used across the
// WebSocket client, REST client, recorder, and operation tracker.
//
// Conventions:
//   - Entity ids: "domain.object_id" strings (e.g. "light.kitchen")
//   - Timestamps: time.Time, decoded from Home Assistant's RFC 3339 output
//   - Event payloads: json.RawMessage until a consumer decodes them
package model

package api

import (
	"encoding/json"
	"time"

	"github.com/shbatm/ha-mcp-sub001/internal/model"
)

// ServiceDomain groups the services registered under one domain.
type ServiceDomain struct {
	Domain   string                 `json:"domain"`
	Services map[string]ServiceDesc `json:"services"`
}

// ServiceDesc describes a single service.
type ServiceDesc struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Fields      map[string]any `json:"fields"`
}

// ServiceResponse is the reply from a service call made with return_response:
// the states the call changed plus the service's own response data.
type ServiceResponse struct {
	ChangedStates   []model.EntityState `json:"changed_states"`
	ServiceResponse json.RawMessage     `json:"service_response"`
}

// LogbookEntry is one row of the logbook.
type LogbookEntry struct {
	When     time.Time `json:"when"`
	Name     string    `json:"name"`
	Message  string    `json:"message"`
	Domain   string    `json:"domain"`
	EntityID string    `json:"entity_id"`
	State    string    `json:"state"`
}

package api

import (
	"context"
	"fmt"

	"github.com/shbatm/ha-mcp-sub001/internal/model"
)

// GetStates fetches the full state table.
func (c *Client) GetStates(ctx context.Context) ([]model.EntityState, error) {
	var states []model.EntityState
	if err := c.get(ctx, "/states", nil, &states); err != nil {
		return nil, fmt.Errorf("get states: %w", err)
	}
	return states, nil
}

// GetState fetches the current state of one entity.
func (c *Client) GetState(ctx context.Context, entityID string) (*model.EntityState, error) {
	var state model.EntityState
	if err := c.get(ctx, "/states/"+entityID, nil, &state); err != nil {
		return nil, fmt.Errorf("get state %s: %w", entityID, err)
	}
	return &state, nil
}

// SetState writes a state directly into the state machine. It does not talk
// to any device; use CallService for that.
func (c *Client) SetState(ctx context.Context, entityID, state string, attributes map[string]any) (*model.EntityState, error) {
	payload := map[string]any{"state": state}
	if len(attributes) > 0 {
		payload["attributes"] = attributes
	}

	var updated model.EntityState
	if err := c.post(ctx, "/states/"+entityID, nil, payload, &updated); err != nil {
		return nil, fmt.Errorf("set state %s: %w", entityID, err)
	}
	return &updated, nil
}

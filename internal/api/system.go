package api

import (
	"context"
	"fmt"

	"github.com/shbatm/ha-mcp-sub001/internal/model"
)

// CheckAPI verifies the API is reachable and the token is accepted.
func (c *Client) CheckAPI(ctx context.Context) error {
	var status struct {
		Message string `json:"message"`
	}
	if err := c.get(ctx, "/", nil, &status); err != nil {
		return fmt.Errorf("check api: %w", err)
	}
	return nil
}

// GetHAConfig fetches the instance configuration.
func (c *Client) GetHAConfig(ctx context.Context) (*model.HAConfig, error) {
	var cfg model.HAConfig
	if err := c.get(ctx, "/config", nil, &cfg); err != nil {
		return nil, fmt.Errorf("get config: %w", err)
	}
	return &cfg, nil
}

package api

import (
	"context"
	"fmt"
	"net/url"

	"github.com/shbatm/ha-mcp-sub001/internal/model"
)

// GetServices lists every registered service grouped by domain.
func (c *Client) GetServices(ctx context.Context) ([]ServiceDomain, error) {
	var domains []ServiceDomain
	if err := c.get(ctx, "/services", nil, &domains); err != nil {
		return nil, fmt.Errorf("get services: %w", err)
	}
	return domains, nil
}

// CallService invokes domain.service and returns the states the call changed.
func (c *Client) CallService(ctx context.Context, domain, service string, data map[string]any) ([]model.EntityState, error) {
	if data == nil {
		data = map[string]any{}
	}

	var changed []model.EntityState
	if err := c.post(ctx, "/services/"+domain+"/"+service, nil, data, &changed); err != nil {
		return nil, fmt.Errorf("call service %s.%s: %w", domain, service, err)
	}
	return changed, nil
}

// CallServiceWithResponse invokes a service that returns data, like
// weather.get_forecasts.
func (c *Client) CallServiceWithResponse(ctx context.Context, domain, service string, data map[string]any) (*ServiceResponse, error) {
	if data == nil {
		data = map[string]any{}
	}

	query := url.Values{}
	query.Set("return_response", "true")

	var resp ServiceResponse
	if err := c.post(ctx, "/services/"+domain+"/"+service, query, data, &resp); err != nil {
		return nil, fmt.Errorf("call service %s.%s: %w", domain, service, err)
	}
	return &resp, nil
}

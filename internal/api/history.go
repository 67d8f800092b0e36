package api

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/shbatm/ha-mcp-sub001/internal/model"
)

// HistoryQuery filters a history request.
type HistoryQuery struct {
	EntityIDs              []string
	EndTime                time.Time
	MinimalResponse        bool
	SignificantChangesOnly bool
}

// GetHistory fetches state history since start. The start time rides in the
// path, everything else in the query. Results are grouped per entity.
func (c *Client) GetHistory(ctx context.Context, start time.Time, q HistoryQuery) ([][]model.EntityState, error) {
	query := url.Values{}
	if len(q.EntityIDs) > 0 {
		query.Set("filter_entity_id", strings.Join(q.EntityIDs, ","))
	}
	if !q.EndTime.IsZero() {
		query.Set("end_time", q.EndTime.UTC().Format(time.RFC3339))
	}
	if q.MinimalResponse {
		query.Set("minimal_response", "true")
	}
	if q.SignificantChangesOnly {
		query.Set("significant_changes_only", "true")
	}

	path := "/history/period/" + start.UTC().Format(time.RFC3339)

	var history [][]model.EntityState
	if err := c.get(ctx, path, query, &history); err != nil {
		return nil, fmt.Errorf("get history: %w", err)
	}
	return history, nil
}

// GetLogbook fetches logbook entries since start, optionally filtered to one
// entity.
func (c *Client) GetLogbook(ctx context.Context, start time.Time, entityID string) ([]LogbookEntry, error) {
	query := url.Values{}
	if entityID != "" {
		query.Set("entity", entityID)
	}

	path := "/logbook/" + start.UTC().Format(time.RFC3339)

	var entries []LogbookEntry
	if err := c.get(ctx, path, query, &entries); err != nil {
		return nil, fmt.Errorf("get logbook: %w", err)
	}
	return entries, nil
}

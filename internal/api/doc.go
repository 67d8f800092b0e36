// Package api provides the Home Assistant REST API client.
//
// Endpoints are rooted at <base>/api and authenticated with a long-lived
// access token. The WebSocket event interface lives in internal/connection;
// this package covers the request/response surface:
//
//   - /states, /states/<entity_id> (read and write)
//   - /services, /services/<domain>/<service>
//   - /config, / (API check)
//   - /history/period/<start>, /logbook/<start>
package api

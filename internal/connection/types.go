package connection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shbatm/ha-mcp-sub001/internal/model"
)

// Errors
var (
	ErrNotConnected     = errors.New("not connected")
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrAuthRequired     = errors.New("did not receive auth_required")
	ErrAuthTimeout      = errors.New("authentication timeout")
	ErrInvalidAuth      = errors.New("authentication failed: invalid token")
	ErrCommandTimeout   = errors.New("command timeout")
	ErrConnectionClosed = errors.New("connection closed")
	ErrPendingExists    = errors.New("correlation id already registered")
	ErrNoSubscriptionID = errors.New("no subscription id in response")
)

// Conn is the connection surface the Manager hands out. *Client is the
// production implementation; tests substitute fakes through the Manager's
// factory.
type Conn interface {
	// Connect opens the transport and runs the authentication handshake.
	Connect(ctx context.Context) error

	// Disconnect tears the connection down. Idempotent.
	Disconnect()

	// IsAuthenticated reports whether the handshake has completed.
	IsAuthenticated() bool

	// SendCommand sends a correlated command and waits for its response.
	SendCommand(ctx context.Context, cmdType string, params map[string]any) (*CommandResult, error)

	// SubscribeEvents subscribes to server-pushed events. Empty eventType
	// subscribes to all events.
	SubscribeEvents(ctx context.Context, eventType string) (int64, error)

	// AddEventHandler registers a handler for an event type.
	AddEventHandler(eventType string, h EventHandler) HandlerID

	// RemoveEventHandler removes a previously registered handler.
	RemoveEventHandler(eventType string, id HandlerID)

	// Ping checks connection health with a protocol-level ping command.
	Ping(ctx context.Context) error
}

// Message is the wire unit in both directions: JSON text frames carrying an
// optional correlation id, a type, and type-dependent payload fields.
type Message struct {
	ID      int64           `json:"id,omitempty"`
	Type    string          `json:"type"`
	Success *bool           `json:"success,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ErrorInfo      `json:"error,omitempty"`
	Event   json.RawMessage `json:"event,omitempty"`
}

// ErrorInfo is the error object inside a failed result frame.
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// CommandError is a server-reported command failure (result frame with
// success=false). The Message field carries the server-provided text.
type CommandError struct {
	Code    string
	Message string
}

func (e *CommandError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("command failed: %s (%s)", e.Message, e.Code)
	}
	return "command failed: " + e.Message
}

// CommandResult is a normalized successful command response.
type CommandResult struct {
	Type    string          // "result", "pong", or a passed-through type
	Success bool            // True unless the server explicitly said otherwise
	Result  json.RawMessage // Raw result payload, nil for pong
}

// EventHandler receives decoded server-pushed events. Handlers run on the
// receive goroutine and must not block; panics are isolated per handler.
type EventHandler func(ev model.Event)

// HandlerID identifies a registered event handler for removal.
type HandlerID int64

// ClientConfig configures a WebSocket client.
type ClientConfig struct {
	BaseURL          string        // Home Assistant base URL (http(s)://host[:port][/path])
	Token            string        // Long-lived access token
	HandshakeTimeout time.Duration // WebSocket upgrade timeout
	AuthTimeout      time.Duration // Wait for auth_required / auth_ok
	AuthInvalidGrace time.Duration // Extra wait for auth_invalid after auth_ok missed
	CommandTimeout   time.Duration // Per-command response timeout
	PingInterval     time.Duration // Keep-alive ping interval
	PingTimeout      time.Duration // Pong wait beyond the interval before the link is dead
	WriteTimeout     time.Duration // Write deadline for sends
	MaxFrameSize     int64         // Read limit; large catalog responses need headroom
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		HandshakeTimeout: 10 * time.Second,
		AuthTimeout:      5 * time.Second,
		AuthInvalidGrace: 1 * time.Second,
		CommandTimeout:   30 * time.Second,
		PingInterval:     30 * time.Second,
		PingTimeout:      10 * time.Second,
		WriteTimeout:     10 * time.Second,
		MaxFrameSize:     20 << 20, // 20MB: catalog-style listings can be several MB
	}
}

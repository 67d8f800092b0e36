package connection

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/shbatm/ha-mcp-sub001/internal/model"
)

// Client is a persistent WebSocket connection to Home Assistant. It owns the
// transport and the background receive goroutine, runs the authentication
// handshake, and multiplexes concurrent commands and server-pushed events
// over the single connection. Many callers may share one Client; writes are
// serialized and each caller waits on its own completion value.
type Client struct {
	cfg    ClientConfig
	logger *slog.Logger
	state  *State

	// Lifecycle. conn, cancel, and done are set together on connect and
	// cleared together on disconnect.
	mu     sync.Mutex
	conn   *websocket.Conn
	cancel context.CancelFunc
	done   chan struct{}

	// Write serialization: two concurrent senders never interleave frames.
	writeMu sync.Mutex
}

var _ Conn = (*Client)(nil)

// NewClient creates a new WebSocket client. A nil logger uses slog.Default().
func NewClient(cfg ClientConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:    cfg,
		logger: logger,
		state:  NewState(),
	}
}

// WebSocketURL derives the WebSocket endpoint from a base URL. A base with a
// non-root path (reverse proxy layouts like http://supervisor/core) keeps its
// path and gains "/websocket"; a root-path base uses the well-known
// "/api/websocket". http maps to ws and https to wss.
func WebSocketURL(base string) (string, error) {
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return "", fmt.Errorf("parse base url %q: %w", base, err)
	}

	var scheme string
	switch u.Scheme {
	case "https", "wss":
		scheme = "wss"
	case "http", "ws":
		scheme = "ws"
	default:
		return "", fmt.Errorf("unsupported scheme %q in base url %q", u.Scheme, base)
	}

	if path := strings.TrimRight(u.Path, "/"); path != "" {
		return scheme + "://" + u.Host + path + "/websocket", nil
	}
	return scheme + "://" + u.Host + "/api/websocket", nil
}

// Connect opens the WebSocket transport and performs the authentication
// handshake: wait for auth_required, send the access token, wait for auth_ok.
// Any existing connection is torn down first. On any failure the client is
// fully disconnected before the error is returned, so no socket or goroutine
// is left behind.
func (c *Client) Connect(ctx context.Context) error {
	wsURL, err := WebSocketURL(c.cfg.BaseURL)
	if err != nil {
		return err
	}

	c.Disconnect()
	c.state.setPhase(PhaseConnecting)

	c.logger.Info("connecting to home assistant websocket", "url", wsURL)

	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.cfg.Token)

	dialer := websocket.Dialer{
		HandshakeTimeout: c.cfg.HandshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, wsURL, header)
	if err != nil {
		c.state.Reset()
		return fmt.Errorf("dial %s: %w", wsURL, err)
	}

	conn.SetReadLimit(c.cfg.MaxFrameSize)

	// Liveness: pings every PingInterval, read deadline slides on any pong
	// (or server ping). A dead link surfaces as a read timeout.
	pongWait := c.cfg.PingInterval + c.cfg.PingTimeout
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	c.mu.Lock()
	c.conn = conn
	c.cancel = cancel
	c.done = done
	c.mu.Unlock()

	c.state.setPhase(PhaseConnected)

	go c.receiveLoop(conn, done)
	go c.heartbeatLoop(runCtx, conn)

	if _, ok := c.waitForHandshake(ctx, "auth_required", c.cfg.AuthTimeout); !ok {
		c.Disconnect()
		if err := ctx.Err(); err != nil {
			return err
		}
		return ErrAuthRequired
	}

	if err := c.sendJSON(map[string]any{"type": "auth", "access_token": c.cfg.Token}); err != nil {
		c.Disconnect()
		return fmt.Errorf("send auth: %w", err)
	}

	if _, ok := c.waitForHandshake(ctx, "auth_ok", c.cfg.AuthTimeout); !ok {
		_, invalid := c.waitForHandshake(ctx, "auth_invalid", c.cfg.AuthInvalidGrace)
		c.Disconnect()
		if err := ctx.Err(); err != nil {
			return err
		}
		if invalid {
			return ErrInvalidAuth
		}
		return ErrAuthTimeout
	}

	c.state.setPhase(PhaseAuthenticated)
	c.logger.Info("websocket connected and authenticated", "url", wsURL)
	return nil
}

// Disconnect stops the receive goroutine, closes the transport, and resets
// connection state, cancelling every outstanding command. Safe to call when
// already disconnected, and safe to call more than once.
func (c *Client) Disconnect() {
	c.mu.Lock()
	conn := c.conn
	cancel := c.cancel
	done := c.done
	c.conn = nil
	c.cancel = nil
	c.done = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		conn.Close()
	}
	if done != nil {
		<-done
	}

	c.state.Reset()
	if conn != nil {
		c.logger.Info("websocket disconnected")
	}
}

// Phase returns the current connection phase.
func (c *Client) Phase() Phase {
	return c.state.Phase()
}

// IsAuthenticated reports whether the connection is up and the handshake has
// completed.
func (c *Client) IsAuthenticated() bool {
	return c.state.Phase() == PhaseAuthenticated
}

// WSURL returns the WebSocket endpoint this client connects to.
func (c *Client) WSURL() (string, error) {
	return WebSocketURL(c.cfg.BaseURL)
}

// SendCommand sends a command with the next correlation id and waits for the
// matching response, up to the command timeout. Params are merged flat into
// the envelope alongside id and type.
//
// Server failures (success=false) surface as *CommandError carrying the
// server's message. A missing response surfaces as ErrCommandTimeout.
// Disconnection while waiting surfaces as ErrConnectionClosed.
func (c *Client) SendCommand(ctx context.Context, cmdType string, params map[string]any) (*CommandResult, error) {
	if c.state.Phase() != PhaseAuthenticated {
		return nil, ErrNotAuthenticated
	}
	return c.sendWithID(ctx, c.state.NextID(), cmdType, params)
}

func (c *Client) sendWithID(ctx context.Context, id int64, cmdType string, params map[string]any) (*CommandResult, error) {
	ch, err := c.state.RegisterPending(id)
	if err != nil {
		return nil, err
	}

	envelope := make(map[string]any, len(params)+2)
	for k, v := range params {
		envelope[k] = v
	}
	envelope["id"] = id
	envelope["type"] = cmdType

	if err := c.sendJSON(envelope); err != nil {
		c.state.CancelPending(id)
		return nil, err
	}

	// Wait for the response outside the write lock so slow commands do not
	// block other senders.
	select {
	case <-ctx.Done():
		c.state.CancelPending(id)
		return nil, ctx.Err()
	case <-time.After(c.cfg.CommandTimeout):
		c.state.CancelPending(id)
		return nil, fmt.Errorf("%s: %w", cmdType, ErrCommandTimeout)
	case msg, ok := <-ch:
		if !ok {
			return nil, fmt.Errorf("%s: %w", cmdType, ErrConnectionClosed)
		}
		return c.normalize(msg)
	}
}

// normalize maps a raw response frame to a CommandResult or error.
func (c *Client) normalize(msg Message) (*CommandResult, error) {
	switch msg.Type {
	case "result":
		if msg.Success != nil && !*msg.Success {
			cerr := &CommandError{}
			if msg.Error != nil {
				cerr.Code = msg.Error.Code
				cerr.Message = msg.Error.Message
			}
			return nil, cerr
		}
		return &CommandResult{Type: "result", Success: true, Result: msg.Result}, nil

	case "pong":
		return &CommandResult{Type: "pong", Success: true}, nil

	default:
		c.logger.Warn("unexpected response type", "type", msg.Type, "id", msg.ID)
		success := true
		if msg.Success != nil {
			success = *msg.Success
		}
		return &CommandResult{Type: msg.Type, Success: success, Result: msg.Result}, nil
	}
}

// SubscribeEvents subscribes to server-pushed events, all of them when
// eventType is empty. Returns the numeric subscription id from the result.
func (c *Client) SubscribeEvents(ctx context.Context, eventType string) (int64, error) {
	params := map[string]any{}
	if eventType != "" {
		params["event_type"] = eventType
	}

	res, err := c.SendCommand(ctx, "subscribe_events", params)
	if err != nil {
		return 0, err
	}

	var body struct {
		Subscription *int64 `json:"subscription"`
	}
	if len(res.Result) > 0 {
		if err := json.Unmarshal(res.Result, &body); err != nil {
			return 0, fmt.Errorf("decode subscription result: %w", err)
		}
	}
	if body.Subscription == nil {
		return 0, ErrNoSubscriptionID
	}
	return *body.Subscription, nil
}

// RenderTemplate renders a Jinja template on the server. The rendered value
// arrives as a follow-up event reusing the command's id, so the id is parked
// in the render-slot table and the immediate result acknowledgement is
// intentionally left unclaimed. timeout is the server-side render bound;
// zero means 3 seconds.
func (c *Client) RenderTemplate(ctx context.Context, template string, timeout time.Duration) (json.RawMessage, error) {
	if c.state.Phase() != PhaseAuthenticated {
		return nil, ErrNotAuthenticated
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}

	id := c.state.NextID()
	slot, err := c.state.RegisterRenderSlot(id)
	if err != nil {
		return nil, err
	}

	envelope := map[string]any{
		"id":            id,
		"type":          "render_template",
		"template":      template,
		"timeout":       int(timeout.Seconds()),
		"report_errors": true,
	}
	if err := c.sendJSON(envelope); err != nil {
		c.state.CancelRenderSlot(id)
		return nil, err
	}

	wait := timeout + 3*time.Second
	select {
	case <-ctx.Done():
		c.state.CancelRenderSlot(id)
		return nil, ctx.Err()
	case <-time.After(wait):
		c.state.CancelRenderSlot(id)
		return nil, fmt.Errorf("render_template: %w", ErrCommandTimeout)
	case msg, ok := <-slot:
		if !ok {
			return nil, fmt.Errorf("render_template: %w", ErrConnectionClosed)
		}
		var ev struct {
			Result json.RawMessage `json:"result"`
			Error  string          `json:"error"`
		}
		if err := json.Unmarshal(msg.Event, &ev); err != nil {
			return nil, fmt.Errorf("decode render result: %w", err)
		}
		// report_errors routes template failures through the same event.
		if ev.Error != "" {
			return nil, &CommandError{Code: "template_error", Message: ev.Error}
		}
		return ev.Result, nil
	}
}

// AddEventHandler registers a handler for an event type. Handlers survive
// reconnects; the returned id removes this registration.
func (c *Client) AddEventHandler(eventType string, h EventHandler) HandlerID {
	return c.state.AddEventHandler(eventType, h)
}

// RemoveEventHandler removes a handler registration.
func (c *Client) RemoveEventHandler(eventType string, id HandlerID) {
	c.state.RemoveEventHandler(eventType, id)
}

// Ping sends a protocol-level ping and verifies the pong.
func (c *Client) Ping(ctx context.Context) error {
	res, err := c.SendCommand(ctx, "ping", nil)
	if err != nil {
		return err
	}
	if res.Type != "pong" {
		return fmt.Errorf("unexpected ping response type %q", res.Type)
	}
	return nil
}

// GetStates fetches all entity states.
func (c *Client) GetStates(ctx context.Context) ([]model.EntityState, error) {
	res, err := c.SendCommand(ctx, "get_states", nil)
	if err != nil {
		return nil, err
	}
	var states []model.EntityState
	if err := json.Unmarshal(res.Result, &states); err != nil {
		return nil, fmt.Errorf("decode states: %w", err)
	}
	return states, nil
}

// GetConfig fetches the instance configuration.
func (c *Client) GetConfig(ctx context.Context) (*model.HAConfig, error) {
	res, err := c.SendCommand(ctx, "get_config", nil)
	if err != nil {
		return nil, err
	}
	var cfg model.HAConfig
	if err := json.Unmarshal(res.Result, &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// CallService invokes a Home Assistant service. data and target are optional.
func (c *Client) CallService(ctx context.Context, domain, service string, data map[string]any, target *model.ServiceTarget) (*CommandResult, error) {
	params := map[string]any{
		"domain":  domain,
		"service": service,
	}
	if len(data) > 0 {
		params["service_data"] = data
	}
	if target != nil {
		params["target"] = target
	}
	return c.SendCommand(ctx, "call_service", params)
}

// sendJSON marshals and writes one frame under the write lock.
func (c *Client) sendJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	return c.send(data)
}

func (c *Client) send(data []byte) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

// waitForHandshake polls the handshake mailbox for msgType until it appears
// or the timeout elapses.
func (c *Client) waitForHandshake(ctx context.Context, msgType string, timeout time.Duration) (Message, bool) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()

	for {
		if msg, ok := c.state.ConsumeHandshake(msgType); ok {
			return msg, true
		}
		select {
		case <-ctx.Done():
			return Message{}, false
		case <-deadline.C:
			return Message{}, false
		case <-tick.C:
		}
	}
}

// receiveLoop reads frames in arrival order and dispatches until the
// transport closes. Closure, expected or not, drops the connection to
// Disconnected and cancels all outstanding completions before exit.
func (c *Client) receiveLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	defer c.state.Reset()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Info("websocket connection closed")
			} else {
				c.logger.Warn("websocket read ended", "error", err)
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Error("skipping undecodable frame", "error", err)
			continue
		}

		c.dispatch(msg)
	}
}

// dispatch routes one frame. Priority: handshake mailbox, then pending
// requests by id (even for event frames), then render slots, then handler
// fan-out for events.
func (c *Client) dispatch(msg Message) {
	switch msg.Type {
	case "auth_required", "auth_ok", "auth_invalid":
		c.state.StoreHandshake(msg)
		return
	}

	if msg.ID != 0 && c.state.ResolvePending(msg.ID, msg) {
		return
	}

	if msg.Type == "event" {
		if msg.ID != 0 && c.state.ResolveRenderSlot(msg.ID, msg) {
			return
		}
		c.fanOut(msg)
		return
	}

	c.logger.Debug("unhandled message", "type", msg.Type, "id", msg.ID)
}

// fanOut delivers an event to a frozen snapshot of the handlers registered
// for its event type. One handler's panic never stops delivery to the rest.
func (c *Client) fanOut(msg Message) {
	var ev model.Event
	if err := json.Unmarshal(msg.Event, &ev); err != nil {
		c.logger.Error("skipping undecodable event payload", "error", err)
		return
	}
	if ev.EventType == "" {
		return
	}

	for _, h := range c.state.Handlers(ev.EventType) {
		c.invoke(h, ev)
	}
}

func (c *Client) invoke(h EventHandler, ev model.Event) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("event handler panicked", "event_type", ev.EventType, "panic", r)
		}
	}()
	h(ev)
}

// heartbeatLoop sends keep-alive pings until the connection is torn down.
func (c *Client) heartbeatLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deadline := time.Now().Add(c.cfg.WriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.logger.Debug("keepalive ping failed", "error", err)
				return
			}
		}
	}
}

package wsapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"autotrader/pkg/exchanges/common"
)

// State is the connection lifecycle state. Transitions are single-writer: only
// Connect, the read loop's failure path, the reconnect loop, and Close move it.
type State string

const (
	StateDisconnected State = "DISCONNECTED"
	StateConnecting   State = "CONNECTING"
	StateConnected    State = "CONNECTED"
	StateReconnecting State = "RECONNECTING"
	StateClosed       State = "CLOSED"
)

// Config holds connection settings for the ws-api client.
type Config struct {
	URL       string
	APIKey    string
	APISecret string

	RequestTimeout       time.Duration // default 10s
	HeartbeatInterval    time.Duration // default 20s
	ReconnectBaseDelay   time.Duration // default 1s
	ReconnectMaxDelay    time.Duration // default 30s
	MaxReconnectAttempts int           // default 10
}

func (c *Config) withDefaults() {
	if c.URL == "" {
		c.URL = "wss://ws-api.binance.com:9443/ws-api/v3"
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 10 * time.Second
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 20 * time.Second
	}
	if c.ReconnectBaseDelay <= 0 {
		c.ReconnectBaseDelay = time.Second
	}
	if c.ReconnectMaxDelay <= 0 {
		c.ReconnectMaxDelay = 30 * time.Second
	}
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = 10
	}
}

// Client owns one persistent multiplexed ws-api connection: it correlates
// replies with callers, keeps the heartbeat, reconnects with backoff, and fails
// over pending work on loss.
type Client struct {
	cfg         Config
	signer      *Signer
	timeSync    *common.TimeSync
	rateLimiter *common.RateLimiter
	dialer      *websocket.Dialer
	corr        *correlator

	mu          sync.Mutex // guards conn, state, streams, onReconnect, reconnecting
	conn        *websocket.Conn
	state       State
	streams     map[string][]StreamHandler
	onReconnect []func(context.Context)
	reconnecting bool

	writeMu  sync.Mutex
	lastPong time.Time
	pongMu   sync.Mutex

	rootCtx context.Context
	cancel  context.CancelFunc
	loops   sync.Once
}

// NewClient builds a client. Credentials are optional; privileged calls without
// them fail with a configuration error before touching the network.
func NewClient(cfg Config) (*Client, error) {
	cfg.withDefaults()

	var signer *Signer
	if cfg.APIKey != "" || cfg.APISecret != "" {
		s, err := NewSigner(cfg.APIKey, cfg.APISecret)
		if err != nil {
			return nil, err
		}
		signer = s
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		cfg:         cfg,
		signer:      signer,
		rateLimiter: common.NewRateLimiter(6000, time.Minute),
		dialer:      websocket.DefaultDialer,
		corr:        newCorrelator(),
		state:       StateDisconnected,
		streams:     make(map[string][]StreamHandler),
		rootCtx:     ctx,
		cancel:      cancel,
	}
	c.timeSync = common.NewTimeSync(func(ctx context.Context) (int64, error) {
		return c.ServerTime(ctx)
	})
	return c, nil
}

// Connect establishes the connection and starts the background loops.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateClosed:
		c.mu.Unlock()
		return common.NewConnectionError("client is closed", nil)
	case StateConnected:
		c.mu.Unlock()
		return nil
	}
	c.state = StateConnecting
	c.mu.Unlock()

	conn, _, err := c.dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		c.mu.Lock()
		c.state = StateDisconnected
		c.mu.Unlock()
		return common.NewConnectionError("dial "+c.cfg.URL, err)
	}

	c.adopt(conn)
	c.mu.Lock()
	c.state = StateConnected
	c.mu.Unlock()

	c.loops.Do(func() {
		go c.heartbeatLoop()
		go c.sweepLoop()
	})

	log.Printf("wsapi: connected to %s", c.cfg.URL)
	return nil
}

// adopt installs a fresh transport and starts its read loop.
func (c *Client) adopt(conn *websocket.Conn) {
	c.pongMu.Lock()
	c.lastPong = time.Now()
	c.pongMu.Unlock()

	conn.SetPongHandler(func(string) error {
		c.pongMu.Lock()
		c.lastPong = time.Now()
		c.pongMu.Unlock()
		return nil
	})

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	go c.readLoop(conn)
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// PendingCount reports in-flight request count; zero after any drain.
func (c *Client) PendingCount() int {
	return c.corr.size()
}

// RateLimitUsage exposes the venue-reported request weight usage.
func (c *Client) RateLimitUsage() (used, limit int, pct float64) {
	return c.rateLimiter.Usage()
}

// OnReconnect registers a hook run after every successful reconnection, once
// subscriptions are re-established. Hooks run before the next heartbeat tick
// and may issue requests on the client.
func (c *Client) OnReconnect(fn func(context.Context)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onReconnect = append(c.onReconnect, fn)
}

// Do submits one correlated request and waits for its completion. The request
// carries a deadline (Config.RequestTimeout); on expiry it resolves with a
// timeout error and is never retried, to avoid duplicate order submission.
func (c *Client) Do(ctx context.Context, method string, params map[string]any, signed bool) (json.RawMessage, error) {
	var body any
	if signed {
		if c.signer == nil {
			return nil, common.NewConfigError("privileged call " + method + " requires api credentials")
		}
		cloned := make(map[string]any, len(params)+3)
		for k, v := range params {
			cloned[k] = v
		}
		body = c.signer.Authorize(cloned, c.timeSync.Now())
	} else if len(params) > 0 {
		body = params
	}
	return c.do(ctx, method, body)
}

func (c *Client) do(ctx context.Context, method string, params any) (json.RawMessage, error) {
	c.mu.Lock()
	state := c.state
	conn := c.conn
	c.mu.Unlock()

	if state != StateConnected || conn == nil {
		// Fail fast rather than queue: callers decide whether to retry after
		// reconciliation has finished.
		return nil, common.NewConnectionError(fmt.Sprintf("not connected (state %s)", state), nil)
	}

	p := c.corr.register(c.cfg.RequestTimeout)
	req := request{ID: p.id, Method: method, Params: params}

	c.writeMu.Lock()
	err := conn.WriteJSON(req)
	c.writeMu.Unlock()
	if err != nil {
		c.corr.abandon(p.id)
		c.transportFailed(conn, err)
		return nil, common.NewConnectionError("write "+method, err)
	}

	select {
	case out := <-p.done:
		return out.result, out.err
	case <-ctx.Done():
		c.corr.abandon(p.id)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, common.NewTimeoutError(method + ": caller deadline exceeded")
		}
		return nil, ctx.Err()
	}
}

// readLoop parses inbound frames for one transport until it dies.
func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			c.transportFailed(conn, err)
			return
		}

		var f frame
		if err := json.Unmarshal(msg, &f); err != nil {
			log.Printf("wsapi: drop undecodable frame: %v", err)
			continue
		}

		switch {
		case f.ID != nil:
			c.rateLimiter.Update(f.RateLimits)
			var outcome error
			if f.Error != nil {
				outcome = common.NewRemoteError(f.Error.Code, f.Error.Msg)
			}
			if !c.corr.resolve(*f.ID, f.Result, outcome) {
				log.Printf("wsapi: discard reply for unknown or already-resolved id %d", *f.ID)
			}
		case f.Stream != "":
			c.dispatch(f.Stream, f.Data)
		default:
			log.Printf("wsapi: drop frame with neither id nor stream")
		}
	}
}

// dispatch fans a push update out to the stream's handlers. A panicking handler
// must not break correlation for other messages.
func (c *Client) dispatch(stream string, data json.RawMessage) {
	c.mu.Lock()
	handlers := append([]StreamHandler(nil), c.streams[stream]...)
	c.mu.Unlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("wsapi: stream %s handler panic: %v", stream, r)
				}
			}()
			h(stream, data)
		}()
	}
}

// transportFailed moves to RECONNECTING, drains every pending completion with a
// connection error so no caller is left waiting, and kicks off the reconnect
// loop. Stale transports and explicit shutdown are ignored.
func (c *Client) transportFailed(conn *websocket.Conn, cause error) {
	c.mu.Lock()
	if c.state == StateClosed || c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.state = StateReconnecting
	alreadyReconnecting := c.reconnecting
	c.reconnecting = true
	c.mu.Unlock()

	_ = conn.Close()
	drained := c.corr.failAll(common.NewConnectionError("connection lost", cause))
	log.Printf("wsapi: connection lost (%v), drained %d pending requests", cause, drained)

	if !alreadyReconnecting {
		go c.reconnectLoop()
	}
}

// reconnectLoop retries with exponential backoff up to the configured cap.
// Reconnection strictly precedes re-subscription, which strictly precedes the
// reconnect hooks; normal submissions resume only once state is CONNECTED.
func (c *Client) reconnectLoop() {
	defer func() {
		c.mu.Lock()
		c.reconnecting = false
		c.mu.Unlock()
	}()

	delay := c.cfg.ReconnectBaseDelay
	for attempt := 1; attempt <= c.cfg.MaxReconnectAttempts; attempt++ {
		select {
		case <-c.rootCtx.Done():
			return
		case <-time.After(delay):
		}

		if c.State() == StateClosed {
			return
		}

		dialCtx, cancel := context.WithTimeout(c.rootCtx, 10*time.Second)
		conn, _, err := c.dialer.DialContext(dialCtx, c.cfg.URL, nil)
		cancel()
		if err != nil {
			log.Printf("wsapi: reconnect attempt %d/%d failed: %v", attempt, c.cfg.MaxReconnectAttempts, err)
			delay *= 2
			if delay > c.cfg.ReconnectMaxDelay {
				delay = c.cfg.ReconnectMaxDelay
			}
			continue
		}

		c.adopt(conn)
		c.resubscribe(conn)

		c.mu.Lock()
		c.state = StateConnected
		hooks := append(([]func(context.Context))(nil), c.onReconnect...)
		c.mu.Unlock()

		log.Printf("wsapi: reconnected after %d attempt(s)", attempt)
		for _, h := range hooks {
			h(c.rootCtx)
		}
		return
	}

	log.Printf("wsapi: giving up after %d reconnect attempts", c.cfg.MaxReconnectAttempts)
	c.mu.Lock()
	c.state = StateClosed
	c.mu.Unlock()
	c.corr.failAll(common.NewConnectionError("reconnect attempts exhausted", nil))
}

// resubscribe re-establishes active stream subscriptions on a fresh transport.
// It bypasses Do because state is still RECONNECTING at this point.
func (c *Client) resubscribe(conn *websocket.Conn) {
	c.mu.Lock()
	names := make([]string, 0, len(c.streams))
	for name := range c.streams {
		names = append(names, name)
	}
	c.mu.Unlock()

	if len(names) == 0 {
		return
	}

	p := c.corr.register(c.cfg.RequestTimeout)
	c.writeMu.Lock()
	err := conn.WriteJSON(request{ID: p.id, Method: "SUBSCRIBE", Params: names})
	c.writeMu.Unlock()
	if err != nil {
		c.corr.abandon(p.id)
		log.Printf("wsapi: resubscribe write failed: %v", err)
		return
	}
	// Reply arrives on the read loop; waiting here would be pointless since a
	// failure is handled the same way either path.
	go func() {
		if out := <-p.done; out.err != nil {
			log.Printf("wsapi: resubscribe %v failed: %v", names, out.err)
		}
	}()
}

// Subscribe registers a handler for each stream and sends the subscription.
func (c *Client) Subscribe(ctx context.Context, streams []string, h StreamHandler) error {
	c.mu.Lock()
	for _, s := range streams {
		c.streams[s] = append(c.streams[s], h)
	}
	c.mu.Unlock()

	_, err := c.do(ctx, "SUBSCRIBE", streams)
	return err
}

// heartbeatLoop pings on a fixed interval and forces a reconnect when pongs go
// missing. It runs on its own schedule and is never starved by slow calls.
func (c *Client) heartbeatLoop() {
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.rootCtx.Done():
			return
		case <-ticker.C:
		}

		c.mu.Lock()
		conn := c.conn
		state := c.state
		c.mu.Unlock()
		if state != StateConnected || conn == nil {
			continue
		}

		c.pongMu.Lock()
		stale := time.Since(c.lastPong) > 2*c.cfg.HeartbeatInterval+5*time.Second
		c.pongMu.Unlock()
		if stale {
			c.transportFailed(conn, errors.New("heartbeat: pong overdue"))
			continue
		}

		if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
			c.transportFailed(conn, fmt.Errorf("heartbeat: %w", err))
		}
	}
}

// sweepLoop expires overdue pending completions.
func (c *Client) sweepLoop() {
	interval := c.cfg.RequestTimeout / 4
	if interval > time.Second {
		interval = time.Second
	}
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.rootCtx.Done():
			return
		case now := <-ticker.C:
			if n := c.corr.expireOverdue(now, common.NewTimeoutError("request deadline exceeded")); n > 0 {
				log.Printf("wsapi: expired %d overdue request(s)", n)
			}
		}
	}
}

// StartTimeSync begins periodic clock synchronization with the venue.
func (c *Client) StartTimeSync(ctx context.Context) {
	c.timeSync.Start(ctx)
}

// Close shuts the client down: cancels background loops, resolves all pending
// completions with a closed error, and releases the transport. Terminal.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return nil
	}
	c.state = StateClosed
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	c.cancel()
	drained := c.corr.failAll(common.NewConnectionError("client closed", nil))
	if drained > 0 {
		log.Printf("wsapi: close drained %d pending request(s)", drained)
	}

	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = conn.Close()
	}
	log.Printf("wsapi: closed")
	return nil
}

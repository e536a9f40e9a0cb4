// Package bridge implements the command bridge client: one Client per
// channel, owning the websocket to the relay, the correlation table for
// in-flight commands, and the progress relay for observers.
//
// Concurrency model: a single read loop per connection routes every incoming
// frame. Dispatchers only ever insert into the correlation table; the read
// loop and the timeout sweep resolve and remove. gorilla/websocket forbids
// concurrent writers, so all writes serialize through writeMu.
package bridge

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/glyphworks/canvasbridge/internal/logger"
	"github.com/glyphworks/canvasbridge/internal/metrics"
	"github.com/glyphworks/canvasbridge/internal/wire"
	"github.com/gorilla/websocket"
)

// State is the connection state of a channel.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// StatusObserver receives connection-state transitions. Display-only: the
// bridge functions identically with zero observers registered.
type StatusObserver func(channel string, state State)

// Config holds per-client bridge settings.
type Config struct {
	// RelayURL is the websocket URL of the relay, e.g. "ws://localhost:3055/ws".
	RelayURL string

	// AutoReconnect enables backoff redial after an unexpected drop.
	AutoReconnect bool

	// ReconnectInitial is the first backoff delay.
	ReconnectInitial time.Duration

	// ReconnectMax caps the exponential backoff.
	ReconnectMax time.Duration

	// MaxReconnectAttempts bounds redials per drop; 0 means unlimited.
	MaxReconnectAttempts int

	// DefaultTimeout applies to Execute calls whose context carries no
	// deadline. Zero means wait until drop or explicit disconnect.
	DefaultTimeout time.Duration

	// HandshakeTimeout bounds the dial plus join handshake.
	HandshakeTimeout time.Duration

	// WriteTimeout bounds each frame write.
	WriteTimeout time.Duration

	// PingInterval is the keepalive ping cadence. Zero disables pings.
	PingInterval time.Duration
}

// DefaultConfig returns sane defaults.
func DefaultConfig() Config {
	return Config{
		RelayURL:         "ws://localhost:3055/ws",
		AutoReconnect:    true,
		ReconnectInitial: time.Second,
		ReconnectMax:     30 * time.Second,
		DefaultTimeout:   60 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     10 * time.Second,
		PingInterval:     30 * time.Second,
	}
}

// Client is the bridge for one channel. Create with NewClient, connect with
// Connect, dispatch with Execute. A Client may be reconnected after a drop
// but stays bound to its channel for life: the plugin-side execution context
// dies with a socket, so a reconnect starts a fresh exchange, never a
// resumed one.
type Client struct {
	cfg     Config
	channel string

	conn    *websocket.Conn
	connMu  sync.RWMutex
	writeMu sync.Mutex

	// connectMu serializes Connect calls. Without it two concurrent joins
	// could both dial and the loser's socket would leak along with a ghost
	// relay membership.
	connectMu sync.Mutex

	state         atomic.Int32
	autoReconnect atomic.Bool
	closing       atomic.Bool // set by Disconnect to suppress reconnection

	pending  *pendingTable
	progress *progressRelay

	statusMu  sync.RWMutex
	statusObs []StatusObserver

	// generation increments on every successful connect so read loops and
	// sweepers left over from a previous socket cannot act on the new one.
	generation atomic.Int64
}

// NewClient creates a bridge client for the given channel. The channel
// identifier is opaque to the bridge; the relay scopes traffic by it.
func NewClient(channel string, cfg Config) *Client {
	if cfg.ReconnectInitial <= 0 {
		cfg.ReconnectInitial = time.Second
	}
	if cfg.ReconnectMax <= 0 {
		cfg.ReconnectMax = 30 * time.Second
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}

	c := &Client{
		cfg:      cfg,
		channel:  channel,
		pending:  newPendingTable(),
		progress: newProgressRelay(),
	}
	c.state.Store(int32(StateDisconnected))
	c.autoReconnect.Store(cfg.AutoReconnect)
	return c
}

// Channel returns the channel identifier this client is bound to.
func (c *Client) Channel() string { return c.channel }

// State returns the current connection state.
func (c *Client) State() State {
	return State(c.state.Load())
}

// PendingCount returns the number of in-flight commands.
func (c *Client) PendingCount() int {
	return c.pending.len()
}

// OnStatus registers an observer for connection-state transitions.
func (c *Client) OnStatus(fn StatusObserver) {
	c.statusMu.Lock()
	defer c.statusMu.Unlock()
	c.statusObs = append(c.statusObs, fn)
}

// OnProgress registers a channel-wide progress observer. Channel-wide
// observers survive reconnects; per-command observers (see Execute options)
// are released when their command resolves.
func (c *Client) OnProgress(fn ProgressObserver) {
	c.progress.observeAll(fn)
}

// ApplySettings handles an init_settings payload from the UI boundary.
func (c *Client) ApplySettings(s *wire.Settings) {
	if s == nil {
		return
	}
	c.autoReconnect.Store(s.AutoReconnect)
	logger.Info("channel %s: auto_reconnect set to %v", c.channel, s.AutoReconnect)
}

func (c *Client) setState(s State) {
	old := State(c.state.Swap(int32(s)))
	if old == s {
		return
	}
	metrics.RecordTransition(s.String())

	c.statusMu.RLock()
	observers := make([]StatusObserver, len(c.statusObs))
	copy(observers, c.statusObs)
	c.statusMu.RUnlock()

	for _, fn := range observers {
		fn(c.channel, s)
	}
}

// Connect dials the relay and joins the channel. It transitions
// disconnected -> connecting -> connected; on failure the state returns to
// disconnected. Commands issued while not connected fail fast rather than
// queue.
func (c *Client) Connect(ctx context.Context) error {
	c.connectMu.Lock()
	defer c.connectMu.Unlock()

	if c.State() == StateConnected {
		return nil
	}
	c.closing.Store(false)
	c.setState(StateConnecting)

	conn, err := c.dial(ctx)
	if err != nil {
		c.setState(StateDisconnected)
		return err
	}
	c.install(conn)
	return nil
}

// install wires a freshly joined connection into the client.
func (c *Client) install(conn *websocket.Conn) {
	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	gen := c.generation.Add(1)
	c.setState(StateConnected)
	logger.Info("channel %s: connected to %s", c.channel, c.cfg.RelayURL)

	go c.readLoop(conn, gen)
	go c.sweepLoop(gen)
	if c.cfg.PingInterval > 0 {
		go c.pingLoop(conn, gen)
	}
}

// dial performs the websocket dial and the join handshake.
func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.HandshakeTimeout}

	conn, _, err := dialer.DialContext(ctx, c.cfg.RelayURL, nil)
	if err != nil {
		return nil, wrapError(KindTransportError, "relay dial failed", err)
	}

	joinBytes, err := wire.Encode(wire.NewJoin(c.channel))
	if err != nil {
		_ = conn.Close()
		return nil, wrapError(KindEncodingError, "failed to encode join", err)
	}
	_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, joinBytes); err != nil {
		_ = conn.Close()
		return nil, wrapError(KindTransportError, "failed to send join", err)
	}

	// Wait for the join ack before declaring the channel usable.
	_ = conn.SetReadDeadline(time.Now().Add(c.cfg.HandshakeTimeout))
	_, data, err := conn.ReadMessage()
	if err != nil {
		_ = conn.Close()
		return nil, wrapError(KindTransportError, "no join ack from relay", err)
	}
	_ = conn.SetReadDeadline(time.Time{})

	ack, err := wire.Decode(data)
	if err != nil {
		_ = conn.Close()
		return nil, wrapError(KindTransportError, "invalid join ack", err)
	}
	if ack.Type != wire.MessageJoin || !ack.OK || ack.Channel != c.channel {
		_ = conn.Close()
		return nil, newError(KindTransportError, "relay refused join for channel "+c.channel)
	}

	return conn, nil
}

// Disconnect tears the connection down on purpose: every pending invocation
// is rejected with ConnectionClosed and auto-reconnect is suppressed for
// this drop.
func (c *Client) Disconnect() {
	c.closing.Store(true)

	c.connMu.Lock()
	conn := c.conn
	c.conn = nil
	c.connMu.Unlock()

	c.setState(StateDisconnected)
	n := c.pending.rejectAll(newError(KindConnectionClosed, "channel disconnected"))
	c.progress.releaseAll()
	if n > 0 {
		logger.Info("channel %s: rejected %d pending commands on disconnect", c.channel, n)
	}

	if conn != nil {
		c.writeMu.Lock()
		_ = conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		c.writeMu.Unlock()
		_ = conn.Close()
	}
}

// Execute dispatches a command on the channel and blocks until the plugin
// resolves it, the deadline passes, or the connection drops. This is the
// only suspension point the bridge exposes to callers.
func (c *Client) Execute(ctx context.Context, command string, params any) (json.RawMessage, error) {
	return c.execute(ctx, command, params, nil)
}

// ExecuteObserved is Execute with a per-command progress observer. The
// observer is released when the command resolves.
func (c *Client) ExecuteObserved(ctx context.Context, command string, params any, obs ProgressObserver) (json.RawMessage, error) {
	return c.execute(ctx, command, params, obs)
}

func (c *Client) execute(ctx context.Context, command string, params any, obs ProgressObserver) (json.RawMessage, error) {
	if c.State() != StateConnected {
		return nil, newError(KindNotConnected, "channel "+c.channel+" is "+c.State().String())
	}

	id := wire.NewCommandID()
	ctx = context.WithValue(ctx, logger.ContextKeyCommandID, id)
	env, err := wire.NewCommandRequest(c.channel, id, command, params)
	if err != nil {
		metrics.RecordCommand(command, string(KindEncodingError), 0)
		return nil, wrapError(KindEncodingError, "cannot serialize parameters for "+command, err)
	}

	timeout := c.cfg.DefaultTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}

	ch, ok := c.pending.register(id, command, timeout)
	if !ok {
		return nil, newError(KindTransportError, "duplicate command id "+id)
	}
	if obs != nil {
		c.progress.observeCommand(id, obs)
	}
	start := time.Now()

	if err := c.send(env); err != nil {
		c.pending.reject(id, err)
		c.progress.releaseCommand(id)
		metrics.RecordCommand(command, string(KindOf(err)), time.Since(start).Seconds())
		return nil, err
	}

	var timerC <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timerC = timer.C
	}

	var res Result
	select {
	case res = <-ch:
	case <-timerC:
		// The reject races a concurrent resolution from the read loop;
		// whichever wins delivers the single result on ch.
		c.pending.reject(id, newError(KindTimeout, command+" timed out after "+timeout.String()))
		res = <-ch
	case <-ctx.Done():
		c.pending.reject(id, wrapError(KindTimeout, command+" abandoned", ctx.Err()))
		res = <-ch
	}
	c.progress.releaseCommand(id)

	status := "success"
	if res.Err != nil {
		status = string(KindOf(res.Err))
	}
	metrics.RecordCommand(command, status, time.Since(start).Seconds())

	if res.Err != nil {
		logger.ErrorContext(ctx, "command failed",
			"command", command, "kind", status, "error", res.Err.Error())
		return nil, res.Err
	}
	logger.InfoContext(ctx, "command resolved",
		"command", command, "duration_ms", time.Since(start).Milliseconds())
	return res.Payload, nil
}

// send writes one envelope to the socket.
func (c *Client) send(env *wire.Envelope) error {
	c.connMu.RLock()
	conn := c.conn
	c.connMu.RUnlock()

	if conn == nil {
		return newError(KindNotConnected, "no live connection")
	}

	data, err := wire.Encode(env)
	if err != nil {
		return wrapError(KindEncodingError, "frame encoding failed", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return wrapError(KindTransportError, "frame write failed", err)
	}
	return nil
}

// readLoop routes incoming frames until the socket dies. All correlation
// table removals and progress deliveries for this channel happen here or in
// the sweeper; no two frames are ever processed concurrently.
func (c *Client) readLoop(conn *websocket.Conn, gen int64) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleDrop(gen, err)
			return
		}

		env, err := wire.Decode(data)
		if err != nil {
			logger.Error("channel %s: dropping malformed frame: %v", c.channel, err)
			continue
		}
		c.route(env)
	}
}

// route demultiplexes one frame. Progress and result are unified on the
// wire: a terminal progress event doubles as the command result, and
// idempotent resolution makes dual delivery a no-op.
func (c *Client) route(env *wire.Envelope) {
	switch env.Type {
	case wire.MessageCommandResult:
		if *env.Success {
			c.resolveCommand(env.ID, env.Result)
		} else {
			c.rejectCommand(env.ID, env.Error)
		}

	case wire.MessageProgressEvent:
		ev := wire.ProgressFromEnvelope(env)
		ev.Received = time.Now()
		c.progress.deliver(ev)

		switch env.Status {
		case wire.StatusCompleted:
			c.resolveCommand(env.ID, env.Result)
		case wire.StatusError:
			c.rejectCommand(env.ID, env.Message)
		}
		// started/in_progress never touch the correlation table.

	case wire.MessageInitSettings:
		c.ApplySettings(env.Settings)

	case wire.MessageJoin:
		// Late ack echo; the handshake already consumed the real one.

	default:
		logger.Error("channel %s: unhandled frame type %s", c.channel, env.Type)
	}
}

func (c *Client) resolveCommand(id string, payload json.RawMessage) {
	if c.pending.resolve(id, payload) {
		c.progress.releaseCommand(id)
	}
	// Unknown or already-resolved ids drop silently: late echoes after
	// resolution or timeout are expected traffic.
}

func (c *Client) rejectCommand(id, message string) {
	if message == "" {
		message = "plugin reported failure"
	}
	if c.pending.reject(id, newError(KindRemoteError, message)) {
		c.progress.releaseCommand(id)
	}
}

// handleDrop reacts to an unexpected socket death. Explicit Disconnect has
// already moved the state away from connected, so the CAS makes this a
// no-op in that case and prevents double handling.
func (c *Client) handleDrop(gen int64, cause error) {
	if gen != c.generation.Load() {
		return
	}
	if !c.state.CompareAndSwap(int32(StateConnected), int32(StateDisconnected)) {
		return
	}
	metrics.RecordTransition(StateDisconnected.String())
	c.notifyState(StateDisconnected)

	c.connMu.Lock()
	conn := c.conn
	c.conn = nil
	c.connMu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}

	n := c.pending.rejectAll(wrapError(KindConnectionClosed, "connection lost", cause))
	c.progress.releaseAll()
	logger.Error("channel %s: connection dropped (%d pending rejected): %v", c.channel, n, cause)

	if !c.closing.Load() && c.autoReconnect.Load() {
		go c.reconnectLoop()
	}
}

// notifyState pushes a transition to observers without changing state (used
// when the state was already swapped via CAS).
func (c *Client) notifyState(s State) {
	c.statusMu.RLock()
	observers := make([]StatusObserver, len(c.statusObs))
	copy(observers, c.statusObs)
	c.statusMu.RUnlock()
	for _, fn := range observers {
		fn(c.channel, s)
	}
}

// reconnectLoop redials with bounded exponential backoff. A successful
// reconnect starts a fresh channel exchange; nothing from the dropped
// socket is resumed.
func (c *Client) reconnectLoop() {
	delay := c.cfg.ReconnectInitial

	for attempt := 1; ; attempt++ {
		if c.closing.Load() || !c.autoReconnect.Load() {
			return
		}
		if c.cfg.MaxReconnectAttempts > 0 && attempt > c.cfg.MaxReconnectAttempts {
			logger.Error("channel %s: giving up after %d reconnect attempts", c.channel, attempt-1)
			c.setState(StateDisconnected)
			return
		}

		time.Sleep(delay)
		if delay *= 2; delay > c.cfg.ReconnectMax {
			delay = c.cfg.ReconnectMax
		}

		metrics.ReconnectAttempts.Inc()
		logger.Info("channel %s: reconnect attempt %d", c.channel, attempt)

		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.HandshakeTimeout)
		err := c.Connect(ctx)
		cancel()
		if err == nil {
			logger.Info("channel %s: reconnected after %d attempts", c.channel, attempt)
			return
		}
		logger.Error("channel %s: reconnect attempt %d failed: %v", c.channel, attempt, err)
	}
}

// sweepLoop rejects pending invocations whose deadline has passed. The
// Execute waiter usually wins this race with its own timer; the sweep covers
// callers abandoned mid-wait.
func (c *Client) sweepLoop(gen int64) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for range ticker.C {
		if gen != c.generation.Load() || c.State() != StateConnected {
			return
		}
		for _, id := range c.pending.expired(time.Now()) {
			if c.pending.reject(id, newError(KindTimeout, "deadline exceeded")) {
				c.progress.releaseCommand(id)
			}
		}
	}
}

// pingLoop keeps the connection alive and detects silent drops: a failed
// ping write closes the socket, which surfaces as a read error in readLoop.
func (c *Client) pingLoop(conn *websocket.Conn, gen int64) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for range ticker.C {
		if gen != c.generation.Load() || c.State() != StateConnected {
			return
		}
		c.writeMu.Lock()
		err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.cfg.WriteTimeout))
		c.writeMu.Unlock()
		if err != nil {
			_ = conn.Close()
			return
		}
	}
}

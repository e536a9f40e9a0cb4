// Package relay implements the websocket relay the bridge and the plugin
// both dial. It owns the join handshake and per-channel frame forwarding;
// command semantics live entirely at the endpoints.
package relay

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/glyphworks/canvasbridge/internal/channel"
	"github.com/glyphworks/canvasbridge/internal/logger"
	"github.com/glyphworks/canvasbridge/internal/metrics"
	"github.com/glyphworks/canvasbridge/internal/validation"
	"github.com/glyphworks/canvasbridge/internal/wire"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// Config holds the relay server settings.
type Config struct {
	// Addr is the listen address, e.g. ":3055".
	Addr string

	// RateLimit is the sustained frames-per-second budget per connection.
	// A connection exceeding it is closed. Zero disables limiting.
	RateLimit float64

	// RateBurst is the per-connection burst allowance.
	RateBurst int

	// SendQueueSize is the per-member outbound queue depth. A member whose
	// queue stays full is treated as dead.
	SendQueueSize int

	// MaxMembersPerChannel caps a channel's member count. A channel normally
	// holds two members, the bridge and the plugin; the cap leaves headroom
	// for a reconnecting peer. Zero means unlimited.
	MaxMembersPerChannel int

	// HandshakeTimeout bounds the wait for the join frame after upgrade.
	HandshakeTimeout time.Duration

	// WriteTimeout bounds each outbound frame write.
	WriteTimeout time.Duration

	// MaxFrameSize bounds incoming frame size in bytes.
	MaxFrameSize int64
}

// DefaultConfig returns the relay defaults.
func DefaultConfig() Config {
	return Config{
		Addr:                 ":3055",
		RateLimit:            200,
		RateBurst:            400,
		SendQueueSize:        64,
		MaxMembersPerChannel: 8,
		HandshakeTimeout:     10 * time.Second,
		WriteTimeout:         10 * time.Second,
		MaxFrameSize:         4 << 20,
	}
}

// Server is the relay: an HTTP server exposing the websocket endpoint at
// /ws plus health and metrics endpoints.
type Server struct {
	cfg      Config
	registry *channel.Registry
	upgrader websocket.Upgrader
	httpSrv  *http.Server
}

// NewServer creates a relay server.
func NewServer(cfg Config) *Server {
	if cfg.SendQueueSize <= 0 {
		cfg.SendQueueSize = 64
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	s := &Server{
		cfg:      cfg,
		registry: channel.NewRegistry(),
		upgrader: websocket.Upgrader{
			// The plugin runtime connects from the design tool's own
			// origin, which is not ours; channel scoping is the boundary.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	s.httpSrv = &http.Server{
		Addr:    cfg.Addr,
		Handler: s.Handler(),
	}
	return s
}

// Registry exposes the channel registry, e.g. for status endpoints.
func (s *Server) Registry() *channel.Registry { return s.registry }

// Handler returns the relay's HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"ok","channels":%d}`, len(s.registry.Channels()))
	})
	mux.Handle("/metrics", metrics.Handler())
	return metrics.Middleware(mux)
}

// ListenAndServe runs the relay until Shutdown.
func (s *Server) ListenAndServe() error {
	logger.Info("relay listening on %s", s.cfg.Addr)
	return s.httpSrv.ListenAndServe()
}

// Shutdown stops accepting connections and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

// member is one joined websocket connection. Writes serialize through a
// dedicated writer goroutine fed by out; Send never blocks the broadcaster.
type member struct {
	conn *websocket.Conn
	out  chan []byte
	done chan struct{}
	once sync.Once
}

func newMember(conn *websocket.Conn, queue int) *member {
	return &member{
		conn: conn,
		out:  make(chan []byte, queue),
		done: make(chan struct{}),
	}
}

// Send enqueues a frame for the writer goroutine. A full queue or dead
// member drops the frame and reports false.
func (m *member) Send(data []byte) bool {
	select {
	case <-m.done:
		return false
	default:
	}
	select {
	case m.out <- data:
		return true
	default:
		return false
	}
}

func (m *member) close() {
	m.once.Do(func() { close(m.done) })
}

// writeLoop drains the outbound queue onto the socket.
func (m *member) writeLoop(timeout time.Duration) {
	for {
		select {
		case data := <-m.out:
			_ = m.conn.SetWriteDeadline(time.Now().Add(timeout))
			if err := m.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				m.close()
				return
			}
		case <-m.done:
			return
		}
	}
}

// handleWS upgrades the connection, performs the join handshake, and then
// forwards frames between channel members until the connection dies.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	if s.cfg.MaxFrameSize > 0 {
		conn.SetReadLimit(s.cfg.MaxFrameSize)
	}

	chName, m, err := s.handshake(conn)
	if err != nil {
		logger.Error("join handshake from %s failed: %v", conn.RemoteAddr(), err)
		return
	}
	defer m.close()

	count, admitted := s.registry.JoinCapped(chName, m, s.cfg.MaxMembersPerChannel)
	if !admitted {
		logger.Error("channel %s is full (%d members); rejecting %s", chName, count, conn.RemoteAddr())
		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "channel is full"),
			time.Now().Add(s.cfg.WriteTimeout),
		)
		return
	}

	// Ack directly; the writer goroutine starts after.
	if err := s.ack(conn, chName); err != nil {
		logger.Error("join ack to %s failed: %v", conn.RemoteAddr(), err)
		s.registry.Leave(chName, m)
		return
	}

	go m.writeLoop(s.cfg.WriteTimeout)
	logger.Info("member %s joined channel %s (%d members)", conn.RemoteAddr(), chName, count)
	defer func() {
		s.registry.Leave(chName, m)
		logger.Info("member %s left channel %s", conn.RemoteAddr(), chName)
	}()

	var limiter *rate.Limiter
	if s.cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(s.cfg.RateLimit), s.cfg.RateBurst)
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		if limiter != nil && !limiter.Allow() {
			metrics.RelayRateLimited.Inc()
			logger.Error("member %s on channel %s exceeded rate limit", conn.RemoteAddr(), chName)
			_ = conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "rate limit exceeded"),
				time.Now().Add(s.cfg.WriteTimeout),
			)
			return
		}

		env, err := wire.Decode(data)
		if err != nil {
			logger.Error("dropping malformed frame from %s: %v", conn.RemoteAddr(), err)
			continue
		}

		switch env.Type {
		case wire.MessageCommandRequest:
			if err := validation.ValidateCommandName(env.Command); err != nil {
				logger.Error("rejecting command_request from %s: %v", conn.RemoteAddr(), err)
				s.sendError(m, env.ID, err.Error())
				continue
			}
			delivered := s.registry.Broadcast(chName, m, data)
			metrics.RelayFramesForwarded.WithLabelValues(string(env.Type)).Inc()
			if delivered == 0 {
				// Nobody on the other end; fail the command instead of
				// letting the bridge wait out its timeout.
				s.sendError(m, env.ID, "no plugin joined on channel "+chName)
			}
		case wire.MessageCommandResult, wire.MessageProgressEvent:
			s.registry.Broadcast(chName, m, data)
			metrics.RelayFramesForwarded.WithLabelValues(string(env.Type)).Inc()
		case wire.MessageJoin:
			// Already joined; connections are bound to one channel for life.
			logger.Error("member %s sent a second join (channel %s); ignoring", conn.RemoteAddr(), env.Channel)
		case wire.MessageInitSettings:
			// Client-local; never crosses the relay.
		}
	}
}

// handshake reads and validates the join frame. The ack is sent separately,
// after the member is admitted to the channel.
func (s *Server) handshake(conn *websocket.Conn) (string, *member, error) {
	_ = conn.SetReadDeadline(time.Now().Add(s.cfg.HandshakeTimeout))
	_, data, err := conn.ReadMessage()
	if err != nil {
		return "", nil, fmt.Errorf("reading join frame: %w", err)
	}
	_ = conn.SetReadDeadline(time.Time{})

	env, err := wire.Decode(data)
	if err != nil {
		return "", nil, err
	}
	if env.Type != wire.MessageJoin {
		return "", nil, fmt.Errorf("first frame must be join, got %s", env.Type)
	}
	if err := validation.ValidateChannelID(env.Channel); err != nil {
		return "", nil, err
	}

	return env.Channel, newMember(conn, s.cfg.SendQueueSize), nil
}

// ack confirms the join on the raw connection.
func (s *Server) ack(conn *websocket.Conn, chName string) error {
	data, err := wire.Encode(wire.NewJoinAck(chName))
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// sendError pushes a failure command_result back to a single member.
func (s *Server) sendError(m *member, id, message string) {
	data, err := wire.Encode(wire.NewCommandError(id, message))
	if err != nil {
		return
	}
	m.Send(data)
}

package bridge

import (
	"context"
	"sort"
	"sync"

	"github.com/glyphworks/canvasbridge/internal/logger"
)

// Manager tracks one Client per channel. Channel identifiers are unique keys:
// joining an already-joined channel returns the existing client rather than
// opening a second socket.
type Manager struct {
	cfg     Config
	mu      sync.RWMutex
	clients map[string]*Client
}

// NewManager creates a registry that builds clients from cfg.
func NewManager(cfg Config) *Manager {
	return &Manager{
		cfg:     cfg,
		clients: make(map[string]*Client),
	}
}

// Join returns the connected client for channel, dialing a new one if the
// channel has no live client yet. A client that previously dropped and gave
// up reconnecting is redialed in place.
func (m *Manager) Join(ctx context.Context, channel string) (*Client, error) {
	m.mu.Lock()
	c, ok := m.clients[channel]
	if !ok {
		c = NewClient(channel, m.cfg)
		m.clients[channel] = c
	}
	m.mu.Unlock()

	if c.State() == StateConnected {
		return c, nil
	}
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}
	logger.Info("joined channel %s", channel)
	return c, nil
}

// Get returns the client for channel, or nil if the channel was never joined.
func (m *Manager) Get(channel string) *Client {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.clients[channel]
}

// Channels returns the joined channel identifiers in sorted order.
func (m *Manager) Channels() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]string, 0, len(m.clients))
	for ch := range m.clients {
		out = append(out, ch)
	}
	sort.Strings(out)
	return out
}

// Disconnect tears down the client for channel and removes it from the
// registry. Unknown channels are a no-op.
func (m *Manager) Disconnect(channel string) {
	m.mu.Lock()
	c := m.clients[channel]
	delete(m.clients, channel)
	m.mu.Unlock()

	if c != nil {
		c.Disconnect()
		logger.Info("left channel %s", channel)
	}
}

// DisconnectAll tears down every client, e.g. on shutdown.
func (m *Manager) DisconnectAll() {
	m.mu.Lock()
	clients := m.clients
	m.clients = make(map[string]*Client)
	m.mu.Unlock()

	for _, c := range clients {
		c.Disconnect()
	}
}

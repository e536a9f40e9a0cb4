package bridge

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/glyphworks/canvasbridge/internal/metrics"
)

// Result is the terminal outcome delivered to the caller of Execute.
type Result struct {
	Payload json.RawMessage
	Err     error
}

// pendingInvocation is the bookkeeping for one in-flight command. The result
// channel has capacity 1 so resolution never blocks the read loop, and the
// resolved flag guarantees at most one send ever happens.
type pendingInvocation struct {
	id       string
	command  string
	ch       chan Result
	created  time.Time
	deadline time.Time // zero means no timeout
	resolved bool
}

// pendingTable is the correlation table: command id -> pending invocation.
// Dispatchers insert, the connection's read loop (and the timeout sweep)
// resolve and remove. Each entry transitions PENDING -> RESOLVED or
// PENDING -> REJECTED exactly once; a second terminal for the same id is a
// silent no-op, which is what makes dual delivery of command_result and a
// terminal progress echo safe.
type pendingTable struct {
	mu      sync.Mutex
	entries map[string]*pendingInvocation
}

func newPendingTable() *pendingTable {
	return &pendingTable{entries: make(map[string]*pendingInvocation)}
}

// register inserts a fresh pending invocation and returns its result channel.
// Returns false if the id is already pending (which would violate the
// at-most-one-outstanding invariant; callers generate UUIDs so this only
// trips on misuse).
func (t *pendingTable) register(id, command string, timeout time.Duration) (<-chan Result, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.entries[id]; exists {
		return nil, false
	}

	inv := &pendingInvocation{
		id:      id,
		command: command,
		ch:      make(chan Result, 1),
		created: time.Now(),
	}
	if timeout > 0 {
		inv.deadline = inv.created.Add(timeout)
	}
	t.entries[id] = inv
	metrics.PendingInvocations.Set(float64(len(t.entries)))
	return inv.ch, true
}

// resolve delivers a success payload and removes the entry. Unknown or
// already-resolved ids return false; the caller drops the frame silently.
func (t *pendingTable) resolve(id string, payload json.RawMessage) bool {
	return t.finish(id, Result{Payload: payload})
}

// reject delivers a failure and removes the entry.
func (t *pendingTable) reject(id string, err error) bool {
	return t.finish(id, Result{Err: err})
}

func (t *pendingTable) finish(id string, res Result) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	inv, ok := t.entries[id]
	if !ok || inv.resolved {
		return false
	}
	inv.resolved = true
	inv.ch <- res
	delete(t.entries, id)
	metrics.PendingInvocations.Set(float64(len(t.entries)))
	return true
}

// rejectAll fails every pending invocation with err and empties the table.
// Used on disconnect: plugin-side execution context dies with the socket, so
// nothing can be resumed on a new connection.
func (t *pendingTable) rejectAll(err error) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := len(t.entries)
	for id, inv := range t.entries {
		inv.resolved = true
		inv.ch <- Result{Err: err}
		delete(t.entries, id)
	}
	metrics.PendingInvocations.Set(0)
	return n
}

// expired returns the ids of invocations whose deadline has passed.
func (t *pendingTable) expired(now time.Time) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var ids []string
	for id, inv := range t.entries {
		if !inv.deadline.IsZero() && now.After(inv.deadline) {
			ids = append(ids, id)
		}
	}
	return ids
}

// len returns the number of pending invocations.
func (t *pendingTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Package channel implements the relay's channel registry: named rooms that
// scope traffic between a bridge client and its plugin counterpart. Frames
// broadcast to every member of the sender's channel except the sender; the
// registry never inspects payloads.
package channel

import (
	"sort"
	"sync"

	"github.com/glyphworks/canvasbridge/internal/metrics"
)

// Member is one joined connection's outbound surface. Send must not block:
// implementations enqueue and report false once the member is dead or its
// queue is full.
type Member interface {
	Send(data []byte) bool
}

// Registry maps channel names to their member sets. Channels come into
// existence on first join and vanish when the last member leaves; there is
// no separate create step.
type Registry struct {
	mu       sync.RWMutex
	channels map[string]map[Member]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{channels: make(map[string]map[Member]struct{})}
}

// Join adds m to the named channel and returns the resulting member count.
func (r *Registry) Join(name string, m Member) int {
	n, _ := r.JoinCapped(name, m, 0)
	return n
}

// JoinCapped adds m to the named channel unless doing so would exceed max
// members. A max of zero means unlimited. It returns the member count and
// whether the join was admitted.
func (r *Registry) JoinCapped(name string, m Member, max int) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.channels[name]
	if !ok {
		members = make(map[Member]struct{})
		r.channels[name] = members
		metrics.RelayChannels.Set(float64(len(r.channels)))
	}
	if max > 0 && len(members) >= max {
		return len(members), false
	}
	members[m] = struct{}{}
	return len(members), true
}

// Leave removes m from the named channel, deleting the channel when it
// empties. Unknown channels and members are a no-op.
func (r *Registry) Leave(name string, m Member) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.channels[name]
	if !ok {
		return
	}
	delete(members, m)
	if len(members) == 0 {
		delete(r.channels, name)
		metrics.RelayChannels.Set(float64(len(r.channels)))
	}
}

// Broadcast forwards data to every member of the channel except from, and
// returns how many members it reached. Members whose Send reports failure
// are skipped; their own read loop is responsible for cleanup.
func (r *Registry) Broadcast(name string, from Member, data []byte) int {
	r.mu.RLock()
	members := make([]Member, 0, len(r.channels[name]))
	for m := range r.channels[name] {
		if m != from {
			members = append(members, m)
		}
	}
	r.mu.RUnlock()

	delivered := 0
	for _, m := range members {
		if m.Send(data) {
			delivered++
		}
	}
	return delivered
}

// MemberCount returns the number of members in the named channel.
func (r *Registry) MemberCount(name string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels[name])
}

// Channels returns the names of all live channels in sorted order.
func (r *Registry) Channels() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.channels))
	for name := range r.channels {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

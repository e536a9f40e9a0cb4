package bridge

import (
	"sync"

	"github.com/glyphworks/canvasbridge/internal/logger"
	"github.com/glyphworks/canvasbridge/internal/metrics"
	"github.com/glyphworks/canvasbridge/internal/wire"
)

// ProgressObserver receives intermediate progress events. Observers are
// display-only: delivery never touches the correlation table and a missing
// observer never fails a command.
type ProgressObserver func(ev *wire.ProgressEvent)

// progressRelay fans progress events out to per-command observers and to
// channel-wide observers. Events for ids nobody watches are dropped without
// error: late echoes after resolution are expected traffic.
type progressRelay struct {
	mu        sync.RWMutex
	byCommand map[string][]ProgressObserver
	global    []ProgressObserver
}

func newProgressRelay() *progressRelay {
	return &progressRelay{byCommand: make(map[string][]ProgressObserver)}
}

// observeCommand registers an observer for one command id. The registration
// is released by releaseCommand once the command resolves.
func (r *progressRelay) observeCommand(id string, fn ProgressObserver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byCommand[id] = append(r.byCommand[id], fn)
}

// observeAll registers an observer for every progress event on the channel.
func (r *progressRelay) observeAll(fn ProgressObserver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.global = append(r.global, fn)
}

// releaseCommand drops the observers for a resolved command id.
func (r *progressRelay) releaseCommand(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byCommand, id)
}

// releaseAll drops every per-command registration, e.g. after a disconnect
// rejects all pending invocations. Channel-wide observers survive.
func (r *progressRelay) releaseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byCommand = make(map[string][]ProgressObserver)
}

// deliver pushes an event to its observers. Observer panics are contained so
// a misbehaving display surface cannot take down the read loop.
func (r *progressRelay) deliver(ev *wire.ProgressEvent) {
	r.mu.RLock()
	observers := make([]ProgressObserver, 0, len(r.byCommand[ev.CommandID])+len(r.global))
	observers = append(observers, r.byCommand[ev.CommandID]...)
	observers = append(observers, r.global...)
	r.mu.RUnlock()

	metrics.ProgressEvents.WithLabelValues(string(ev.Status)).Inc()

	for _, fn := range observers {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("progress observer panic for command %s: %v", ev.CommandID, rec)
				}
			}()
			fn(ev)
		}()
	}
}

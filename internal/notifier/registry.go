package notifier

import (
	"sync"
	"time"

	"github.com/campuslabs/livewire/internal/logging"
	"github.com/campuslabs/livewire/internal/metrics"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// SendFunc attempts delivery of one message to exactly one connection.
type SendFunc func(msg string) error

// Handle identifies a registered subscriber. Removal goes through the
// handle rather than callback identity.
type Handle string

// Registry holds the set of currently connected live-update
// subscribers and fans messages out to all of them. It is the only
// shared mutable state between the streaming endpoints and the
// webhook ingress, so every mutation and the fan-out snapshot are
// guarded by the mutex.
type Registry struct {
	mu      sync.RWMutex
	clients map[Handle]SendFunc
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

// NewRegistry creates an empty subscriber registry
func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[Handle]SendFunc),
		logger:  logging.Component("registry"),
		metrics: metrics.GetMetrics(),
	}
}

// Register adds a subscriber callback and returns its handle
func (r *Registry) Register(send SendFunc) Handle {
	handle := Handle(generateID())

	r.mu.Lock()
	r.clients[handle] = send
	r.mu.Unlock()

	r.metrics.StreamConnectionsActive.Inc()
	r.logger.Debug().Str("handle", string(handle)).Msg("Subscriber registered")

	return handle
}

// Remove deletes a subscriber. Removing an unknown handle is a no-op.
func (r *Registry) Remove(handle Handle) {
	r.mu.Lock()
	_, exists := r.clients[handle]
	if exists {
		delete(r.clients, handle)
	}
	r.mu.Unlock()

	if !exists {
		return
	}

	r.metrics.StreamConnectionsActive.Dec()
	r.logger.Debug().Str("handle", string(handle)).Msg("Subscriber removed")
}

// Len returns the number of currently registered subscribers
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// Broadcast delivers a fully-formed message string to every
// subscriber registered at the time of the call. Delivery happens
// over a snapshot of the set, so a concurrent register or remove
// cannot invalidate the iteration, and subscribers registered after
// the snapshot receive nothing from this call. A failure delivering
// to one subscriber never prevents delivery to the rest and never
// propagates to the caller.
func (r *Registry) Broadcast(msg string) {
	r.mu.RLock()
	snapshot := make(map[Handle]SendFunc, len(r.clients))
	for handle, send := range r.clients {
		snapshot[handle] = send
	}
	r.mu.RUnlock()

	r.metrics.BroadcastSubscribers.Observe(float64(len(snapshot)))
	if len(snapshot) == 0 {
		return
	}

	start := time.Now()
	for handle, send := range snapshot {
		r.deliver(handle, send, msg)
	}
	r.metrics.BroadcastFanoutDuration.Observe(time.Since(start).Seconds())
}

// deliver invokes one subscriber callback, containing both returned
// errors and panics.
func (r *Registry) deliver(handle Handle, send SendFunc, msg string) {
	defer func() {
		if rec := recover(); rec != nil {
			r.metrics.StreamDeliveryErrors.WithLabelValues("panic").Inc()
			r.logger.Error().
				Str("handle", string(handle)).
				Interface("panic", rec).
				Msg("Subscriber callback panicked")
		}
	}()

	if err := send(msg); err != nil {
		r.metrics.StreamDeliveryErrors.WithLabelValues("send_failed").Inc()
		r.logger.Warn().
			Err(err).
			Str("handle", string(handle)).
			Msg("Failed to deliver message to subscriber")
	}
}

// Variable for generating subscriber handles
// Can be replaced in tests for deterministic behavior
var generateID = func() string {
	return uuid.NewString()
}

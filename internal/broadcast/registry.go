// Package broadcast fans frames out to the changing set of live
// listeners. Each sink gets a dedicated writer goroutine and a bounded
// queue, so one slow or dead listener never stalls the pacing loop or
// the other listeners, and every listener receives frames in order.
package broadcast

import (
	"fmt"
	"log/slog"
	"sync"
)

// Sink is a handle to one live output channel. Send must deliver msg
// as a single atomic transmission and report a closed or broken
// connection with an error. The registry never opens connections; it
// only holds non-owning references handed to it by the transport.
type Sink interface {
	ID() string
	Send(msg []byte) error
	Close() error
}

// DeliveryError records a failed transmission to one sink. It demotes
// exactly that sink and is logged, never raised to the broadcaster.
type DeliveryError struct {
	SinkID string
	Err    error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery to sink %s failed: %v", e.SinkID, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// queueSize bounds how far a listener may fall behind before it is
// treated as dead. At the default 72ms pacing this is over two
// seconds of audio.
const queueSize = 32

type member struct {
	sink  Sink
	queue chan []byte
	done  chan struct{}
	once  sync.Once
}

func (m *member) stop() {
	m.once.Do(func() { close(m.done) })
}

// Registry holds the currently-live sinks. Add and Remove are safe to
// call concurrently with an in-progress Broadcast.
type Registry struct {
	logger *slog.Logger

	mu      sync.Mutex
	members map[string]*member
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		logger:  logger,
		members: make(map[string]*member),
	}
}

// Add registers a sink and starts its writer. Adding an already-live
// sink is a no-op.
func (r *Registry) Add(sink Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.members[sink.ID()]; ok {
		return
	}
	m := &member{
		sink:  sink,
		queue: make(chan []byte, queueSize),
		done:  make(chan struct{}),
	}
	r.members[sink.ID()] = m
	go r.writeLoop(m)
}

// Remove drops a sink from the live set. Removing an absent or
// already-closed sink is a no-op. The sink stops receiving frames
// immediately; queued frames are discarded.
func (r *Registry) Remove(sink Sink) {
	r.removeByID(sink.ID())
}

// Len returns the number of live sinks.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

// Broadcast offers msg to every sink live at call time. Sinks added or
// removed during the call do not affect this broadcast. A sink whose
// queue is full cannot accept promptly and is demoted, exactly like a
// failed send.
func (r *Registry) Broadcast(msg []byte) {
	r.mu.Lock()
	snapshot := make([]*member, 0, len(r.members))
	for _, m := range r.members {
		snapshot = append(snapshot, m)
	}
	r.mu.Unlock()

	for _, m := range snapshot {
		select {
		case <-m.done:
		case m.queue <- msg:
		default:
			r.demote(m, &DeliveryError{SinkID: m.sink.ID(), Err: fmt.Errorf("send queue full")})
		}
	}
}

// Shutdown demotes every sink and closes its connection. Used when the
// transport is going away.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	snapshot := make([]*member, 0, len(r.members))
	for _, m := range r.members {
		snapshot = append(snapshot, m)
	}
	r.members = make(map[string]*member)
	r.mu.Unlock()

	for _, m := range snapshot {
		m.stop()
		if err := m.sink.Close(); err != nil {
			r.logger.Debug("failed to close sink", "sinkID", m.sink.ID(), "error", err)
		}
	}
}

func (r *Registry) removeByID(id string) {
	r.mu.Lock()
	m, ok := r.members[id]
	delete(r.members, id)
	r.mu.Unlock()
	if ok {
		m.stop()
	}
}

func (r *Registry) demote(m *member, derr *DeliveryError) {
	r.logger.Warn("dropping sink", "sinkID", derr.SinkID, "error", derr.Err)
	r.removeByID(m.sink.ID())
	if err := m.sink.Close(); err != nil {
		r.logger.Debug("failed to close sink", "sinkID", m.sink.ID(), "error", err)
	}
}

// writeLoop is the single writer for one sink, which keeps per-sink
// frame order intact no matter how fan-out interleaves.
func (r *Registry) writeLoop(m *member) {
	for {
		select {
		case <-m.done:
			return
		case msg := <-m.queue:
			if err := m.sink.Send(msg); err != nil {
				r.demote(m, &DeliveryError{SinkID: m.sink.ID(), Err: err})
				return
			}
		}
	}
}

// Package hooks lets optional integrations observe chat activity without
// the gateway knowing about them.
package hooks

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/soyeahso/supportim/internal/logging"
)

// Events emitted by the gateway and the recall coordinator.
const (
	EventMessageReceived = "message.received"
	EventMessageRecalled = "message.recalled"
	EventThreadSeen      = "thread.seen"
	EventPresenceChanged = "presence.changed"
	EventGatewayStart    = "gateway.start"
	EventGatewayStop     = "gateway.stop"
)

// AllEvents lists every event name in emission order of a typical session.
var AllEvents = []string{
	EventGatewayStart,
	EventPresenceChanged,
	EventMessageReceived,
	EventThreadSeen,
	EventMessageRecalled,
	EventGatewayStop,
}

// Payload is what a handler receives. Phone is empty for gateway lifecycle events.
type Payload struct {
	Event string         `json:"event"`
	Phone string         `json:"phone,omitempty"`
	Data  map[string]any `json:"data,omitempty"`
}

// Handler observes one event. A returned error is logged and otherwise ignored.
type Handler func(ctx context.Context, p Payload) error

type subscriber struct {
	name string
	fn   Handler
}

// Manager dispatches events to registered handlers.
type Manager struct {
	mu   sync.RWMutex
	subs map[string][]subscriber
	wg   sync.WaitGroup
	log  *logging.Logger
}

// NewManager creates an empty manager.
func NewManager(log *logging.Logger) *Manager {
	return &Manager{
		subs: make(map[string][]subscriber),
		log:  log.Sub("hooks"),
	}
}

// On subscribes fn to event under name. Registering the same name twice
// replaces the earlier handler.
func (m *Manager) On(event, name string, fn Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()

	subs := slices.DeleteFunc(m.subs[event], func(s subscriber) bool { return s.name == name })
	m.subs[event] = append(subs, subscriber{name: name, fn: fn})
	m.log.Debug().Str("event", event).Str("handler", name).Msg("hook registered")
}

// Off unsubscribes name from event.
func (m *Manager) Off(event, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[event] = slices.DeleteFunc(m.subs[event], func(s subscriber) bool { return s.name == name })
}

func (m *Manager) snapshot(event string) []subscriber {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.subs[event])
}

// Emit runs the handlers for event in registration order on the calling goroutine.
func (m *Manager) Emit(ctx context.Context, event, phone string, data map[string]any) {
	p := Payload{Event: event, Phone: phone, Data: data}
	for _, s := range m.snapshot(event) {
		m.call(ctx, s, p)
	}
}

// EmitAsync runs each handler on its own goroutine and returns immediately.
// Wait blocks until they finish.
func (m *Manager) EmitAsync(ctx context.Context, event, phone string, data map[string]any) {
	p := Payload{Event: event, Phone: phone, Data: data}
	for _, s := range m.snapshot(event) {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.call(ctx, s, p)
		}()
	}
}

// Wait blocks until every handler started by EmitAsync has returned.
func (m *Manager) Wait() {
	m.wg.Wait()
}

func (m *Manager) call(ctx context.Context, s subscriber, p Payload) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error().Str("event", p.Event).Str("handler", s.name).
				Err(fmt.Errorf("panic: %v", r)).Msg("hook handler panicked")
		}
	}()
	if err := s.fn(ctx, p); err != nil {
		m.log.Warn().Err(err).Str("event", p.Event).Str("handler", s.name).Msg("hook handler failed")
	}
}

// Count returns how many handlers are subscribed to event.
func (m *Manager) Count(event string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subs[event])
}

// Events returns the events with at least one handler, sorted.
func (m *Manager) Events() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []string
	for event, subs := range m.subs {
		if len(subs) > 0 {
			out = append(out, event)
		}
	}
	slices.Sort(out)
	return out
}

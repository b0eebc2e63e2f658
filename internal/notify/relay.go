package notify

import (
	"context"

	"github.com/soyeahso/supportim/internal/domain"
	"github.com/soyeahso/supportim/internal/hooks"
)

// AgentWatcher reports whether an agent connection currently has a thread open.
type AgentWatcher interface {
	AgentWatching(phone string) bool
}

// Relay forwards customer messages to the registry when no agent is watching.
type Relay struct {
	registry *Registry
	watcher  AgentWatcher
}

// NewRelay creates a relay.
func NewRelay(registry *Registry, watcher AgentWatcher) *Relay {
	return &Relay{registry: registry, watcher: watcher}
}

// Attach subscribes the relay to message hooks.
func (r *Relay) Attach(m *hooks.Manager) {
	m.On(hooks.EventMessageReceived, "notify.relay", r.handle)
}

func (r *Relay) handle(ctx context.Context, p hooks.Payload) error {
	if sender, _ := p.Data["sender"].(string); sender != string(domain.RoleCustomer) {
		return nil
	}
	if r.watcher != nil && r.watcher.AgentWatching(p.Phone) {
		return nil
	}
	a := Alert{Phone: p.Phone}
	a.Content, _ = p.Data["content"].(string)
	a.Type, _ = p.Data["type"].(string)
	a.Name, _ = p.Data["name"].(string)
	a.Country, _ = p.Data["country"].(string)
	a.TS, _ = p.Data["ts"].(int64)
	return r.registry.Send(ctx, a)
}

// Package notify relays customer activity to external agent channels so a
// message is not missed when nobody has the thread open.
package notify

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/soyeahso/supportim/internal/logging"
)

// Alert is a customer message forwarded to agents.
type Alert struct {
	Phone   string
	Name    string
	Country string
	Content string
	Type    string
	TS      int64
}

// Reply is an agent response received through a notifier.
type Reply struct {
	Phone   string
	Content string
	From    string // nick or handle on the external network
}

// Status describes a notifier at runtime.
type Status struct {
	Name      string `json:"name"`
	Connected bool   `json:"connected"`
	Running   bool   `json:"running"`
	LastError string `json:"lastError,omitempty"`
}

// Notifier is an external agent channel.
type Notifier interface {
	Name() string
	// Start connects and blocks until the notifier stops or ctx ends.
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Notify(ctx context.Context, a Alert) error
	// OnReply registers the handler for agent replies. Notifiers that cannot
	// receive replies ignore it.
	OnReply(fn func(Reply))
	Status() Status
}

// Registry owns the configured notifiers.
type Registry struct {
	mu        sync.RWMutex
	notifiers map[string]Notifier
	log       *logging.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(log *logging.Logger) *Registry {
	return &Registry{
		notifiers: make(map[string]Notifier),
		log:       log.Sub("notify"),
	}
}

// Register adds n, replacing any notifier with the same name.
func (r *Registry) Register(n Notifier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifiers[n.Name()] = n
	r.log.Info().Str("notifier", n.Name()).Msg("notifier registered")
}

// Get returns a notifier by name.
func (r *Registry) Get(name string) (Notifier, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.notifiers[name]
	return n, ok
}

// Count returns the number of registered notifiers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.notifiers)
}

func (r *Registry) list() []Notifier {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Notifier, 0, len(r.notifiers))
	for _, n := range r.notifiers {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Status reports every notifier, sorted by name.
func (r *Registry) Status() []Status {
	ns := r.list()
	out := make([]Status, len(ns))
	for i, n := range ns {
		out[i] = n.Status()
	}
	return out
}

// OnReply installs fn on every registered notifier.
func (r *Registry) OnReply(fn func(Reply)) {
	for _, n := range r.list() {
		n.OnReply(fn)
	}
}

// StartAll launches each notifier on its own goroutine. Start may block for
// the life of the connection.
func (r *Registry) StartAll(ctx context.Context) {
	for _, n := range r.list() {
		r.log.Info().Str("notifier", n.Name()).Msg("starting notifier")
		go func(n Notifier) {
			if err := n.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				r.log.Error().Err(err).Str("notifier", n.Name()).Msg("notifier exited")
			}
		}(n)
	}
}

// StopAll stops every notifier.
func (r *Registry) StopAll(ctx context.Context) {
	for _, n := range r.list() {
		if err := n.Stop(ctx); err != nil {
			r.log.Error().Err(err).Str("notifier", n.Name()).Msg("failed to stop notifier")
		}
	}
}

// Send delivers a to every notifier and joins their errors.
func (r *Registry) Send(ctx context.Context, a Alert) error {
	var errs []error
	for _, n := range r.list() {
		if err := n.Notify(ctx, a); err != nil {
			r.log.Warn().Err(err).Str("notifier", n.Name()).Str("phone", a.Phone).Msg("notify failed")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

package ratelimit

import (
	"context"
	"time"

	"github.com/soyeahso/supportim/internal/config"
	"github.com/soyeahso/supportim/internal/domain"
)

// Realtime actions subject to quotas.
const (
	ActionJoin    = "join"
	ActionMessage = "message"
	ActionRecall  = "recall"
	ActionSeen    = "seen"
)

// Quota is the per-window maximum for each role.
type Quota struct {
	Customer int
	Agent    int
}

// Policy maps realtime actions to role-aware quotas sharing one window.
type Policy struct {
	Window  time.Duration
	Actions map[string]Quota
}

// PolicyFromConfig builds the realtime policy from configuration.
func PolicyFromConfig(cfg config.RealtimeLimits) Policy {
	quota := func(a config.ActionLimit) Quota {
		return Quota{Customer: a.Customer, Agent: a.Agent}
	}
	return Policy{
		Window: cfg.Window,
		Actions: map[string]Quota{
			ActionJoin:    quota(cfg.Join),
			ActionMessage: quota(cfg.Message),
			ActionRecall:  quota(cfg.Recall),
			ActionSeen:    quota(cfg.Seen),
		},
	}
}

// RealtimeLimiter applies a Policy per connection and action.
type RealtimeLimiter struct {
	limiters map[string]map[domain.Role]*Limiter
}

// NewRealtime creates a limiter for every action and role in p.
func NewRealtime(p Policy, opts ...Option) *RealtimeLimiter {
	r := &RealtimeLimiter{limiters: make(map[string]map[domain.Role]*Limiter, len(p.Actions))}
	for action, q := range p.Actions {
		r.limiters[action] = map[domain.Role]*Limiter{
			domain.RoleCustomer: New(q.Customer, p.Window, opts...),
			domain.RoleAgent:    New(q.Agent, p.Window, opts...),
		}
	}
	return r
}

// Allow counts one action for the connection. Actions without a quota
// always pass.
func (r *RealtimeLimiter) Allow(connID string, role domain.Role, action string) error {
	byRole, ok := r.limiters[action]
	if !ok {
		return nil
	}
	l, ok := byRole[role]
	if !ok {
		return nil
	}
	return l.Allow(connID + ":" + action).Err()
}

// Forget drops every bucket held for a closed connection.
func (r *RealtimeLimiter) Forget(connID string) {
	for action, byRole := range r.limiters {
		for _, l := range byRole {
			l.Forget(connID + ":" + action)
		}
	}
}

// Sweep removes expired buckets across all actions.
func (r *RealtimeLimiter) Sweep() int {
	n := 0
	for _, byRole := range r.limiters {
		for _, l := range byRole {
			n += l.Sweep()
		}
	}
	return n
}

// Run sweeps expired buckets every interval until ctx is done.
func (r *RealtimeLimiter) Run(ctx context.Context, interval time.Duration) {
	sweepEvery(ctx, interval, r.Sweep)
}

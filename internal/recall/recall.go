// Package recall retracts messages. Customers recall softly and the content
// is kept for audit; agents recall by deleting the message outright.
package recall

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/soyeahso/supportim/internal/domain"
	"github.com/soyeahso/supportim/internal/hooks"
	"github.com/soyeahso/supportim/internal/logging"
	"github.com/soyeahso/supportim/internal/store"
)

// Broadcaster delivers an event to every connection joined to a thread.
type Broadcaster interface {
	Broadcast(phone, event string, payload any)
}

// Coordinator applies recalls to the message store and announces them.
type Coordinator struct {
	messages store.MessageStore
	rooms    Broadcaster
	hooks    *hooks.Manager
	now      func() time.Time
	log      *logging.Logger
}

// NewCoordinator creates a coordinator. hookMgr may be nil.
func NewCoordinator(messages store.MessageStore, rooms Broadcaster, hookMgr *hooks.Manager, log *logging.Logger) *Coordinator {
	return &Coordinator{
		messages: messages,
		rooms:    rooms,
		hooks:    hookMgr,
		now:      time.Now,
		log:      log.Sub("recall"),
	}
}

// Recall retracts message id in thread phone on behalf of by. It reports
// false with a nil error when the message does not exist or belongs to
// another thread; nothing is broadcast in that case.
func (c *Coordinator) Recall(ctx context.Context, phone string, id int64, by domain.Role) (domain.RecalledEvent, bool, error) {
	msg, err := c.messages.GetMessage(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return domain.RecalledEvent{}, false, nil
	}
	if err != nil {
		return domain.RecalledEvent{}, false, fmt.Errorf("loading message %d: %w", id, err)
	}
	if msg.Phone != phone {
		c.log.Debug().Int64("id", id).Str("phone", phone).Msg("recall for message in another thread ignored")
		return domain.RecalledEvent{}, false, nil
	}

	ev := domain.RecalledEvent{Phone: phone, ID: id, By: by}
	switch by {
	case domain.RoleCustomer:
		err = c.messages.MarkRecalled(ctx, id, c.now().UnixMilli())
		ev.Content = msg.Content
	case domain.RoleAgent:
		err = c.messages.DeleteMessage(ctx, id)
	default:
		return domain.RecalledEvent{}, false, fmt.Errorf("unknown role %q", by)
	}
	if errors.Is(err, store.ErrNotFound) {
		// Lost a race with another recall of the same message.
		return domain.RecalledEvent{}, false, nil
	}
	if err != nil {
		return domain.RecalledEvent{}, false, fmt.Errorf("recalling message %d: %w", id, err)
	}

	c.rooms.Broadcast(phone, domain.EventRecalled, ev)
	if c.hooks != nil {
		c.hooks.EmitAsync(ctx, hooks.EventMessageRecalled, phone, map[string]any{
			"id": id,
			"by": string(by),
		})
	}
	c.log.Info().Str("phone", phone).Int64("id", id).Str("by", string(by)).Msg("message recalled")
	return ev, true, nil
}

// Purger clears recalled content older than the retention period.
type Purger struct {
	messages  store.MessageStore
	retention time.Duration
	now       func() time.Time
	log       *logging.Logger
}

// NewPurger creates a purger. A zero retention disables purging.
func NewPurger(messages store.MessageStore, retention time.Duration, log *logging.Logger) *Purger {
	return &Purger{
		messages:  messages,
		retention: retention,
		now:       time.Now,
		log:       log.Sub("recall"),
	}
}

// PurgeOnce clears content recalled more than retention ago.
func (p *Purger) PurgeOnce(ctx context.Context) (int, error) {
	if p.retention <= 0 {
		return 0, nil
	}
	cutoff := p.now().Add(-p.retention).UnixMilli()
	n, err := p.messages.PurgeRecalled(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purging recalled messages: %w", err)
	}
	if n > 0 {
		p.log.Info().Int("purged", n).Dur("retention", p.retention).Msg("purged recalled content")
	}
	return n, nil
}

// Run purges immediately and then every interval until ctx is done.
func (p *Purger) Run(ctx context.Context, interval time.Duration) {
	if p.retention <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := p.PurgeOnce(ctx); err != nil {
			p.log.Warn().Err(err).Msg("purge failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

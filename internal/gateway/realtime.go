package gateway

import (
	"context"

	"github.com/soyeahso/supportim/internal/domain"
	"github.com/soyeahso/supportim/internal/hooks"
	"github.com/soyeahso/supportim/internal/metrics"
	"github.com/soyeahso/supportim/internal/notify"
	"github.com/soyeahso/supportim/internal/ratelimit"
)

// dispatch routes an inbound event frame. Unknown events, malformed
// payloads and unauthorized rooms are dropped without a reply.
func (s *Server) dispatch(ctx context.Context, c *Client, f Frame) {
	switch f.Event {
	case ratelimit.ActionJoin, ratelimit.ActionMessage, ratelimit.ActionRecall, ratelimit.ActionSeen:
	default:
		s.log.Debug().Str("connId", c.ConnID).Str("event", f.Event).Msg("ignoring unknown event")
		return
	}

	if err := s.realtime.Allow(c.ConnID, c.Role, f.Event); err != nil {
		metrics.RateLimitHits.WithLabelValues("realtime").Inc()
		if err := s.hub.SendTo(c, domain.EventRateLimited, domain.RateLimitedEvent{Key: f.Event}); err != nil {
			s.log.Debug().Err(err).Str("connId", c.ConnID).Msg("sending rate_limited")
		}
		return
	}

	var err error
	switch f.Event {
	case ratelimit.ActionJoin:
		var p JoinPayload
		if err = decodePayload(f, &p); err == nil {
			s.onJoin(ctx, c, p)
		}
	case ratelimit.ActionMessage:
		var p MessagePayload
		if err = decodePayload(f, &p); err == nil {
			s.onMessage(ctx, c, p)
		}
	case ratelimit.ActionRecall:
		var p RecallPayload
		if err = decodePayload(f, &p); err == nil {
			s.onRecall(ctx, c, p)
		}
	case ratelimit.ActionSeen:
		var p SeenPayload
		if err = decodePayload(f, &p); err == nil {
			s.onSeen(ctx, c, p)
		}
	}
	if err != nil {
		s.log.Debug().Err(err).Str("connId", c.ConnID).Str("event", f.Event).Msg("malformed payload")
	}
}

// agentAllowed reports whether agents may act on phone. A failed ACL
// lookup denies.
func (s *Server) agentAllowed(ctx context.Context, phone string) bool {
	if s.cfg.Gateway.AgentAllowAll {
		return true
	}
	ok, err := s.store.HasACL(ctx, phone)
	if err != nil {
		s.log.Warn().Err(err).Str("phone", phone).Msg("acl lookup failed")
		return false
	}
	return ok
}

func (s *Server) onJoin(ctx context.Context, c *Client, p JoinPayload) {
	if p.Phone == "" {
		return
	}
	if c.Role == domain.RoleAgent {
		if !s.agentAllowed(ctx, p.Phone) {
			s.log.Debug().Str("connId", c.ConnID).Str("phone", p.Phone).Msg("agent join denied")
			return
		}
		s.hub.Join(c, p.Phone)
		s.log.Debug().Str("connId", c.ConnID).Str("phone", p.Phone).Msg("agent joined")
		return
	}

	first, ok := c.bind(p.Phone)
	if !ok {
		s.log.Debug().Str("connId", c.ConnID).Str("phone", p.Phone).Msg("customer join for another thread ignored")
		return
	}
	s.hub.Join(c, p.Phone)
	if first {
		s.tracker.Connect(p.Phone)
		s.enrichProfile(p.Phone, c.IP)
	}
}

// canAct reports whether c may act on the thread of phone: customers only
// on their bound thread, agents only on rooms they joined.
func (s *Server) canAct(c *Client, phone string) bool {
	if phone == "" {
		return false
	}
	if c.Role == domain.RoleCustomer {
		return c.Phone() == phone
	}
	return s.hub.InRoom(c, phone)
}

func (s *Server) onMessage(ctx context.Context, c *Client, p MessagePayload) {
	if p.Content == "" || !s.canAct(c, p.Phone) {
		return
	}
	msg := domain.NewMessage{
		Phone:   p.Phone,
		Sender:  c.Role,
		Content: p.Content,
		Type:    p.Type,
		ReplyTo: p.ReplyTo,
	}
	if msg.Type == domain.TypeRecall {
		msg.Type = ""
	}
	if c.Role == domain.RoleCustomer {
		msg.IP = c.IP
	}
	s.deliver(ctx, msg)
}

// deliver stores a message, broadcasts it to the room and fires hooks.
// Customer messages get their country filled in afterwards.
func (s *Server) deliver(ctx context.Context, nm domain.NewMessage) (domain.Message, bool) {
	msg, err := s.store.Append(ctx, nm)
	if err != nil {
		s.log.Error().Err(err).Str("phone", nm.Phone).Msg("storing message")
		return domain.Message{}, false
	}
	metrics.MessagesStored.WithLabelValues(string(msg.Sender)).Inc()
	s.hub.Broadcast(msg.Phone, domain.EventMessage, domain.NewMessageEvent(msg))

	data := map[string]any{
		"id":      msg.ID,
		"sender":  string(msg.Sender),
		"content": msg.Content,
		"type":    msg.Type,
		"ts":      msg.TS,
	}
	if msg.Sender == domain.RoleCustomer {
		if prof, err := s.store.GetProfile(ctx, msg.Phone); err == nil {
			data["name"] = prof.Name
			data["country"] = prof.Country
		}
	}
	s.hooks.EmitAsync(context.WithoutCancel(ctx), hooks.EventMessageReceived, msg.Phone, data)

	if msg.Sender == domain.RoleCustomer && msg.IP != "" {
		s.enrichMessage(msg.ID, msg.Phone, msg.IP)
	}
	return msg, true
}

func (s *Server) onRecall(ctx context.Context, c *Client, p RecallPayload) {
	if p.ID <= 0 || !s.canAct(c, p.Phone) {
		return
	}
	_, ok, err := s.recall.Recall(ctx, p.Phone, p.ID, c.Role)
	if err != nil {
		s.log.Error().Err(err).Str("phone", p.Phone).Int64("id", p.ID).Msg("recall failed")
		return
	}
	if ok {
		metrics.Recalls.WithLabelValues(string(c.Role)).Inc()
	}
}

func (s *Server) onSeen(ctx context.Context, c *Client, p SeenPayload) {
	if !s.canAct(c, p.Phone) {
		return
	}
	ts := s.now().UnixMilli()
	if err := s.store.SetSeenWatermark(ctx, p.Phone, ts); err != nil {
		s.log.Error().Err(err).Str("phone", p.Phone).Msg("storing seen watermark")
		return
	}
	s.hub.Broadcast(p.Phone, domain.EventReadStatus, domain.ReadStatusEvent{Phone: p.Phone, LastSeenTS: ts})
	s.hooks.EmitAsync(context.WithoutCancel(ctx), hooks.EventThreadSeen, p.Phone, map[string]any{
		"by": string(c.Role),
		"ts": ts,
	})
}

// enrichMessage resolves the sender country of a stored customer message.
func (s *Server) enrichMessage(id int64, phone, ip string) {
	s.async(func(ctx context.Context) {
		country := s.geo.Country(ctx, ip)
		if country == "" {
			return
		}
		if err := s.store.SetCountry(ctx, id, country); err != nil {
			s.log.Debug().Err(err).Int64("id", id).Msg("setting message country")
		}
		if _, err := s.store.UpsertProfile(ctx, domain.Profile{Phone: phone, Country: country}); err != nil {
			s.log.Debug().Err(err).Str("phone", phone).Msg("updating profile country")
		}
	})
}

// enrichProfile records the country of a customer that joined its thread.
func (s *Server) enrichProfile(phone, ip string) {
	if ip == "" {
		return
	}
	s.async(func(ctx context.Context) {
		country := s.geo.Country(ctx, ip)
		if country == "" {
			return
		}
		if _, err := s.store.UpsertProfile(ctx, domain.Profile{Phone: phone, Country: country}); err != nil {
			s.log.Debug().Err(err).Str("phone", phone).Msg("updating profile country")
		}
	})
}

// handleReply posts an agent reply received through a notifier.
func (s *Server) handleReply(r notify.Reply) {
	if r.Phone == "" || r.Content == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), enrichTimeout)
	defer cancel()
	if !s.agentAllowed(ctx, r.Phone) {
		s.log.Warn().Str("phone", r.Phone).Str("from", r.From).Msg("relayed reply dropped, thread not open to agents")
		return
	}
	if msg, ok := s.deliver(ctx, domain.NewMessage{Phone: r.Phone, Sender: domain.RoleAgent, Content: r.Content}); ok {
		s.log.Info().Str("phone", r.Phone).Str("from", r.From).Int64("id", msg.ID).Msg("relayed agent reply")
	}
}

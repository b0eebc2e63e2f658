package gateway

import (
	"context"

	"github.com/soyeahso/supportim/internal/domain"
)

// Request methods answered over the socket.
const (
	MethodPing    = "ping"
	MethodHistory = "history"
)

// HistoryParams selects the thread for a history request.
type HistoryParams struct {
	Phone string `json:"phone"`
}

// handleRequest answers a "req" frame with a "res" frame carrying the same id.
func (s *Server) handleRequest(ctx context.Context, c *Client, f Frame) {
	var reply Frame
	switch f.Method {
	case MethodPing:
		reply = s.respond(f.ID, map[string]int64{"ts": s.now().UnixMilli()})
	case MethodHistory:
		reply = s.history(ctx, c, f)
	default:
		reply = NewErrorResponse(f.ID, ErrorShape{Code: "unknown_method", Message: "unknown method " + f.Method})
	}
	if err := c.Send(reply); err != nil {
		s.log.Debug().Err(err).Str("connId", c.ConnID).Msg("sending response")
	}
}

// history returns a thread the connection may act on, in display order.
// Other threads get the same not_found answer as missing ones.
func (s *Server) history(ctx context.Context, c *Client, f Frame) Frame {
	var p HistoryParams
	if len(f.Params) > 0 {
		if err := decodeJSONRaw(f.Params, &p); err != nil {
			return NewErrorResponse(f.ID, ErrorShape{Code: "bad_request", Message: "invalid params"})
		}
	}
	if !s.canAct(c, p.Phone) {
		return NewErrorResponse(f.ID, ErrorShape{Code: "not_found", Message: "no such thread"})
	}
	msgs, err := s.store.ListByThread(ctx, p.Phone)
	if err != nil {
		s.log.Error().Err(err).Str("phone", p.Phone).Msg("history lookup failed")
		return NewErrorResponse(f.ID, ErrorShape{Code: "db_error", Message: "storage failure"})
	}
	out := make([]domain.MessageEvent, len(msgs))
	for i, m := range msgs {
		out[i] = domain.NewMessageEvent(m)
	}
	return s.respond(f.ID, out)
}

func (s *Server) respond(id string, payload any) Frame {
	f, err := NewResponse(id, payload)
	if err != nil {
		return NewErrorResponse(id, ErrorShape{Code: "internal", Message: err.Error()})
	}
	return f
}

package domain

// Realtime event names.
const (
	EventJoin        = "join"
	EventMessage     = "message"
	EventRecall      = "recall"
	EventSeen        = "seen"
	EventRecalled    = "recalled"
	EventReadStatus  = "read-status"
	EventPresence    = "presence"
	EventRateLimited = "rate_limited"
	EventHello       = "hello"
)

// MessageEvent is broadcast to a room after a message is stored.
type MessageEvent struct {
	ID      int64  `json:"id"`
	Phone   string `json:"phone"`
	Sender  Role   `json:"sender"`
	Content string `json:"content"`
	TS      int64  `json:"ts"`
	Type    string `json:"type,omitempty"`
	ReplyTo *int64 `json:"reply_to,omitempty"`
}

// NewMessageEvent projects a stored message onto its broadcast shape.
func NewMessageEvent(m Message) MessageEvent {
	return MessageEvent{
		ID:      m.ID,
		Phone:   m.Phone,
		Sender:  m.Sender,
		Content: m.Content,
		TS:      m.TS,
		Type:    m.Type,
		ReplyTo: m.ReplyTo,
	}
}

// RecalledEvent announces a retraction. Content is set only for customer recalls.
type RecalledEvent struct {
	Phone   string `json:"phone"`
	ID      int64  `json:"id"`
	By      Role   `json:"by"`
	Content string `json:"content,omitempty"`
}

// ReadStatusEvent carries the last-seen watermark of a thread.
type ReadStatusEvent struct {
	Phone      string `json:"phone"`
	LastSeenTS int64  `json:"last_seen_ts"`
}

// PresenceEvent reports a customer online/offline transition.
type PresenceEvent struct {
	Phone  string `json:"phone"`
	Online bool   `json:"online"`
}

// RateLimitedEvent tells a single connection which action was throttled.
type RateLimitedEvent struct {
	Key string `json:"key"`
}

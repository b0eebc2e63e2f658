package domain

// Role identifies which side of a conversation a connection or message belongs to.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAgent    Role = "agent"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleCustomer || r == RoleAgent
}

// TypeRecall marks a message that the customer retracted. Content is kept.
const TypeRecall = "recall"

// Message is a single entry in a thread. TS is assigned by the store in
// epoch milliseconds and never supplied by the client.
type Message struct {
	ID         int64  `json:"id"`
	Phone      string `json:"phone"`
	Sender     Role   `json:"sender"`
	Content    string `json:"content"`
	TS         int64  `json:"ts"`
	Type       string `json:"type,omitempty"`
	ReplyTo    *int64 `json:"reply_to,omitempty"`
	IP         string `json:"ip,omitempty"`
	Country    string `json:"country,omitempty"`
	RecalledAt int64  `json:"recalled_at,omitempty"`
}

// Recalled reports whether the message was soft-recalled by the customer.
func (m Message) Recalled() bool {
	return m.Type == TypeRecall
}

// NewMessage carries the caller-controlled fields of an append.
type NewMessage struct {
	Phone   string
	Sender  Role
	Content string
	Type    string
	ReplyTo *int64
	IP      string
	Country string
}

// Less orders messages for display by (TS, ID).
func Less(a, b Message) bool {
	if a.TS != b.TS {
		return a.TS < b.TS
	}
	return a.ID < b.ID
}

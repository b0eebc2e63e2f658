package domain

// Profile is the customer-facing identity attached to a thread.
type Profile struct {
	Phone     string `json:"phone"`
	Name      string `json:"name,omitempty"`
	Avatar    string `json:"avatar,omitempty"`
	Country   string `json:"country,omitempty"`
	UpdatedAt int64  `json:"updated_at,omitempty"`
}

// ThreadSummary is one row of the agent conversation list.
type ThreadSummary struct {
	Phone       string `json:"phone"`
	Name        string `json:"name,omitempty"`
	Avatar      string `json:"avatar,omitempty"`
	Country     string `json:"country,omitempty"`
	LastContent string `json:"last_content"`
	LastType    string `json:"last_type,omitempty"`
	LastTS      int64  `json:"last_ts"`
	LastAgentTS int64  `json:"last_agent_ts,omitempty"`
	UnreadCount int    `json:"unread_count"`
	LastSeenTS  int64  `json:"last_seen_ts,omitempty"`
	Online      bool   `json:"online"`
}

// Note is an agent-authored annotation on a thread.
type Note struct {
	ID        int64  `json:"id"`
	Phone     string `json:"phone"`
	Content   string `json:"content"`
	Pinned    bool   `json:"pinned"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
}

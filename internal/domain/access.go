package domain

// ACLEntry grants agents access to a thread.
type ACLEntry struct {
	Phone     string `json:"phone"`
	CreatedAt int64  `json:"created_at"`
}

// AgentToken is an issued per-agent credential.
type AgentToken struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Token     string `json:"token,omitempty"`
	CreatedAt int64  `json:"created_at"`
	RevokedAt int64  `json:"revoked_at,omitempty"`
}

// Active reports whether the token has not been revoked.
func (t AgentToken) Active() bool {
	return t.RevokedAt == 0
}

package store

import (
	"cmp"
	"context"
	"slices"

	"github.com/soyeahso/supportim/internal/domain"
)

// GetProfile implements ProfileStore.
func (m *Memory) GetProfile(_ context.Context, phone string) (domain.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.users[phone]
	if !ok {
		return domain.Profile{}, ErrNotFound
	}
	return p, nil
}

// UpsertProfile implements ProfileStore.
func (m *Memory) UpsertProfile(_ context.Context, p domain.Profile) (domain.Profile, error) {
	m.mu.Lock()
	cur := m.users[p.Phone]
	cur.Phone = p.Phone
	if p.Name != "" {
		cur.Name = p.Name
	}
	if p.Avatar != "" {
		cur.Avatar = p.Avatar
	}
	if p.Country != "" {
		cur.Country = p.Country
	}
	cur.UpdatedAt = millis(m.now())
	m.users[p.Phone] = cur
	m.mu.Unlock()

	m.changed()
	return cur, nil
}

// ListACL implements AccessStore.
func (m *Memory) ListACL(_ context.Context) ([]domain.ACLEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]domain.ACLEntry, 0, len(m.acl))
	for phone, at := range m.acl {
		out = append(out, domain.ACLEntry{Phone: phone, CreatedAt: at})
	}
	slices.SortFunc(out, func(a, b domain.ACLEntry) int {
		if c := cmp.Compare(b.CreatedAt, a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.Phone, b.Phone)
	})
	return out, nil
}

// AddACL implements AccessStore.
func (m *Memory) AddACL(_ context.Context, phone string) error {
	m.mu.Lock()
	if _, ok := m.acl[phone]; ok {
		m.mu.Unlock()
		return nil
	}
	m.acl[phone] = millis(m.now())
	m.mu.Unlock()
	m.changed()
	return nil
}

// RemoveACL implements AccessStore.
func (m *Memory) RemoveACL(_ context.Context, phone string) error {
	m.mu.Lock()
	delete(m.acl, phone)
	m.mu.Unlock()
	m.changed()
	return nil
}

// HasACL implements AccessStore.
func (m *Memory) HasACL(_ context.Context, phone string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.acl[phone]
	return ok, nil
}

// ListAgentTokens implements AccessStore.
func (m *Memory) ListAgentTokens(_ context.Context) ([]domain.AgentToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]domain.AgentToken, 0, len(m.tokens))
	for i := len(m.tokens) - 1; i >= 0; i-- {
		t := m.tokens[i]
		t.Token = ""
		out = append(out, t)
	}
	return out, nil
}

// CreateAgentToken implements AccessStore.
func (m *Memory) CreateAgentToken(_ context.Context, name string) (domain.AgentToken, error) {
	token, err := newToken()
	if err != nil {
		return domain.AgentToken{}, err
	}
	m.mu.Lock()
	t := domain.AgentToken{ID: m.nextTok, Name: name, Token: token, CreatedAt: millis(m.now())}
	m.nextTok++
	m.tokens = append(m.tokens, t)
	m.mu.Unlock()

	m.changed()
	return t, nil
}

// RevokeAgentToken implements AccessStore.
func (m *Memory) RevokeAgentToken(_ context.Context, id int64) error {
	m.mu.Lock()
	for i := range m.tokens {
		if m.tokens[i].ID == id && m.tokens[i].Active() {
			m.tokens[i].RevokedAt = millis(m.now())
			m.mu.Unlock()
			m.changed()
			return nil
		}
	}
	m.mu.Unlock()
	return ErrNotFound
}

// ValidAgentToken implements AccessStore.
func (m *Memory) ValidAgentToken(_ context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tokens {
		if t.Token == token && t.Active() {
			return true, nil
		}
	}
	return false, nil
}

// ListNotes implements NoteStore.
func (m *Memory) ListNotes(_ context.Context, phone string) ([]domain.Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := []domain.Note{}
	for _, n := range m.notes {
		if n.Phone == phone {
			out = append(out, n)
		}
	}
	slices.SortFunc(out, func(a, b domain.Note) int {
		if a.Pinned != b.Pinned {
			if a.Pinned {
				return -1
			}
			return 1
		}
		if c := cmp.Compare(b.UpdatedAt, a.UpdatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return out, nil
}

// AddNote implements NoteStore.
func (m *Memory) AddNote(_ context.Context, phone, content string) (domain.Note, error) {
	m.mu.Lock()
	now := millis(m.now())
	n := domain.Note{ID: m.nextNote, Phone: phone, Content: content, CreatedAt: now, UpdatedAt: now}
	m.nextNote++
	m.notes = append(m.notes, n)
	m.mu.Unlock()

	m.changed()
	return n, nil
}

// UpdateNote implements NoteStore.
func (m *Memory) UpdateNote(_ context.Context, id int64, content string) (domain.Note, error) {
	return m.mutateNote(id, func(n *domain.Note) { n.Content = content })
}

// SetNotePinned implements NoteStore.
func (m *Memory) SetNotePinned(_ context.Context, id int64, pinned bool) (domain.Note, error) {
	return m.mutateNote(id, func(n *domain.Note) { n.Pinned = pinned })
}

// DeleteNote implements NoteStore.
func (m *Memory) DeleteNote(_ context.Context, id int64) error {
	m.mu.Lock()
	i := slices.IndexFunc(m.notes, func(n domain.Note) bool { return n.ID == id })
	if i < 0 {
		m.mu.Unlock()
		return ErrNotFound
	}
	m.notes = slices.Delete(m.notes, i, i+1)
	m.mu.Unlock()

	m.changed()
	return nil
}

func (m *Memory) mutateNote(id int64, fn func(*domain.Note)) (domain.Note, error) {
	m.mu.Lock()
	i := slices.IndexFunc(m.notes, func(n domain.Note) bool { return n.ID == id })
	if i < 0 {
		m.mu.Unlock()
		return domain.Note{}, ErrNotFound
	}
	fn(&m.notes[i])
	m.notes[i].UpdatedAt = millis(m.now())
	n := m.notes[i]
	m.mu.Unlock()

	m.changed()
	return n, nil
}

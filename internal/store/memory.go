package store

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/soyeahso/supportim/internal/domain"
	"github.com/soyeahso/supportim/internal/logging"
)

// Memory is the volatile Store used when no durable backend is available.
// Every mutation schedules a JSON snapshot so a restart can recover history.
type Memory struct {
	mu       sync.Mutex
	messages []domain.Message // insertion order
	nextID   int64
	users    map[string]domain.Profile
	reads    map[string]int64
	seen     map[string]int64
	acl      map[string]int64
	tokens   []domain.AgentToken
	nextTok  int64
	notes    []domain.Note
	nextNote int64
	stamp    *stamper
	now      func() time.Time

	snap *snapshotter
	log  *logging.Logger
}

// NewMemory creates a memory store. When path is non-empty the store loads
// the snapshot found there and rewrites it after mutations, at most once per
// interval.
func NewMemory(path string, interval time.Duration, log *logging.Logger, opts ...Option) *Memory {
	o := buildOptions(opts)
	m := &Memory{
		nextID:   1,
		users:    make(map[string]domain.Profile),
		reads:    make(map[string]int64),
		seen:     make(map[string]int64),
		acl:      make(map[string]int64),
		nextTok:  1,
		nextNote: 1,
		stamp:    newStamper(o.now),
		now:      o.now,
		log:      log.Sub("store"),
	}
	if path != "" {
		m.snap = newSnapshotter(path, interval, m.log)
		m.restore(m.snap.load())
		m.snap.start(m.snapshot)
	}
	m.log.Info().Str("snapshot", path).Int("messages", len(m.messages)).Msg("memory store ready")
	return m
}

// Backend implements Store.
func (m *Memory) Backend() string { return "memory" }

// Close flushes the final snapshot.
func (m *Memory) Close() error {
	if m.snap == nil {
		return nil
	}
	return m.snap.stop(m.snapshot)
}

func (m *Memory) changed() {
	if m.snap != nil {
		m.snap.mark()
	}
}

// Append implements MessageStore.
func (m *Memory) Append(_ context.Context, msg domain.NewMessage) (domain.Message, error) {
	m.mu.Lock()
	stored := domain.Message{
		ID:      m.nextID,
		Phone:   msg.Phone,
		Sender:  msg.Sender,
		Content: msg.Content,
		TS:      m.stamp.next(msg.Phone),
		Type:    msg.Type,
		ReplyTo: cloneID(msg.ReplyTo),
		IP:      msg.IP,
		Country: msg.Country,
	}
	m.nextID++
	m.messages = append(m.messages, stored)
	m.mu.Unlock()

	m.changed()
	return stored, nil
}

// ListByThread implements MessageStore.
func (m *Memory) ListByThread(_ context.Context, phone string) ([]domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := []domain.Message{}
	for _, msg := range m.messages {
		if msg.Phone == phone {
			msg.ReplyTo = cloneID(msg.ReplyTo)
			out = append(out, msg)
		}
	}
	slices.SortStableFunc(out, compareMessages)
	return out, nil
}

// GetMessage implements MessageStore.
func (m *Memory) GetMessage(_ context.Context, id int64) (domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.indexOf(id)
	if i < 0 {
		return domain.Message{}, ErrNotFound
	}
	msg := m.messages[i]
	msg.ReplyTo = cloneID(msg.ReplyTo)
	return msg, nil
}

// SetCountry implements MessageStore.
func (m *Memory) SetCountry(_ context.Context, id int64, country string) error {
	return m.mutate(id, func(msg *domain.Message) { msg.Country = country })
}

// MarkRecalled implements MessageStore.
func (m *Memory) MarkRecalled(_ context.Context, id int64, at int64) error {
	return m.mutate(id, func(msg *domain.Message) {
		msg.Type = domain.TypeRecall
		msg.RecalledAt = at
	})
}

// DeleteMessage implements MessageStore.
func (m *Memory) DeleteMessage(_ context.Context, id int64) error {
	m.mu.Lock()
	i := m.indexOf(id)
	if i < 0 {
		m.mu.Unlock()
		return ErrNotFound
	}
	m.messages = slices.Delete(m.messages, i, i+1)
	m.mu.Unlock()

	m.changed()
	return nil
}

// PurgeRecalled implements MessageStore.
func (m *Memory) PurgeRecalled(_ context.Context, before int64) (int, error) {
	m.mu.Lock()
	n := 0
	for i := range m.messages {
		msg := &m.messages[i]
		if msg.Recalled() && msg.RecalledAt > 0 && msg.RecalledAt < before && msg.Content != "" {
			msg.Content = ""
			n++
		}
	}
	m.mu.Unlock()

	if n > 0 {
		m.changed()
	}
	return n, nil
}

// SetReadWatermark implements ThreadStore.
func (m *Memory) SetReadWatermark(_ context.Context, phone string, ts int64) error {
	m.mu.Lock()
	m.reads[phone] = ts
	m.mu.Unlock()
	m.changed()
	return nil
}

// ReadWatermark implements ThreadStore.
func (m *Memory) ReadWatermark(_ context.Context, phone string) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ts, ok := m.reads[phone]
	return ts, ok, nil
}

// SetSeenWatermark implements ThreadStore.
func (m *Memory) SetSeenWatermark(_ context.Context, phone string, ts int64) error {
	m.mu.Lock()
	m.seen[phone] = ts
	m.mu.Unlock()
	m.changed()
	return nil
}

// ListThreads implements ThreadStore.
func (m *Memory) ListThreads(_ context.Context) ([]domain.ThreadSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	type agg struct {
		last    domain.Message
		agentTS int64
		unread  int
	}
	threads := make(map[string]*agg)
	for _, msg := range m.messages {
		a, ok := threads[msg.Phone]
		if !ok {
			a = &agg{last: msg}
			threads[msg.Phone] = a
		} else if compareMessages(a.last, msg) < 0 {
			a.last = msg
		}
		switch msg.Sender {
		case domain.RoleAgent:
			a.agentTS = max(a.agentTS, msg.TS)
		case domain.RoleCustomer:
			watermark, ok := m.reads[msg.Phone]
			if !ok || msg.TS > watermark {
				a.unread++
			}
		}
	}

	out := make([]domain.ThreadSummary, 0, len(threads))
	for phone, a := range threads {
		p := m.users[phone]
		out = append(out, domain.ThreadSummary{
			Phone:       phone,
			Name:        p.Name,
			Avatar:      p.Avatar,
			Country:     p.Country,
			LastContent: a.last.Content,
			LastType:    a.last.Type,
			LastTS:      a.last.TS,
			LastAgentTS: a.agentTS,
			UnreadCount: a.unread,
			LastSeenTS:  m.seen[phone],
		})
	}
	slices.SortFunc(out, func(a, b domain.ThreadSummary) int {
		if c := cmp.Compare(b.LastTS, a.LastTS); c != 0 {
			return c
		}
		return cmp.Compare(threads[b.Phone].last.ID, threads[a.Phone].last.ID)
	})
	return out, nil
}

func (m *Memory) indexOf(id int64) int {
	// IDs are appended in increasing order and deletions keep the order.
	i, ok := slices.BinarySearchFunc(m.messages, id, func(msg domain.Message, id int64) int {
		return cmp.Compare(msg.ID, id)
	})
	if !ok {
		return -1
	}
	return i
}

func (m *Memory) mutate(id int64, fn func(*domain.Message)) error {
	m.mu.Lock()
	i := m.indexOf(id)
	if i < 0 {
		m.mu.Unlock()
		return ErrNotFound
	}
	fn(&m.messages[i])
	m.mu.Unlock()

	m.changed()
	return nil
}

func compareMessages(a, b domain.Message) int {
	if c := cmp.Compare(a.TS, b.TS); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

func cloneID(id *int64) *int64 {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

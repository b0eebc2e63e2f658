package recall

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/soyeahso/supportim/internal/domain"
	"github.com/soyeahso/supportim/internal/hooks"
	"github.com/soyeahso/supportim/internal/logging"
	"github.com/soyeahso/supportim/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type broadcast struct {
	phone   string
	event   string
	payload any
}

type fakeRooms struct {
	mu   sync.Mutex
	sent []broadcast
}

func (f *fakeRooms) Broadcast(phone, event string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, broadcast{phone, event, payload})
}

func setup(t *testing.T) (*Coordinator, *store.Memory, *fakeRooms, *hooks.Manager) {
	t.Helper()
	log := logging.New(nil, "silent")
	mem := store.NewMemory("", 0, log)
	t.Cleanup(func() { mem.Close() })
	rooms := &fakeRooms{}
	h := hooks.NewManager(log)
	c := NewCoordinator(mem, rooms, h, log)
	c.now = func() time.Time { return time.UnixMilli(9000) }
	return c, mem, rooms, h
}

func appendMsg(t *testing.T, s store.Store, phone string, sender domain.Role, content string) domain.Message {
	t.Helper()
	m, err := s.Append(context.Background(), domain.NewMessage{Phone: phone, Sender: sender, Content: content})
	require.NoError(t, err)
	return m
}

func TestCustomerRecallKeepsContent(t *testing.T) {
	c, mem, rooms, h := setup(t)
	ctx := context.Background()
	msg := appendMsg(t, mem, "+1", domain.RoleCustomer, "wrong card number")

	var hooked hooks.Payload
	var wg sync.WaitGroup
	wg.Add(1)
	h.On(hooks.EventMessageRecalled, "test", func(_ context.Context, p hooks.Payload) error {
		hooked = p
		wg.Done()
		return nil
	})

	ev, ok, err := c.Recall(ctx, "+1", msg.ID, domain.RoleCustomer)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "wrong card number", ev.Content)
	assert.Equal(t, domain.RoleCustomer, ev.By)

	got, err := mem.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.True(t, got.Recalled())
	assert.Equal(t, "wrong card number", got.Content)
	assert.Equal(t, int64(9000), got.RecalledAt)

	require.Len(t, rooms.sent, 1)
	assert.Equal(t, "+1", rooms.sent[0].phone)
	assert.Equal(t, domain.EventRecalled, rooms.sent[0].event)
	assert.Equal(t, ev, rooms.sent[0].payload)

	wg.Wait()
	assert.Equal(t, "+1", hooked.Phone)
	assert.Equal(t, msg.ID, hooked.Data["id"])
}

func TestAgentRecallDeletes(t *testing.T) {
	c, mem, rooms, _ := setup(t)
	ctx := context.Background()
	msg := appendMsg(t, mem, "+1", domain.RoleAgent, "sent to wrong customer")

	ev, ok, err := c.Recall(ctx, "+1", msg.ID, domain.RoleAgent)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Empty(t, ev.Content)

	_, err = mem.GetMessage(ctx, msg.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.Len(t, rooms.sent, 1)
	assert.Empty(t, rooms.sent[0].payload.(domain.RecalledEvent).Content)
}

func TestRecallSilentWhenAbsentOrForeign(t *testing.T) {
	c, mem, rooms, _ := setup(t)
	ctx := context.Background()
	msg := appendMsg(t, mem, "+2", domain.RoleCustomer, "mine")

	_, ok, err := c.Recall(ctx, "+1", 424242, domain.RoleAgent)
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = c.Recall(ctx, "+1", msg.ID, domain.RoleAgent)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = mem.GetMessage(ctx, msg.ID)
	require.NoError(t, err, "message in another thread must survive")
	assert.Empty(t, rooms.sent)
}

func TestRecallUnknownRole(t *testing.T) {
	c, mem, rooms, _ := setup(t)
	msg := appendMsg(t, mem, "+1", domain.RoleCustomer, "x")

	_, ok, err := c.Recall(context.Background(), "+1", msg.ID, domain.Role("bot"))
	assert.Error(t, err)
	assert.False(t, ok)
	assert.Empty(t, rooms.sent)
}

func TestPurger(t *testing.T) {
	c, mem, _, _ := setup(t)
	ctx := context.Background()
	msg := appendMsg(t, mem, "+1", domain.RoleCustomer, "secret")
	_, _, err := c.Recall(ctx, "+1", msg.ID, domain.RoleCustomer)
	require.NoError(t, err)

	p := NewPurger(mem, time.Hour, logging.New(nil, "silent"))
	p.now = func() time.Time { return time.UnixMilli(9000).Add(30 * time.Minute) }
	n, err := p.PurgeOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	p.now = func() time.Time { return time.UnixMilli(9000).Add(2 * time.Hour) }
	n, err = p.PurgeOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := mem.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Content)
}

func TestPurgerDisabled(t *testing.T) {
	log := logging.New(nil, "silent")
	mem := store.NewMemory("", 0, log)
	defer mem.Close()

	p := NewPurger(mem, 0, log)
	n, err := p.PurgeOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	done := make(chan struct{})
	go func() {
		p.Run(context.Background(), time.Millisecond)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run should return immediately when retention is zero")
	}
}

package hooks

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/soyeahso/supportim/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testManager() *Manager {
	return NewManager(logging.New(nil, "silent"))
}

func TestEmitDeliversPayload(t *testing.T) {
	m := testManager()

	var got Payload
	m.On(EventMessageReceived, "capture", func(_ context.Context, p Payload) error {
		got = p
		return nil
	})

	m.Emit(context.Background(), EventMessageReceived, "+1", map[string]any{"id": int64(7)})
	assert.Equal(t, EventMessageReceived, got.Event)
	assert.Equal(t, "+1", got.Phone)
	assert.Equal(t, int64(7), got.Data["id"])
}

func TestEmitOrderAndErrorIsolation(t *testing.T) {
	m := testManager()

	var order []string
	m.On(EventThreadSeen, "first", func(context.Context, Payload) error {
		order = append(order, "first")
		return errors.New("boom")
	})
	m.On(EventThreadSeen, "panics", func(context.Context, Payload) error {
		order = append(order, "panics")
		panic("bad handler")
	})
	m.On(EventThreadSeen, "last", func(context.Context, Payload) error {
		order = append(order, "last")
		return nil
	})

	m.Emit(context.Background(), EventThreadSeen, "+1", nil)
	assert.Equal(t, []string{"first", "panics", "last"}, order)
}

func TestOnReplacesSameName(t *testing.T) {
	m := testManager()

	var calls []string
	m.On(EventGatewayStart, "h", func(context.Context, Payload) error { calls = append(calls, "old"); return nil })
	m.On(EventGatewayStart, "h", func(context.Context, Payload) error { calls = append(calls, "new"); return nil })

	assert.Equal(t, 1, m.Count(EventGatewayStart))
	m.Emit(context.Background(), EventGatewayStart, "", nil)
	assert.Equal(t, []string{"new"}, calls)
}

func TestOff(t *testing.T) {
	m := testManager()

	var kept int
	m.On(EventGatewayStop, "drop", func(context.Context, Payload) error { t.Fatal("removed handler ran"); return nil })
	m.On(EventGatewayStop, "keep", func(context.Context, Payload) error { kept++; return nil })

	m.Off(EventGatewayStop, "drop")
	m.Emit(context.Background(), EventGatewayStop, "", nil)
	assert.Equal(t, 1, kept)
}

func TestEmitAsyncAndWait(t *testing.T) {
	m := testManager()

	var count atomic.Int32
	for _, name := range []string{"a", "b", "c"} {
		m.On(EventPresenceChanged, name, func(context.Context, Payload) error {
			count.Add(1)
			return nil
		})
	}

	m.EmitAsync(context.Background(), EventPresenceChanged, "+1", map[string]any{"online": true})
	m.Wait()
	assert.Equal(t, int32(3), count.Load())
}

func TestEmitWithoutHandlers(t *testing.T) {
	m := testManager()
	m.Emit(context.Background(), EventMessageRecalled, "+1", nil)
	m.EmitAsync(context.Background(), EventMessageRecalled, "+1", nil)
	m.Wait()
	assert.Empty(t, m.Events())
}

func TestEvents(t *testing.T) {
	m := testManager()
	m.On(EventMessageReceived, "x", func(context.Context, Payload) error { return nil })
	m.On(EventGatewayStart, "y", func(context.Context, Payload) error { return nil })

	assert.Equal(t, []string{EventGatewayStart, EventMessageReceived}, m.Events())
	require.Len(t, AllEvents, 6)
}

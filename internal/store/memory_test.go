package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/soyeahso/supportim/internal/domain"
	"github.com/soyeahso/supportim/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySnapshotRoundTrip(t *testing.T) {
	log := logging.New(nil, "silent")
	path := filepath.Join(t.TempDir(), "mem.json")
	clock := &testClock{}
	ctx := context.Background()

	m := NewMemory(path, time.Hour, log, WithClock(clock.now))
	first := appendAt(t, m, clock, 100, domain.NewMessage{Phone: "+1", Sender: domain.RoleCustomer, Content: "hi"})
	appendAt(t, m, clock, 200, domain.NewMessage{Phone: "+1", Sender: domain.RoleAgent, Content: "hello"})
	_, err := m.UpsertProfile(ctx, domain.Profile{Phone: "+1", Name: "Ann"})
	require.NoError(t, err)
	require.NoError(t, m.SetReadWatermark(ctx, "+1", 150))
	require.NoError(t, m.AddACL(ctx, "+1"))
	tok, err := m.CreateAgentToken(ctx, "desk")
	require.NoError(t, err)
	_, err = m.AddNote(ctx, "+1", "note")
	require.NoError(t, err)
	require.NoError(t, m.Close())

	clock.set(50)
	reloaded := NewMemory(path, time.Hour, log, WithClock(clock.now))
	defer reloaded.Close()

	msgs, err := reloaded.ListByThread(ctx, "+1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, first.ID, msgs[0].ID)

	next := appendAt(t, reloaded, clock, 50, domain.NewMessage{Phone: "+1", Sender: domain.RoleCustomer, Content: "again"})
	assert.Equal(t, int64(3), next.ID)
	assert.Equal(t, int64(200), next.TS)

	p, err := reloaded.GetProfile(ctx, "+1")
	require.NoError(t, err)
	assert.Equal(t, "Ann", p.Name)

	ts, ok, err := reloaded.ReadWatermark(ctx, "+1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(150), ts)

	valid, err := reloaded.ValidAgentToken(ctx, tok.Token)
	require.NoError(t, err)
	assert.True(t, valid)

	has, err := reloaded.HasACL(ctx, "+1")
	require.NoError(t, err)
	assert.True(t, has)

	notes, err := reloaded.ListNotes(ctx, "+1")
	require.NoError(t, err)
	assert.Len(t, notes, 1)
}

func TestMemorySnapshotWrittenInBackground(t *testing.T) {
	log := logging.New(nil, "silent")
	path := filepath.Join(t.TempDir(), "mem.json")

	m := NewMemory(path, 10*time.Millisecond, log)
	defer m.Close()
	_, err := m.Append(context.Background(), domain.NewMessage{Phone: "+1", Sender: domain.RoleCustomer, Content: "hi"})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		data, err := os.ReadFile(path)
		return err == nil && strings.Contains(string(data), `"hi"`)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestMemoryCorruptSnapshotMovedAside(t *testing.T) {
	log := logging.New(nil, "silent")
	dir := t.TempDir()
	path := filepath.Join(dir, "mem.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	m := NewMemory(path, time.Hour, log)
	msgs, err := m.ListByThread(context.Background(), "+1")
	require.NoError(t, err)
	assert.Empty(t, msgs)
	require.NoError(t, m.Close())

	matches, err := filepath.Glob(path + ".corrupt-*")
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestMemoryCloseIsIdempotent(t *testing.T) {
	m := NewMemory(filepath.Join(t.TempDir(), "mem.json"), time.Hour, logging.New(nil, "silent"))
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
}

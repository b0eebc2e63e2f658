package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/soyeahso/supportim/internal/domain"
	"github.com/soyeahso/supportim/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteMigrationsIdempotent(t *testing.T) {
	log := logging.New(nil, "silent")
	path := filepath.Join(t.TempDir(), "im.db")

	db, err := OpenSQLite(path, log)
	require.NoError(t, err)
	_, err = db.Append(context.Background(), domain.NewMessage{Phone: "+1", Sender: domain.RoleCustomer, Content: "hi"})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = OpenSQLite(path, log)
	require.NoError(t, err)
	defer db.Close()

	var versions int
	require.NoError(t, db.SQL().QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&versions))
	assert.Equal(t, len(migrations), versions)

	msgs, err := db.ListByThread(context.Background(), "+1")
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestSQLiteSeedsStamperFromDisk(t *testing.T) {
	log := logging.New(nil, "silent")
	path := filepath.Join(t.TempDir(), "im.db")
	clock := &testClock{}

	db, err := OpenSQLite(path, log, WithClock(clock.now))
	require.NoError(t, err)
	appendAt(t, db, clock, 5000, domain.NewMessage{Phone: "+1", Sender: domain.RoleCustomer, Content: "a"})
	require.NoError(t, db.Close())

	db, err = OpenSQLite(path, log, WithClock(clock.now))
	require.NoError(t, err)
	defer db.Close()
	m := appendAt(t, db, clock, 1000, domain.NewMessage{Phone: "+1", Sender: domain.RoleCustomer, Content: "b"})
	assert.Equal(t, int64(5000), m.TS)
}

func TestOpenSQLiteRequiresPath(t *testing.T) {
	_, err := OpenSQLite("", logging.New(nil, "silent"))
	assert.Error(t, err)
}

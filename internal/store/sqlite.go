package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver

	"github.com/soyeahso/supportim/internal/domain"
	"github.com/soyeahso/supportim/internal/logging"
)

// SQLite is the durable Store backed by a single SQLite database handle.
type SQLite struct {
	sql   *sql.DB
	log   *logging.Logger
	now   func() time.Time
	mu    sync.Mutex // serializes appends so ID and TS are assigned together
	stamp *stamper
}

// sqlitePragmas run on the single pooled connection at open.
var sqlitePragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
}

// OpenSQLite opens or creates the database file at path and brings its
// schema up to date. ":memory:" gives a private in-memory database.
func OpenSQLite(path string, log *logging.Logger, opts ...Option) (*SQLite, error) {
	if path == "" {
		return nil, errors.New("sqlite path is empty")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	handle, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}
	// One connection keeps ":memory:" databases shared and writes ordered.
	handle.SetMaxOpenConns(1)
	for _, pragma := range sqlitePragmas {
		if _, err := handle.Exec(pragma); err != nil {
			handle.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	o := buildOptions(opts)
	db := &SQLite{sql: handle, log: log.Sub("store"), now: o.now, stamp: newStamper(o.now)}
	if err := db.migrate(context.Background()); err != nil {
		handle.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	db.log.Info().Str("path", path).Int("schema", len(migrations)).Msg("sqlite store ready")
	return db, nil
}

// Backend implements Store.
func (db *SQLite) Backend() string { return "sqlite" }

// Close implements Store.
func (db *SQLite) Close() error {
	db.log.Debug().Msg("closing sqlite store")
	return db.sql.Close()
}

// SQL exposes the handle for tests and maintenance queries.
func (db *SQLite) SQL() *sql.DB {
	return db.sql
}

// migrate applies every migration whose version is not yet recorded in
// schema_migrations, each in its own transaction.
func (db *SQLite) migrate(ctx context.Context) error {
	const ddl = `CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at TEXT NOT NULL DEFAULT (datetime('now'))
	)`
	if _, err := db.sql.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("creating migrations table: %w", err)
	}
	applied, err := db.appliedVersions(ctx)
	if err != nil {
		return err
	}
	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}
		db.log.Info().Int("version", m.Version).Str("name", m.Name).Msg("applying migration")
		if err := db.applyMigration(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

func (db *SQLite) appliedVersions(ctx context.Context) (map[int]bool, error) {
	rows, err := db.sql.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("reading applied migrations: %w", err)
	}
	defer rows.Close()
	applied := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

func (db *SQLite) applyMigration(ctx context.Context, m migration) error {
	tx, err := db.sql.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration %d: %w", m.Version, err)
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
		return fmt.Errorf("migration %d (%s): %w", m.Version, m.Name, err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES (?)`, m.Version); err != nil {
		return fmt.Errorf("recording migration %d: %w", m.Version, err)
	}
	return tx.Commit()
}

const messageColumns = `id, phone, sender, content, ts, type, reply_to, ip, country, recalled_at`

// Append implements MessageStore.
func (db *SQLite) Append(ctx context.Context, msg domain.NewMessage) (domain.Message, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if !db.stamp.known(msg.Phone) {
		var last sql.NullInt64
		if err := db.sql.QueryRowContext(ctx,
			`SELECT MAX(ts) FROM messages WHERE phone = ?`, msg.Phone,
		).Scan(&last); err != nil {
			return domain.Message{}, fmt.Errorf("reading last timestamp: %w", err)
		}
		db.stamp.seed(msg.Phone, last.Int64)
	}

	m := domain.Message{
		Phone:   msg.Phone,
		Sender:  msg.Sender,
		Content: msg.Content,
		TS:      db.stamp.next(msg.Phone),
		Type:    msg.Type,
		ReplyTo: msg.ReplyTo,
		IP:      msg.IP,
		Country: msg.Country,
	}

	res, err := db.sql.ExecContext(ctx,
		`INSERT INTO messages (phone, sender, content, ts, type, reply_to, ip, country)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.Phone, string(m.Sender), m.Content, m.TS, m.Type, nullableID(m.ReplyTo), m.IP, m.Country,
	)
	if err != nil {
		return domain.Message{}, fmt.Errorf("inserting message: %w", err)
	}
	if m.ID, err = res.LastInsertId(); err != nil {
		return domain.Message{}, fmt.Errorf("reading message id: %w", err)
	}
	return m, nil
}

// ListByThread implements MessageStore.
func (db *SQLite) ListByThread(ctx context.Context, phone string) ([]domain.Message, error) {
	rows, err := db.sql.QueryContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE phone = ? ORDER BY ts ASC, id ASC`, phone)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	msgs := []domain.Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// GetMessage implements MessageStore.
func (db *SQLite) GetMessage(ctx context.Context, id int64) (domain.Message, error) {
	row := db.sql.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = ?`, id)
	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Message{}, ErrNotFound
	}
	return m, err
}

// SetCountry implements MessageStore.
func (db *SQLite) SetCountry(ctx context.Context, id int64, country string) error {
	return db.execOne(ctx, `UPDATE messages SET country = ? WHERE id = ?`, country, id)
}

// MarkRecalled implements MessageStore.
func (db *SQLite) MarkRecalled(ctx context.Context, id int64, at int64) error {
	return db.execOne(ctx, `UPDATE messages SET type = ?, recalled_at = ? WHERE id = ?`, domain.TypeRecall, at, id)
}

// DeleteMessage implements MessageStore.
func (db *SQLite) DeleteMessage(ctx context.Context, id int64) error {
	return db.execOne(ctx, `DELETE FROM messages WHERE id = ?`, id)
}

// PurgeRecalled implements MessageStore.
func (db *SQLite) PurgeRecalled(ctx context.Context, before int64) (int, error) {
	res, err := db.sql.ExecContext(ctx,
		`UPDATE messages SET content = '' WHERE type = ? AND recalled_at > 0 AND recalled_at < ? AND content <> ''`,
		domain.TypeRecall, before)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// SetReadWatermark implements ThreadStore.
func (db *SQLite) SetReadWatermark(ctx context.Context, phone string, ts int64) error {
	_, err := db.sql.ExecContext(ctx,
		`INSERT INTO thread_state (phone, last_read_ts) VALUES (?, ?)
		 ON CONFLICT(phone) DO UPDATE SET last_read_ts = excluded.last_read_ts`, phone, ts)
	return err
}

// ReadWatermark implements ThreadStore.
func (db *SQLite) ReadWatermark(ctx context.Context, phone string) (int64, bool, error) {
	var ts sql.NullInt64
	err := db.sql.QueryRowContext(ctx, `SELECT last_read_ts FROM thread_state WHERE phone = ?`, phone).Scan(&ts)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return ts.Int64, ts.Valid, nil
}

// SetSeenWatermark implements ThreadStore.
func (db *SQLite) SetSeenWatermark(ctx context.Context, phone string, ts int64) error {
	_, err := db.sql.ExecContext(ctx,
		`INSERT INTO thread_state (phone, last_seen_ts) VALUES (?, ?)
		 ON CONFLICT(phone) DO UPDATE SET last_seen_ts = excluded.last_seen_ts`, phone, ts)
	return err
}

// ListThreads implements ThreadStore.
func (db *SQLite) ListThreads(ctx context.Context) ([]domain.ThreadSummary, error) {
	rows, err := db.sql.QueryContext(ctx, threadSummarySQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.ThreadSummary{}
	for rows.Next() {
		var t domain.ThreadSummary
		if err := rows.Scan(
			&t.Phone, &t.LastContent, &t.LastType, &t.LastTS, &t.LastAgentTS, &t.UnreadCount,
			&t.LastSeenTS, &t.Name, &t.Avatar, &t.Country,
		); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// execOne runs a statement that must touch exactly one row.
func (db *SQLite) execOne(ctx context.Context, query string, args ...any) error {
	res, err := db.sql.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (domain.Message, error) {
	var (
		m       domain.Message
		sender  string
		replyTo sql.NullInt64
	)
	if err := row.Scan(&m.ID, &m.Phone, &sender, &m.Content, &m.TS, &m.Type, &replyTo,
		&m.IP, &m.Country, &m.RecalledAt); err != nil {
		return domain.Message{}, err
	}
	m.Sender = domain.Role(sender)
	if replyTo.Valid {
		id := replyTo.Int64
		m.ReplyTo = &id
	}
	return m, nil
}

func nullableID(id *int64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *id, Valid: true}
}

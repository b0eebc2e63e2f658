package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/soyeahso/supportim/internal/domain"
	"github.com/soyeahso/supportim/internal/logging"
)

// Postgres is the durable Store backed by a shared pgx connection pool.
type Postgres struct {
	pool  *pgxpool.Pool
	log   *logging.Logger
	now   func() time.Time
	mu    sync.Mutex // serializes appends so ID and TS are assigned together
	stamp *stamper
}

// OpenPostgres connects to dsn, verifies the connection and runs migrations.
func OpenPostgres(ctx context.Context, dsn string, log *logging.Logger, opts ...Option) (*Postgres, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn is empty")
	}

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres dsn: %w", err)
	}

	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}

	o := buildOptions(opts)
	pg := &Postgres{pool: pool, log: log.Sub("store"), now: o.now, stamp: newStamper(o.now)}
	if err := pg.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	pg.log.Info().Str("host", poolCfg.ConnConfig.Host).Str("database", poolCfg.ConnConfig.Database).Msg("database opened")
	return pg, nil
}

// Backend implements Store.
func (pg *Postgres) Backend() string { return "postgres" }

// Close releases the connection pool.
func (pg *Postgres) Close() error {
	pg.log.Info().Msg("closing database")
	pg.pool.Close()
	return nil
}

func (pg *Postgres) migrate(ctx context.Context) error {
	if _, err := pg.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`); err != nil {
		return fmt.Errorf("creating migrations table: %w", err)
	}

	for _, m := range pgMigrations {
		var applied bool
		if err := pg.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version = $1)`, m.Version,
		).Scan(&applied); err != nil {
			return fmt.Errorf("checking migration %d: %w", m.Version, err)
		}
		if applied {
			continue
		}

		pg.log.Info().Int("version", m.Version).Str("name", m.Name).Msg("applying migration")

		err := pgx.BeginFunc(ctx, pg.pool, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, m.SQL); err != nil {
				return fmt.Errorf("migration %d (%s): %w", m.Version, m.Name, err)
			}
			if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, m.Version); err != nil {
				return fmt.Errorf("recording migration %d: %w", m.Version, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Append implements MessageStore.
func (pg *Postgres) Append(ctx context.Context, msg domain.NewMessage) (domain.Message, error) {
	pg.mu.Lock()
	defer pg.mu.Unlock()

	if !pg.stamp.known(msg.Phone) {
		var last *int64
		if err := pg.pool.QueryRow(ctx, `SELECT MAX(ts) FROM messages WHERE phone = $1`, msg.Phone).Scan(&last); err != nil {
			return domain.Message{}, fmt.Errorf("reading last timestamp: %w", err)
		}
		if last != nil {
			pg.stamp.seed(msg.Phone, *last)
		}
	}

	m := domain.Message{
		Phone:   msg.Phone,
		Sender:  msg.Sender,
		Content: msg.Content,
		TS:      pg.stamp.next(msg.Phone),
		Type:    msg.Type,
		ReplyTo: msg.ReplyTo,
		IP:      msg.IP,
		Country: msg.Country,
	}

	err := pg.pool.QueryRow(ctx,
		`INSERT INTO messages (phone, sender, content, ts, type, reply_to, ip, country)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		m.Phone, string(m.Sender), m.Content, m.TS, m.Type, m.ReplyTo, m.IP, m.Country,
	).Scan(&m.ID)
	if err != nil {
		return domain.Message{}, fmt.Errorf("inserting message: %w", err)
	}
	return m, nil
}

// ListByThread implements MessageStore.
func (pg *Postgres) ListByThread(ctx context.Context, phone string) ([]domain.Message, error) {
	rows, err := pg.pool.Query(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE phone = $1 ORDER BY ts ASC, id ASC`, phone)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	msgs := []domain.Message{}
	for rows.Next() {
		m, err := scanPgMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// GetMessage implements MessageStore.
func (pg *Postgres) GetMessage(ctx context.Context, id int64) (domain.Message, error) {
	m, err := scanPgMessage(pg.pool.QueryRow(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Message{}, ErrNotFound
	}
	return m, err
}

// SetCountry implements MessageStore.
func (pg *Postgres) SetCountry(ctx context.Context, id int64, country string) error {
	return pg.execOne(ctx, `UPDATE messages SET country = $1 WHERE id = $2`, country, id)
}

// MarkRecalled implements MessageStore.
func (pg *Postgres) MarkRecalled(ctx context.Context, id int64, at int64) error {
	return pg.execOne(ctx, `UPDATE messages SET type = $1, recalled_at = $2 WHERE id = $3`, domain.TypeRecall, at, id)
}

// DeleteMessage implements MessageStore.
func (pg *Postgres) DeleteMessage(ctx context.Context, id int64) error {
	return pg.execOne(ctx, `DELETE FROM messages WHERE id = $1`, id)
}

// PurgeRecalled implements MessageStore.
func (pg *Postgres) PurgeRecalled(ctx context.Context, before int64) (int, error) {
	tag, err := pg.pool.Exec(ctx,
		`UPDATE messages SET content = '' WHERE type = $1 AND recalled_at > 0 AND recalled_at < $2 AND content <> ''`,
		domain.TypeRecall, before)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// SetReadWatermark implements ThreadStore.
func (pg *Postgres) SetReadWatermark(ctx context.Context, phone string, ts int64) error {
	_, err := pg.pool.Exec(ctx,
		`INSERT INTO thread_state (phone, last_read_ts) VALUES ($1, $2)
		 ON CONFLICT (phone) DO UPDATE SET last_read_ts = EXCLUDED.last_read_ts`, phone, ts)
	return err
}

// ReadWatermark implements ThreadStore.
func (pg *Postgres) ReadWatermark(ctx context.Context, phone string) (int64, bool, error) {
	var ts *int64
	err := pg.pool.QueryRow(ctx, `SELECT last_read_ts FROM thread_state WHERE phone = $1`, phone).Scan(&ts)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil || ts == nil {
		return 0, false, err
	}
	return *ts, true, nil
}

// SetSeenWatermark implements ThreadStore.
func (pg *Postgres) SetSeenWatermark(ctx context.Context, phone string, ts int64) error {
	_, err := pg.pool.Exec(ctx,
		`INSERT INTO thread_state (phone, last_seen_ts) VALUES ($1, $2)
		 ON CONFLICT (phone) DO UPDATE SET last_seen_ts = EXCLUDED.last_seen_ts`, phone, ts)
	return err
}

// ListThreads implements ThreadStore.
func (pg *Postgres) ListThreads(ctx context.Context) ([]domain.ThreadSummary, error) {
	rows, err := pg.pool.Query(ctx, threadSummarySQL)
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

func (pg *Postgres) execOne(ctx context.Context, query string, args ...any) error {
	tag, err := pg.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	return requireOne(tag)
}

func requireOne(tag pgconn.CommandTag) error {
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanPgMessage(row pgx.Row) (domain.Message, error) {
	var (
		m      domain.Message
		sender string
	)
	if err := row.Scan(&m.ID, &m.Phone, &sender, &m.Content, &m.TS, &m.Type, &m.ReplyTo,
		&m.IP, &m.Country, &m.RecalledAt); err != nil {
		return domain.Message{}, err
	}
	m.Sender = domain.Role(sender)
	return m, nil
}

package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/soyeahso/supportim/internal/domain"
)

// GetProfile implements ProfileStore.
func (pg *Postgres) GetProfile(ctx context.Context, phone string) (domain.Profile, error) {
	p := domain.Profile{Phone: phone}
	err := pg.pool.QueryRow(ctx,
		`SELECT name, avatar, country, updated_at FROM users WHERE phone = $1`, phone,
	).Scan(&p.Name, &p.Avatar, &p.Country, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Profile{}, ErrNotFound
	}
	return p, err
}

// UpsertProfile implements ProfileStore.
func (pg *Postgres) UpsertProfile(ctx context.Context, p domain.Profile) (domain.Profile, error) {
	out := domain.Profile{Phone: p.Phone}
	err := pg.pool.QueryRow(ctx,
		`INSERT INTO users (phone, name, avatar, country, updated_at) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (phone) DO UPDATE SET
		   name       = CASE WHEN EXCLUDED.name    <> '' THEN EXCLUDED.name    ELSE users.name    END,
		   avatar     = CASE WHEN EXCLUDED.avatar  <> '' THEN EXCLUDED.avatar  ELSE users.avatar  END,
		   country    = CASE WHEN EXCLUDED.country <> '' THEN EXCLUDED.country ELSE users.country END,
		   updated_at = EXCLUDED.updated_at
		 RETURNING name, avatar, country, updated_at`,
		p.Phone, p.Name, p.Avatar, p.Country, millis(pg.now()),
	).Scan(&out.Name, &out.Avatar, &out.Country, &out.UpdatedAt)
	if err != nil {
		return domain.Profile{}, fmt.Errorf("upserting profile: %w", err)
	}
	return out, nil
}

// ListACL implements AccessStore.
func (pg *Postgres) ListACL(ctx context.Context) ([]domain.ACLEntry, error) {
	rows, err := pg.pool.Query(ctx, `SELECT phone, created_at FROM agent_acl ORDER BY created_at DESC, phone`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.ACLEntry{}
	for rows.Next() {
		var e domain.ACLEntry
		if err := rows.Scan(&e.Phone, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// AddACL implements AccessStore.
func (pg *Postgres) AddACL(ctx context.Context, phone string) error {
	_, err := pg.pool.Exec(ctx,
		`INSERT INTO agent_acl (phone, created_at) VALUES ($1, $2) ON CONFLICT (phone) DO NOTHING`,
		phone, millis(pg.now()))
	return err
}

// RemoveACL implements AccessStore.
func (pg *Postgres) RemoveACL(ctx context.Context, phone string) error {
	_, err := pg.pool.Exec(ctx, `DELETE FROM agent_acl WHERE phone = $1`, phone)
	return err
}

// HasACL implements AccessStore.
func (pg *Postgres) HasACL(ctx context.Context, phone string) (bool, error) {
	var ok bool
	err := pg.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM agent_acl WHERE phone = $1)`, phone).Scan(&ok)
	return ok, err
}

// ListAgentTokens implements AccessStore.
func (pg *Postgres) ListAgentTokens(ctx context.Context) ([]domain.AgentToken, error) {
	rows, err := pg.pool.Query(ctx, `SELECT id, name, created_at, revoked_at FROM agent_tokens ORDER BY id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.AgentToken{}
	for rows.Next() {
		var t domain.AgentToken
		if err := rows.Scan(&t.ID, &t.Name, &t.CreatedAt, &t.RevokedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// CreateAgentToken implements AccessStore.
func (pg *Postgres) CreateAgentToken(ctx context.Context, name string) (domain.AgentToken, error) {
	token, err := newToken()
	if err != nil {
		return domain.AgentToken{}, err
	}
	t := domain.AgentToken{Name: name, Token: token, CreatedAt: millis(pg.now())}
	if err := pg.pool.QueryRow(ctx,
		`INSERT INTO agent_tokens (name, token, created_at) VALUES ($1, $2, $3) RETURNING id`,
		t.Name, t.Token, t.CreatedAt,
	).Scan(&t.ID); err != nil {
		return domain.AgentToken{}, fmt.Errorf("inserting token: %w", err)
	}
	return t, nil
}

// RevokeAgentToken implements AccessStore.
func (pg *Postgres) RevokeAgentToken(ctx context.Context, id int64) error {
	return pg.execOne(ctx,
		`UPDATE agent_tokens SET revoked_at = $1 WHERE id = $2 AND revoked_at = 0`, millis(pg.now()), id)
}

// ValidAgentToken implements AccessStore.
func (pg *Postgres) ValidAgentToken(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	var ok bool
	err := pg.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM agent_tokens WHERE token = $1 AND revoked_at = 0)`, token).Scan(&ok)
	return ok, err
}

// ListNotes implements NoteStore.
func (pg *Postgres) ListNotes(ctx context.Context, phone string) ([]domain.Note, error) {
	rows, err := pg.pool.Query(ctx,
		`SELECT `+noteColumns+` FROM notes WHERE phone = $1 ORDER BY pinned DESC, updated_at DESC, id DESC`, phone)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Note{}
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// AddNote implements NoteStore.
func (pg *Postgres) AddNote(ctx context.Context, phone, content string) (domain.Note, error) {
	now := millis(pg.now())
	n := domain.Note{Phone: phone, Content: content, CreatedAt: now, UpdatedAt: now}
	if err := pg.pool.QueryRow(ctx,
		`INSERT INTO notes (phone, content, pinned, created_at, updated_at) VALUES ($1, $2, FALSE, $3, $4) RETURNING id`,
		phone, content, now, now,
	).Scan(&n.ID); err != nil {
		return domain.Note{}, fmt.Errorf("inserting note: %w", err)
	}
	return n, nil
}

// UpdateNote implements NoteStore.
func (pg *Postgres) UpdateNote(ctx context.Context, id int64, content string) (domain.Note, error) {
	return pg.updateNote(ctx,
		`UPDATE notes SET content = $1, updated_at = $2 WHERE id = $3 RETURNING `+noteColumns,
		content, millis(pg.now()), id)
}

// SetNotePinned implements NoteStore.
func (pg *Postgres) SetNotePinned(ctx context.Context, id int64, pinned bool) (domain.Note, error) {
	return pg.updateNote(ctx,
		`UPDATE notes SET pinned = $1, updated_at = $2 WHERE id = $3 RETURNING `+noteColumns,
		pinned, millis(pg.now()), id)
}

// DeleteNote implements NoteStore.
func (pg *Postgres) DeleteNote(ctx context.Context, id int64) error {
	return pg.execOne(ctx, `DELETE FROM notes WHERE id = $1`, id)
}

func (pg *Postgres) updateNote(ctx context.Context, query string, args ...any) (domain.Note, error) {
	n, err := scanNote(pg.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Note{}, ErrNotFound
	}
	return n, err
}

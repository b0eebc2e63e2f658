package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/soyeahso/supportim/internal/domain"
)

// GetProfile implements ProfileStore.
func (db *SQLite) GetProfile(ctx context.Context, phone string) (domain.Profile, error) {
	p := domain.Profile{Phone: phone}
	err := db.sql.QueryRowContext(ctx,
		`SELECT name, avatar, country, updated_at FROM users WHERE phone = ?`, phone,
	).Scan(&p.Name, &p.Avatar, &p.Country, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Profile{}, ErrNotFound
	}
	return p, err
}

// UpsertProfile implements ProfileStore.
func (db *SQLite) UpsertProfile(ctx context.Context, p domain.Profile) (domain.Profile, error) {
	_, err := db.sql.ExecContext(ctx,
		`INSERT INTO users (phone, name, avatar, country, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(phone) DO UPDATE SET
		   name       = CASE WHEN excluded.name    <> '' THEN excluded.name    ELSE users.name    END,
		   avatar     = CASE WHEN excluded.avatar  <> '' THEN excluded.avatar  ELSE users.avatar  END,
		   country    = CASE WHEN excluded.country <> '' THEN excluded.country ELSE users.country END,
		   updated_at = excluded.updated_at`,
		p.Phone, p.Name, p.Avatar, p.Country, millis(db.now()),
	)
	if err != nil {
		return domain.Profile{}, fmt.Errorf("upserting profile: %w", err)
	}
	return db.GetProfile(ctx, p.Phone)
}

// ListACL implements AccessStore.
func (db *SQLite) ListACL(ctx context.Context) ([]domain.ACLEntry, error) {
	rows, err := db.sql.QueryContext(ctx, `SELECT phone, created_at FROM agent_acl ORDER BY created_at DESC, phone`)
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
func (db *SQLite) AddACL(ctx context.Context, phone string) error {
	_, err := db.sql.ExecContext(ctx,
		`INSERT INTO agent_acl (phone, created_at) VALUES (?, ?) ON CONFLICT(phone) DO NOTHING`,
		phone, millis(db.now()))
	return err
}

// RemoveACL implements AccessStore.
func (db *SQLite) RemoveACL(ctx context.Context, phone string) error {
	_, err := db.sql.ExecContext(ctx, `DELETE FROM agent_acl WHERE phone = ?`, phone)
	return err
}

// HasACL implements AccessStore.
func (db *SQLite) HasACL(ctx context.Context, phone string) (bool, error) {
	var n int
	err := db.sql.QueryRowContext(ctx, `SELECT COUNT(*) FROM agent_acl WHERE phone = ?`, phone).Scan(&n)
	return n > 0, err
}

// ListAgentTokens implements AccessStore.
func (db *SQLite) ListAgentTokens(ctx context.Context) ([]domain.AgentToken, error) {
	rows, err := db.sql.QueryContext(ctx,
		`SELECT id, name, created_at, revoked_at FROM agent_tokens ORDER BY id DESC`)
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
func (db *SQLite) CreateAgentToken(ctx context.Context, name string) (domain.AgentToken, error) {
	token, err := newToken()
	if err != nil {
		return domain.AgentToken{}, err
	}
	t := domain.AgentToken{Name: name, Token: token, CreatedAt: millis(db.now())}
	res, err := db.sql.ExecContext(ctx,
		`INSERT INTO agent_tokens (name, token, created_at) VALUES (?, ?, ?)`, t.Name, t.Token, t.CreatedAt)
	if err != nil {
		return domain.AgentToken{}, fmt.Errorf("inserting token: %w", err)
	}
	t.ID, err = res.LastInsertId()
	return t, err
}

// RevokeAgentToken implements AccessStore.
func (db *SQLite) RevokeAgentToken(ctx context.Context, id int64) error {
	return db.execOne(ctx,
		`UPDATE agent_tokens SET revoked_at = ? WHERE id = ? AND revoked_at = 0`, millis(db.now()), id)
}

// ValidAgentToken implements AccessStore.
func (db *SQLite) ValidAgentToken(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	var n int
	err := db.sql.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM agent_tokens WHERE token = ? AND revoked_at = 0`, token).Scan(&n)
	return n > 0, err
}

const noteColumns = `id, phone, content, pinned, created_at, updated_at`

// ListNotes implements NoteStore.
func (db *SQLite) ListNotes(ctx context.Context, phone string) ([]domain.Note, error) {
	rows, err := db.sql.QueryContext(ctx,
		`SELECT `+noteColumns+` FROM notes WHERE phone = ? ORDER BY pinned DESC, updated_at DESC, id DESC`, phone)
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
func (db *SQLite) AddNote(ctx context.Context, phone, content string) (domain.Note, error) {
	now := millis(db.now())
	res, err := db.sql.ExecContext(ctx,
		`INSERT INTO notes (phone, content, pinned, created_at, updated_at) VALUES (?, ?, 0, ?, ?)`,
		phone, content, now, now)
	if err != nil {
		return domain.Note{}, fmt.Errorf("inserting note: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Note{}, err
	}
	return domain.Note{ID: id, Phone: phone, Content: content, CreatedAt: now, UpdatedAt: now}, nil
}

// UpdateNote implements NoteStore.
func (db *SQLite) UpdateNote(ctx context.Context, id int64, content string) (domain.Note, error) {
	if err := db.execOne(ctx, `UPDATE notes SET content = ?, updated_at = ? WHERE id = ?`,
		content, millis(db.now()), id); err != nil {
		return domain.Note{}, err
	}
	return db.getNote(ctx, id)
}

// SetNotePinned implements NoteStore.
func (db *SQLite) SetNotePinned(ctx context.Context, id int64, pinned bool) (domain.Note, error) {
	if err := db.execOne(ctx, `UPDATE notes SET pinned = ?, updated_at = ? WHERE id = ?`,
		pinned, millis(db.now()), id); err != nil {
		return domain.Note{}, err
	}
	return db.getNote(ctx, id)
}

// DeleteNote implements NoteStore.
func (db *SQLite) DeleteNote(ctx context.Context, id int64) error {
	return db.execOne(ctx, `DELETE FROM notes WHERE id = ?`, id)
}

func (db *SQLite) getNote(ctx context.Context, id int64) (domain.Note, error) {
	n, err := scanNote(db.sql.QueryRowContext(ctx, `SELECT `+noteColumns+` FROM notes WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Note{}, ErrNotFound
	}
	return n, err
}

func scanNote(row rowScanner) (domain.Note, error) {
	var n domain.Note
	err := row.Scan(&n.ID, &n.Phone, &n.Content, &n.Pinned, &n.CreatedAt, &n.UpdatedAt)
	return n, err
}

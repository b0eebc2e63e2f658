package store

// migration is one forward-only schema step.
type migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations is the ordered list of SQLite schema migrations.
var migrations = []migration{
	{
		Version: 1,
		Name:    "create messages and thread state",
		SQL: `
			CREATE TABLE messages (
				id          INTEGER PRIMARY KEY AUTOINCREMENT,
				phone       TEXT NOT NULL,
				sender      TEXT NOT NULL,
				content     TEXT NOT NULL,
				ts          INTEGER NOT NULL,
				type        TEXT NOT NULL DEFAULT '',
				reply_to    INTEGER,
				ip          TEXT NOT NULL DEFAULT '',
				country     TEXT NOT NULL DEFAULT '',
				recalled_at INTEGER NOT NULL DEFAULT 0
			);

			CREATE INDEX idx_messages_thread ON messages (phone, ts, id);
			CREATE INDEX idx_messages_recalled ON messages (type, recalled_at);

			CREATE TABLE thread_state (
				phone        TEXT PRIMARY KEY,
				last_read_ts INTEGER,
				last_seen_ts INTEGER
			);

			CREATE TABLE users (
				phone      TEXT PRIMARY KEY,
				name       TEXT NOT NULL DEFAULT '',
				avatar     TEXT NOT NULL DEFAULT '',
				country    TEXT NOT NULL DEFAULT '',
				updated_at INTEGER NOT NULL DEFAULT 0
			);
		`,
	},
	{
		Version: 2,
		Name:    "create agent acl and tokens",
		SQL: `
			CREATE TABLE agent_acl (
				phone      TEXT PRIMARY KEY,
				created_at INTEGER NOT NULL
			);

			CREATE TABLE agent_tokens (
				id         INTEGER PRIMARY KEY AUTOINCREMENT,
				name       TEXT NOT NULL DEFAULT '',
				token      TEXT NOT NULL UNIQUE,
				created_at INTEGER NOT NULL,
				revoked_at INTEGER NOT NULL DEFAULT 0
			);
		`,
	},
	{
		Version: 3,
		Name:    "create notes",
		SQL: `
			CREATE TABLE notes (
				id         INTEGER PRIMARY KEY AUTOINCREMENT,
				phone      TEXT NOT NULL,
				content    TEXT NOT NULL,
				pinned     INTEGER NOT NULL DEFAULT 0,
				created_at INTEGER NOT NULL,
				updated_at INTEGER NOT NULL
			);

			CREATE INDEX idx_notes_phone ON notes (phone, pinned, updated_at);
		`,
	},
}

// pgMigrations mirrors migrations for Postgres.
var pgMigrations = []migration{
	{
		Version: 1,
		Name:    "create messages and thread state",
		SQL: `
			CREATE TABLE messages (
				id          BIGSERIAL PRIMARY KEY,
				phone       TEXT NOT NULL,
				sender      TEXT NOT NULL,
				content     TEXT NOT NULL,
				ts          BIGINT NOT NULL,
				type        TEXT NOT NULL DEFAULT '',
				reply_to    BIGINT,
				ip          TEXT NOT NULL DEFAULT '',
				country     TEXT NOT NULL DEFAULT '',
				recalled_at BIGINT NOT NULL DEFAULT 0
			);

			CREATE INDEX idx_messages_thread ON messages (phone, ts, id);
			CREATE INDEX idx_messages_recalled ON messages (type, recalled_at);

			CREATE TABLE thread_state (
				phone        TEXT PRIMARY KEY,
				last_read_ts BIGINT,
				last_seen_ts BIGINT
			);

			CREATE TABLE users (
				phone      TEXT PRIMARY KEY,
				name       TEXT NOT NULL DEFAULT '',
				avatar     TEXT NOT NULL DEFAULT '',
				country    TEXT NOT NULL DEFAULT '',
				updated_at BIGINT NOT NULL DEFAULT 0
			);
		`,
	},
	{
		Version: 2,
		Name:    "create agent acl and tokens",
		SQL: `
			CREATE TABLE agent_acl (
				phone      TEXT PRIMARY KEY,
				created_at BIGINT NOT NULL
			);

			CREATE TABLE agent_tokens (
				id         BIGSERIAL PRIMARY KEY,
				name       TEXT NOT NULL DEFAULT '',
				token      TEXT NOT NULL UNIQUE,
				created_at BIGINT NOT NULL,
				revoked_at BIGINT NOT NULL DEFAULT 0
			);
		`,
	},
	{
		Version: 3,
		Name:    "create notes",
		SQL: `
			CREATE TABLE notes (
				id         BIGSERIAL PRIMARY KEY,
				phone      TEXT NOT NULL,
				content    TEXT NOT NULL,
				pinned     BOOLEAN NOT NULL DEFAULT FALSE,
				created_at BIGINT NOT NULL,
				updated_at BIGINT NOT NULL
			);

			CREATE INDEX idx_notes_phone ON notes (phone, pinned, updated_at);
		`,
	},
}

// threadSummarySQL lists one row per thread, driven by each thread's latest
// message. It is portable between SQLite and Postgres.
const threadSummarySQL = `
	SELECT m.phone, m.content, m.type, m.ts,
	       COALESCE((SELECT MAX(a.ts) FROM messages a
	                 WHERE a.phone = m.phone AND a.sender = 'agent'), 0),
	       (SELECT COUNT(*) FROM messages c
	         WHERE c.phone = m.phone AND c.sender = 'customer'
	           AND c.ts > COALESCE(s.last_read_ts, -1)),
	       COALESCE(s.last_seen_ts, 0),
	       COALESCE(u.name, ''), COALESCE(u.avatar, ''), COALESCE(u.country, '')
	FROM messages m
	LEFT JOIN thread_state s ON s.phone = m.phone
	LEFT JOIN users u ON u.phone = m.phone
	WHERE m.id = (SELECT x.id FROM messages x WHERE x.phone = m.phone
	              ORDER BY x.ts DESC, x.id DESC LIMIT 1)
	ORDER BY m.ts DESC, m.id DESC`

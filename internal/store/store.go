// Package store persists threads, messages and agent access data. A Store is
// backed by SQLite, Postgres or process memory; the variant is chosen once by
// Open.
package store

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/soyeahso/supportim/internal/config"
	"github.com/soyeahso/supportim/internal/domain"
	"github.com/soyeahso/supportim/internal/logging"
)

// ErrNotFound is returned when a message, profile, note or token is absent.
var ErrNotFound = errors.New("not found")

// MessageStore is the append-only message log.
type MessageStore interface {
	// Append assigns ID and TS, persists the message and returns the stored record.
	Append(ctx context.Context, msg domain.NewMessage) (domain.Message, error)
	// ListByThread returns every message of a thread ordered by (TS, ID).
	ListByThread(ctx context.Context, phone string) ([]domain.Message, error)
	GetMessage(ctx context.Context, id int64) (domain.Message, error)
	SetCountry(ctx context.Context, id int64, country string) error
	// MarkRecalled flips the type to recall and keeps the content.
	MarkRecalled(ctx context.Context, id int64, at int64) error
	DeleteMessage(ctx context.Context, id int64) error
	// PurgeRecalled clears the content of messages recalled before the cutoff.
	PurgeRecalled(ctx context.Context, before int64) (int, error)
}

// ThreadStore holds per-thread watermarks and the conversation list.
type ThreadStore interface {
	SetReadWatermark(ctx context.Context, phone string, ts int64) error
	ReadWatermark(ctx context.Context, phone string) (int64, bool, error)
	SetSeenWatermark(ctx context.Context, phone string, ts int64) error
	// ListThreads returns one summary per thread, most recent activity first.
	// Online is left false; presence is not a storage concern.
	ListThreads(ctx context.Context) ([]domain.ThreadSummary, error)
}

// ProfileStore holds customer profiles.
type ProfileStore interface {
	GetProfile(ctx context.Context, phone string) (domain.Profile, error)
	// UpsertProfile creates or updates a profile. Empty fields keep their stored value.
	UpsertProfile(ctx context.Context, p domain.Profile) (domain.Profile, error)
}

// AccessStore holds the agent allow-list and issued agent tokens.
type AccessStore interface {
	ListACL(ctx context.Context) ([]domain.ACLEntry, error)
	AddACL(ctx context.Context, phone string) error
	RemoveACL(ctx context.Context, phone string) error
	HasACL(ctx context.Context, phone string) (bool, error)
	// ListAgentTokens returns all tokens with the secret value blanked.
	ListAgentTokens(ctx context.Context) ([]domain.AgentToken, error)
	CreateAgentToken(ctx context.Context, name string) (domain.AgentToken, error)
	RevokeAgentToken(ctx context.Context, id int64) error
	ValidAgentToken(ctx context.Context, token string) (bool, error)
}

// NoteStore holds agent notes on threads.
type NoteStore interface {
	ListNotes(ctx context.Context, phone string) ([]domain.Note, error)
	AddNote(ctx context.Context, phone, content string) (domain.Note, error)
	UpdateNote(ctx context.Context, id int64, content string) (domain.Note, error)
	SetNotePinned(ctx context.Context, id int64, pinned bool) (domain.Note, error)
	DeleteNote(ctx context.Context, id int64) error
}

// Store is the full persistence surface used by the gateway.
type Store interface {
	MessageStore
	ThreadStore
	ProfileStore
	AccessStore
	NoteStore

	// Backend names the active variant: "sqlite", "postgres" or "memory".
	Backend() string
	Close() error
}

// Option configures a store variant.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the clock used to stamp messages and records.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Open selects the store variant configured in cfg. When the durable
// backend cannot be opened it logs the failure and falls back to the
// in-memory store, so Open always returns a usable Store.
func Open(ctx context.Context, cfg config.StoreConfig, log *logging.Logger, opts ...Option) Store {
	switch cfg.Backend {
	case "memory":
		return NewMemory(cfg.SnapshotPath, cfg.SnapshotInterval, log, opts...)
	case "postgres":
		pg, err := OpenPostgres(ctx, cfg.DSN, log, opts...)
		if err == nil {
			return pg
		}
		log.Warn().Err(err).Msg("postgres unavailable, falling back to memory store")
	default:
		db, err := OpenSQLite(cfg.Path, log, opts...)
		if err == nil {
			return db
		}
		log.Warn().Err(err).Str("path", cfg.Path).Msg("sqlite unavailable, falling back to memory store")
	}
	return NewMemory(cfg.SnapshotPath, cfg.SnapshotInterval, log, opts...)
}

// stamper hands out per-thread timestamps that never go backwards.
type stamper struct {
	now  func() time.Time
	last map[string]int64
}

func newStamper(now func() time.Time) *stamper {
	return &stamper{now: now, last: make(map[string]int64)}
}

// known reports whether the thread already has a timestamp on record.
func (s *stamper) known(phone string) bool {
	_, ok := s.last[phone]
	return ok
}

// seed records a previously persisted timestamp for a thread.
func (s *stamper) seed(phone string, ts int64) {
	if ts > s.last[phone] {
		s.last[phone] = ts
	}
}

// next returns the timestamp for a new message on phone. Callers hold the
// store lock across next and the insert.
func (s *stamper) next(phone string) int64 {
	ts := s.now().UnixMilli()
	if last, ok := s.last[phone]; ok && ts < last {
		ts = last
	}
	s.last[phone] = ts
	return ts
}

// newToken returns a random 48 character hex token.
func newToken() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func millis(t time.Time) int64 {
	return t.UnixMilli()
}

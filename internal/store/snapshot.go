package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/soyeahso/supportim/internal/domain"
	"github.com/soyeahso/supportim/internal/logging"
)

// snapshotFile is the on-disk shape of a memory store.
type snapshotFile struct {
	Messages    []domain.Message          `json:"messages"`
	Users       map[string]domain.Profile `json:"users"`
	NextID      int64                     `json:"nextId"`
	Reads       map[string]int64          `json:"reads"`
	Seen        map[string]int64          `json:"seen"`
	ACL         map[string]int64          `json:"acl,omitempty"`
	Tokens      []snapshotToken           `json:"tokens,omitempty"`
	NextTokenID int64                     `json:"nextTokenId,omitempty"`
	Notes       []domain.Note             `json:"notes,omitempty"`
	NextNoteID  int64                     `json:"nextNoteId,omitempty"`
}

// snapshotToken keeps the secret that domain.AgentToken may omit.
type snapshotToken struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Token     string `json:"token"`
	CreatedAt int64  `json:"created_at"`
	RevokedAt int64  `json:"revoked_at"`
}

// snapshot captures the current state. It takes the store lock.
func (m *Memory) snapshot() snapshotFile {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := snapshotFile{
		Messages:    make([]domain.Message, len(m.messages)),
		Users:       make(map[string]domain.Profile, len(m.users)),
		NextID:      m.nextID,
		Reads:       make(map[string]int64, len(m.reads)),
		Seen:        make(map[string]int64, len(m.seen)),
		ACL:         make(map[string]int64, len(m.acl)),
		NextTokenID: m.nextTok,
		Notes:       append([]domain.Note(nil), m.notes...),
		NextNoteID:  m.nextNote,
	}
	for i, msg := range m.messages {
		msg.ReplyTo = cloneID(msg.ReplyTo)
		s.Messages[i] = msg
	}
	for k, v := range m.users {
		s.Users[k] = v
	}
	for k, v := range m.reads {
		s.Reads[k] = v
	}
	for k, v := range m.seen {
		s.Seen[k] = v
	}
	for k, v := range m.acl {
		s.ACL[k] = v
	}
	for _, t := range m.tokens {
		s.Tokens = append(s.Tokens, snapshotToken(t))
	}
	return s
}

// restore replaces the store state with a loaded snapshot.
func (m *Memory) restore(s *snapshotFile) {
	if s == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.messages = s.Messages
	m.nextID = 1
	for _, msg := range m.messages {
		m.nextID = max(m.nextID, msg.ID+1)
		m.stamp.seed(msg.Phone, msg.TS)
	}
	m.nextID = max(m.nextID, s.NextID)
	if s.Users != nil {
		m.users = s.Users
	}
	if s.Reads != nil {
		m.reads = s.Reads
	}
	if s.Seen != nil {
		m.seen = s.Seen
	}
	if s.ACL != nil {
		m.acl = s.ACL
	}
	for _, t := range s.Tokens {
		m.tokens = append(m.tokens, domain.AgentToken(t))
		m.nextTok = max(m.nextTok, t.ID+1)
	}
	m.nextTok = max(m.nextTok, s.NextTokenID)
	m.notes = s.Notes
	for _, n := range m.notes {
		m.nextNote = max(m.nextNote, n.ID+1)
	}
	m.nextNote = max(m.nextNote, s.NextNoteID)
}

// snapshotter coalesces change notifications into rate-limited file writes.
type snapshotter struct {
	path     string
	interval time.Duration
	log      *logging.Logger

	dirty chan struct{}
	done  chan struct{}
	wg    sync.WaitGroup
	once  sync.Once
}

func newSnapshotter(path string, interval time.Duration, log *logging.Logger) *snapshotter {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &snapshotter{
		path:     path,
		interval: interval,
		log:      log,
		dirty:    make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// load reads the snapshot file. A missing file yields nil; an unreadable
// one is moved aside so the store starts empty.
func (s *snapshotter) load() *snapshotFile {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		s.log.Warn().Err(err).Str("path", s.path).Msg("reading snapshot")
		return nil
	}
	var snap snapshotFile
	if err := json.Unmarshal(data, &snap); err != nil {
		aside := fmt.Sprintf("%s.corrupt-%d", s.path, time.Now().UnixMilli())
		if rerr := os.Rename(s.path, aside); rerr != nil {
			s.log.Warn().Err(rerr).Str("path", s.path).Msg("moving corrupt snapshot aside")
		}
		s.log.Warn().Err(err).Str("moved_to", aside).Msg("snapshot is corrupt, starting empty")
		return nil
	}
	return &snap
}

// mark schedules a write. It never blocks.
func (s *snapshotter) mark() {
	select {
	case s.dirty <- struct{}{}:
	default:
	}
}

func (s *snapshotter) start(capture func() snapshotFile) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-s.done:
				return
			case <-s.dirty:
			}
			if err := s.write(capture()); err != nil {
				s.log.Error().Err(err).Str("path", s.path).Msg("writing snapshot")
			}
			select {
			case <-s.done:
				return
			case <-time.After(s.interval):
			}
		}
	}()
}

// stop ends the writer and flushes the final state.
func (s *snapshotter) stop(capture func() snapshotFile) error {
	var err error
	s.once.Do(func() {
		close(s.done)
		s.wg.Wait()
		err = s.write(capture())
	})
	return err
}

func (s *snapshotter) write(snap snapshotFile) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}

// Package presence counts live customer connections per thread and reports
// online/offline transitions.
package presence

import (
	"context"
	"sync"
	"time"

	"github.com/soyeahso/supportim/internal/logging"
)

// Emitter is called when a thread crosses between zero and non-zero
// connections. Calls are serialized in mutation order. An Emitter may read
// the tracker but must not call Connect, Disconnect or Reconcile.
type Emitter func(phone string, online bool)

// Tracker holds the per-thread customer connection counts.
type Tracker struct {
	// emitMu spans a mutation and its notify so transitions reach the
	// emitter in the order the counts changed. mu guards counts only.
	emitMu sync.Mutex
	mu     sync.Mutex
	counts map[string]int
	notify Emitter
	log    *logging.Logger
}

// NewTracker creates a tracker. notify may be nil.
func NewTracker(notify Emitter, log *logging.Logger) *Tracker {
	if notify == nil {
		notify = func(string, bool) {}
	}
	return &Tracker{
		counts: make(map[string]int),
		notify: notify,
		log:    log.Sub("presence"),
	}
}

// Connect records a new customer connection on phone.
func (t *Tracker) Connect(phone string) {
	t.emitMu.Lock()
	defer t.emitMu.Unlock()

	t.mu.Lock()
	t.counts[phone]++
	online := t.counts[phone] == 1
	t.mu.Unlock()

	if online {
		t.log.Debug().Str("phone", phone).Msg("online")
		t.notify(phone, true)
	}
}

// Disconnect removes a customer connection from phone. Counts never go
// below zero.
func (t *Tracker) Disconnect(phone string) {
	t.emitMu.Lock()
	defer t.emitMu.Unlock()

	t.mu.Lock()
	n, ok := t.counts[phone]
	if !ok {
		t.mu.Unlock()
		return
	}
	if n <= 1 {
		delete(t.counts, phone)
	} else {
		t.counts[phone] = n - 1
	}
	offline := n == 1
	t.mu.Unlock()

	if offline {
		t.log.Debug().Str("phone", phone).Msg("offline")
		t.notify(phone, false)
	}
}

// Count returns the live connection count for phone.
func (t *Tracker) Count(phone string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts[phone]
}

// Online reports whether phone has at least one live customer connection.
func (t *Tracker) Online(phone string) bool {
	return t.Count(phone) > 0
}

// Snapshot returns every thread that is currently online.
func (t *Tracker) Snapshot() map[string]bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]bool, len(t.counts))
	for phone := range t.counts {
		out[phone] = true
	}
	return out
}

// Reconcile replaces all counts with live, the counts derived from the
// current connection set. Only threads whose online state flipped are
// notified.
func (t *Tracker) Reconcile(live map[string]int) {
	type change struct {
		phone  string
		online bool
	}
	var changes []change

	t.emitMu.Lock()
	defer t.emitMu.Unlock()

	t.mu.Lock()
	for phone := range t.counts {
		if live[phone] <= 0 {
			changes = append(changes, change{phone, false})
		}
	}
	next := make(map[string]int, len(live))
	for phone, n := range live {
		if n <= 0 {
			continue
		}
		next[phone] = n
		if t.counts[phone] == 0 {
			changes = append(changes, change{phone, true})
		}
	}
	drift := false
	for phone, n := range next {
		if t.counts[phone] != n {
			drift = true
			break
		}
	}
	drift = drift || len(next) != len(t.counts)
	t.counts = next
	t.mu.Unlock()

	if drift {
		t.log.Debug().Int("threads", len(next)).Int("flips", len(changes)).Msg("reconciled presence")
	}
	for _, c := range changes {
		t.notify(c.phone, c.online)
	}
}

// Run reconciles against snapshot every interval until ctx is done.
func (t *Tracker) Run(ctx context.Context, interval time.Duration, snapshot func() map[string]int) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Reconcile(snapshot())
		}
	}
}

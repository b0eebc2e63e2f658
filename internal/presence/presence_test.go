package presence

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/soyeahso/supportim/internal/logging"
	"github.com/stretchr/testify/assert"
)

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) notify(phone string, online bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state := "offline"
	if online {
		state = "online"
	}
	r.events = append(r.events, phone+":"+state)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func newTestTracker() (*Tracker, *recorder) {
	r := &recorder{}
	return NewTracker(r.notify, logging.New(nil, "silent")), r
}

func TestTransitionsOnlyOnZeroBoundary(t *testing.T) {
	tr, rec := newTestTracker()

	tr.Connect("+1")
	tr.Connect("+1")
	assert.Equal(t, 2, tr.Count("+1"))
	tr.Disconnect("+1")
	assert.True(t, tr.Online("+1"))
	tr.Disconnect("+1")
	assert.False(t, tr.Online("+1"))

	assert.Equal(t, []string{"+1:online", "+1:offline"}, rec.list())
}

func TestDisconnectNeverNegative(t *testing.T) {
	tr, rec := newTestTracker()

	tr.Disconnect("+1")
	tr.Disconnect("+1")
	assert.Equal(t, 0, tr.Count("+1"))
	assert.Empty(t, rec.list())

	tr.Connect("+1")
	assert.Equal(t, 1, tr.Count("+1"))
	assert.Equal(t, []string{"+1:online"}, rec.list())
}

func TestConcurrentConnectDisconnect(t *testing.T) {
	tr, rec := newTestTracker()

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.Connect("+1")
			tr.Disconnect("+1")
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, tr.Count("+1"))
	events := rec.list()
	online, offline := 0, 0
	for _, e := range events {
		if e == "+1:online" {
			online++
		} else {
			offline++
		}
	}
	assert.Equal(t, online, offline)
}

func TestReconcile(t *testing.T) {
	tr, rec := newTestTracker()
	tr.Connect("+1")
	tr.Connect("+1")
	tr.Connect("+2")

	// +1 drifted from 2 to 1 (still online), +2 vanished, +3 appeared.
	tr.Reconcile(map[string]int{"+1": 1, "+3": 2, "+4": 0})

	assert.Equal(t, 1, tr.Count("+1"))
	assert.Equal(t, 0, tr.Count("+2"))
	assert.Equal(t, 2, tr.Count("+3"))
	assert.False(t, tr.Online("+4"))
	assert.ElementsMatch(t, []string{"+1:online", "+2:online", "+2:offline", "+3:online"}, rec.list())
	assert.Equal(t, map[string]bool{"+1": true, "+3": true}, tr.Snapshot())
}

func TestRunStopsOnCancel(t *testing.T) {
	tr, _ := newTestTracker()
	tr.Connect("+1")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		tr.Run(ctx, 5*time.Millisecond, func() map[string]int { return map[string]int{} })
		close(done)
	}()

	assert.Eventually(t, func() bool { return !tr.Online("+1") }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
}

func TestTransitionsReachEmitterInMutationOrder(t *testing.T) {
	var mu sync.Mutex
	var seen []bool
	entered := make(chan struct{})
	release := make(chan struct{})
	tr := NewTracker(func(phone string, online bool) {
		if online {
			close(entered)
			<-release
		}
		mu.Lock()
		seen = append(seen, online)
		mu.Unlock()
	}, logging.New(nil, "silent"))

	connected := make(chan struct{})
	go func() {
		tr.Connect("+1")
		close(connected)
	}()
	<-entered

	disconnected := make(chan struct{})
	go func() {
		tr.Disconnect("+1")
		close(disconnected)
	}()
	select {
	case <-disconnected:
		t.Fatal("disconnect finished while the online transition was still being emitted")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	<-connected
	<-disconnected

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []bool{true, false}, seen)
	assert.Equal(t, 0, tr.Count("+1"))
}

func TestEmitterMayReadTracker(t *testing.T) {
	var tr *Tracker
	var snapshots []map[string]bool
	tr = NewTracker(func(string, bool) {
		snapshots = append(snapshots, tr.Snapshot())
	}, logging.New(nil, "silent"))

	tr.Connect("+1")
	tr.Disconnect("+1")
	tr.Reconcile(map[string]int{"+2": 1})

	assert.Equal(t, []map[string]bool{{"+1": true}, {}, {"+2": true}}, snapshots)
}

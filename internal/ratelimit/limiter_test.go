package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/soyeahso/supportim/internal/config"
	"github.com/soyeahso/supportim/internal/domain"
	"github.com/soyeahso/supportim/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestFixedWindow(t *testing.T) {
	clock := newFakeClock()
	l := New(3, time.Minute, WithClock(clock.now))

	for i := range 3 {
		d := l.Allow("1.2.3.4")
		require.True(t, d.Allowed, "call %d", i+1)
		assert.Equal(t, 2-i, d.Remaining)
	}
	d := l.Allow("1.2.3.4")
	assert.False(t, d.Allowed)
	assert.ErrorIs(t, d.Err(), ErrLimited)
	assert.Equal(t, clock.now().Add(time.Minute), d.ResetAt)

	// Other keys are independent.
	assert.True(t, l.Allow("5.6.7.8").Allowed)

	// The window end itself is still inside the window.
	clock.advance(time.Minute)
	assert.False(t, l.Allow("1.2.3.4").Allowed)

	clock.advance(time.Millisecond)
	d = l.Allow("1.2.3.4")
	assert.True(t, d.Allowed)
	assert.Equal(t, 2, d.Remaining)
}

func TestRejectionsDoNotCount(t *testing.T) {
	clock := newFakeClock()
	l := New(1, time.Second, WithClock(clock.now))

	assert.True(t, l.Allow("k").Allowed)
	for range 10 {
		assert.False(t, l.Allow("k").Allowed)
	}
	clock.advance(2 * time.Second)
	assert.True(t, l.Allow("k").Allowed)
}

func TestExhaustedDoesNotCount(t *testing.T) {
	clock := newFakeClock()
	l := New(2, time.Minute, WithClock(clock.now))

	assert.False(t, l.Exhausted("k"))
	l.Allow("k")
	for range 5 {
		assert.False(t, l.Exhausted("k"))
	}
	l.Allow("k")
	assert.True(t, l.Exhausted("k"))

	clock.advance(time.Minute + time.Millisecond)
	assert.False(t, l.Exhausted("k"))
}

func TestSweepAndForget(t *testing.T) {
	clock := newFakeClock()
	l := New(5, time.Second, WithClock(clock.now))
	l.Allow("a")
	l.Allow("b")
	assert.Equal(t, 2, l.Len())

	l.Forget("a")
	assert.Equal(t, 1, l.Len())

	assert.Equal(t, 0, l.Sweep())
	clock.advance(2 * time.Second)
	assert.Equal(t, 1, l.Sweep())
	assert.Equal(t, 0, l.Len())
}

func TestRealtimeRoleQuotas(t *testing.T) {
	clock := newFakeClock()
	r := NewRealtime(Policy{
		Window:  time.Minute,
		Actions: map[string]Quota{ActionMessage: {Customer: 2, Agent: 4}},
	}, WithClock(clock.now))

	for range 2 {
		require.NoError(t, r.Allow("c1", domain.RoleCustomer, ActionMessage))
	}
	assert.ErrorIs(t, r.Allow("c1", domain.RoleCustomer, ActionMessage), ErrLimited)

	// Quotas are per connection.
	require.NoError(t, r.Allow("c2", domain.RoleCustomer, ActionMessage))

	for range 4 {
		require.NoError(t, r.Allow("a1", domain.RoleAgent, ActionMessage))
	}
	assert.ErrorIs(t, r.Allow("a1", domain.RoleAgent, ActionMessage), ErrLimited)

	// Actions without a quota are not limited.
	for range 100 {
		require.NoError(t, r.Allow("c1", domain.RoleCustomer, "typing"))
	}

	r.Forget("c1")
	assert.NoError(t, r.Allow("c1", domain.RoleCustomer, ActionMessage))
}

func TestPolicyFromDefaults(t *testing.T) {
	p := PolicyFromConfig(config.Defaults().RateLimit.Realtime)
	assert.Equal(t, time.Minute, p.Window)
	assert.Equal(t, Quota{Customer: 30, Agent: 120}, p.Actions[ActionMessage])
	assert.Equal(t, Quota{Customer: 5, Agent: 30}, p.Actions[ActionJoin])
	assert.Equal(t, Quota{Customer: 10, Agent: 60}, p.Actions[ActionRecall])
	assert.Equal(t, Quota{Customer: 60, Agent: 120}, p.Actions[ActionSeen])
}

type fakeCounter struct {
	mu     sync.Mutex
	counts map[string]int64
	ttls   map[string]time.Duration
	err    error
}

func newFakeCounter() *fakeCounter {
	return &fakeCounter{counts: map[string]int64{}, ttls: map[string]time.Duration{}}
}

func (f *fakeCounter) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	f.counts[key]++
	if f.counts[key] == 1 {
		f.ttls[key] = ttl
	}
	return f.counts[key], nil
}

func TestSharedUsesCounter(t *testing.T) {
	clock := newFakeClock()
	counter := newFakeCounter()
	s := NewShared(New(2, time.Minute, WithClock(clock.now)), counter, "im:", 0, logging.New(nil, "silent"))

	assert.Equal(t, "im:ip:9.9.9.9:rl:60000:2", s.Key("9.9.9.9"))
	assert.True(t, s.Allow(context.Background(), "9.9.9.9").Allowed)
	d := s.Allow(context.Background(), "9.9.9.9")
	assert.True(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
	assert.False(t, s.Allow(context.Background(), "9.9.9.9").Allowed)

	assert.Equal(t, int64(3), counter.counts["im:ip:9.9.9.9:rl:60000:2"])
	assert.Equal(t, time.Minute, counter.ttls["im:ip:9.9.9.9:rl:60000:2"])
	assert.Equal(t, 0, s.local.Len(), "local limiter untouched while counter is healthy")
}

func TestSharedFallsBackToLocal(t *testing.T) {
	clock := newFakeClock()
	counter := newFakeCounter()
	counter.err = errors.New("connection refused")
	s := NewShared(New(1, time.Minute, WithClock(clock.now)), counter, "im:", 0, logging.New(nil, "silent"))

	assert.True(t, s.Allow(context.Background(), "1.1.1.1").Allowed)
	assert.False(t, s.Allow(context.Background(), "1.1.1.1").Allowed)
}

func TestSharedWithoutCounter(t *testing.T) {
	s := NewShared(New(1, time.Minute), nil, "", 0, logging.New(nil, "silent"))
	assert.True(t, s.Allow(context.Background(), "1.1.1.1").Allowed)
	assert.False(t, s.Allow(context.Background(), "1.1.1.1").Allowed)
}

func TestRedisCounterRejectsBadURL(t *testing.T) {
	_, err := NewRedisCounter("not a url")
	assert.Error(t, err)
}

// pipelineRecorder answers redis pipelines locally and records their
// commands.
type pipelineRecorder struct {
	mu        sync.Mutex
	pipelines [][]string
	count     int64
}

func (h *pipelineRecorder) DialHook(next redis.DialHook) redis.DialHook { return next }

func (h *pipelineRecorder) ProcessHook(next redis.ProcessHook) redis.ProcessHook { return next }

func (h *pipelineRecorder) ProcessPipelineHook(redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(_ context.Context, cmds []redis.Cmder) error {
		h.mu.Lock()
		defer h.mu.Unlock()
		var names []string
		for _, cmd := range cmds {
			args := make([]string, len(cmd.Args()))
			for i, a := range cmd.Args() {
				args[i] = fmt.Sprint(a)
			}
			names = append(names, strings.Join(args, " "))
			switch c := cmd.(type) {
			case *redis.IntCmd:
				h.count++
				c.SetVal(h.count)
			case *redis.BoolCmd:
				c.SetVal(h.count == 1)
			}
		}
		h.pipelines = append(h.pipelines, names)
		return nil
	}
}

func TestRedisCounterArmsTTLOnEveryHit(t *testing.T) {
	rec := &pipelineRecorder{}
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	client.AddHook(rec)
	c := &RedisCounter{client: client}
	defer c.Close()

	for want := int64(1); want <= 3; want++ {
		n, err := c.Incr(context.Background(), "im:k", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}

	require.Len(t, rec.pipelines, 3)
	for _, p := range rec.pipelines {
		assert.Equal(t, []string{"incr im:k", "expire im:k 60 nx"}, p)
	}
}

package supervisor

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/HeadyMe/heady-mcp-router/internal/backend"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// fakePinger serves scripted ping outcomes per backend.
type fakePinger struct {
	mu        sync.Mutex
	connected map[string]bool
	errs      map[string]error
	pings     map[string]int
}

func newFakePinger(names ...string) *fakePinger {
	f := &fakePinger{
		connected: make(map[string]bool),
		errs:      make(map[string]error),
		pings:     make(map[string]int),
	}
	for _, n := range names {
		f.connected[n] = true
	}
	return f
}

func (f *fakePinger) Connected() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for n := range f.connected {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func (f *fakePinger) Ping(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pings[name]++
	return f.errs[name]
}

func (f *fakePinger) Disconnect(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.connected, name)
	return nil
}

func (f *fakePinger) setErr(name string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[name] = err
}

func TestProbe_PrunesAfterMaxFailures(t *testing.T) {
	p := newFakePinger("git", "memory")
	s := New(p, Config{MaxFailures: 3}, nil)
	var pruned []string
	s.OnPrune = func(name string) { pruned = append(pruned, name) }

	p.setErr("git", backend.ErrTimeout)
	ctx := context.Background()

	assert.Empty(t, s.Probe(ctx))
	assert.Empty(t, s.Probe(ctx))
	assert.Equal(t, map[string]int{"git": 2}, s.Stats().Failures)
	assert.Equal(t, []string{"git"}, s.Probe(ctx))

	assert.Equal(t, []string{"memory"}, p.Connected())
	assert.Equal(t, []string{"git"}, pruned)
	st := s.Stats()
	assert.Equal(t, int64(3), st.Rounds)
	assert.Equal(t, int64(1), st.Pruned)
	assert.Empty(t, st.Failures)
}

func TestProbe_SuccessResetsCount(t *testing.T) {
	p := newFakePinger("git")
	s := New(p, Config{MaxFailures: 2}, nil)
	ctx := context.Background()

	p.setErr("git", errors.New("broken pipe"))
	s.Probe(ctx)
	p.setErr("git", nil)
	s.Probe(ctx)
	p.setErr("git", errors.New("broken pipe"))
	s.Probe(ctx)

	assert.Equal(t, []string{"git"}, p.Connected())
	assert.Equal(t, 1, s.Stats().Failures["git"])
}

func TestProbe_RemoteErrorIsAlive(t *testing.T) {
	p := newFakePinger("legacy")
	p.setErr("legacy", &backend.RemoteError{Code: -32601, Message: "Method not found"})
	s := New(p, Config{MaxFailures: 1}, nil)

	assert.Empty(t, s.Probe(context.Background()))
	assert.Equal(t, []string{"legacy"}, p.Connected())
}

func TestProbe_NotConnectedIsIgnored(t *testing.T) {
	p := newFakePinger("git")
	p.setErr("git", backend.ErrNotConnected)
	s := New(p, Config{MaxFailures: 1}, nil)

	assert.Empty(t, s.Probe(context.Background()))
	assert.Empty(t, s.Stats().Failures)
}

func TestStartStop(t *testing.T) {
	defer goleak.VerifyNone(t)

	p := newFakePinger("git")
	s := New(p, Config{Interval: 10 * time.Millisecond}, nil)
	s.Start()

	require.Eventually(t, func() bool { return s.Stats().Rounds >= 2 }, 2*time.Second, 5*time.Millisecond)
	s.Stop()

	rounds := s.Stats().Rounds
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, rounds, s.Stats().Rounds, "no rounds after Stop")
}

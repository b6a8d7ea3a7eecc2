// Package supervisor probes connected backends and prunes the ones that
// stop answering.
package supervisor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/HeadyMe/heady-mcp-router/internal/backend"
	"go.uber.org/zap"
)

// Pinger is the part of backend.Manager the supervisor needs.
type Pinger interface {
	Connected() []string
	Ping(ctx context.Context, name string) error
	Disconnect(name string) error
}

// Config tunes probing.
type Config struct {
	Interval    time.Duration
	Timeout     time.Duration
	MaxFailures int
}

// DefaultConfig probes every 30s and prunes after three misses.
func DefaultConfig() Config {
	return Config{
		Interval:    30 * time.Second,
		Timeout:     5 * time.Second,
		MaxFailures: 3,
	}
}

// Stats summarise supervisor activity.
type Stats struct {
	Rounds   int64          `json:"rounds"`
	Probes   int64          `json:"probes"`
	Pruned   int64          `json:"pruned"`
	Failures map[string]int `json:"failures"`
}

// Supervisor runs the probe loop.
type Supervisor struct {
	pinger Pinger
	cfg    Config
	logger *zap.Logger

	// OnPrune, if set, is called after a backend is disconnected.
	OnPrune func(name string)

	mu       sync.Mutex
	failures map[string]int
	rounds   int64
	probes   int64
	pruned   int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a supervisor. Zero config fields take DefaultConfig values.
func New(p Pinger, cfg Config, logger *zap.Logger) *Supervisor {
	d := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = d.Interval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = d.Timeout
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = d.MaxFailures
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Supervisor{
		pinger:   p,
		cfg:      cfg,
		logger:   logger,
		failures: make(map[string]int),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start begins the probe loop.
func (s *Supervisor) Start() {
	s.wg.Add(1)
	go s.loop()
	s.logger.Info("supervisor started", zap.Duration("interval", s.cfg.Interval))
}

// Stop ends the loop and waits for an in-progress round.
func (s *Supervisor) Stop() {
	s.cancel()
	s.wg.Wait()
	s.logger.Info("supervisor stopped")
}

func (s *Supervisor) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.Probe(s.ctx)
		}
	}
}

// Probe pings every connected backend once and prunes those that reached
// MaxFailures consecutive failures. It returns the pruned names.
func (s *Supervisor) Probe(ctx context.Context) []string {
	names := s.pinger.Connected()

	results := make([]error, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			pctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
			defer cancel()
			results[i] = s.pinger.Ping(pctx, name)
		}(i, name)
	}
	wg.Wait()

	var prune []string
	s.mu.Lock()
	s.rounds++
	s.probes += int64(len(names))
	live := make(map[string]bool, len(names))
	for i, name := range names {
		live[name] = true
		err := results[i]
		switch {
		case alive(err):
			delete(s.failures, name)
		case errors.Is(err, backend.ErrNotConnected):
			delete(s.failures, name)
		case ctx.Err() != nil:
			// shutting down; the miss is ours, not the backend's
		default:
			s.failures[name]++
			s.logger.Warn("backend probe failed",
				zap.String("service", name),
				zap.Int("failures", s.failures[name]),
				zap.Error(err),
			)
			if s.failures[name] >= s.cfg.MaxFailures {
				prune = append(prune, name)
				delete(s.failures, name)
			}
		}
	}
	for name := range s.failures {
		if !live[name] {
			delete(s.failures, name)
		}
	}
	s.mu.Unlock()

	for _, name := range prune {
		if err := s.pinger.Disconnect(name); err != nil {
			s.logger.Warn("prune backend", zap.String("service", name), zap.Error(err))
		}
		s.logger.Warn("backend pruned after failed probes", zap.String("service", name))
		s.mu.Lock()
		s.pruned++
		s.mu.Unlock()
		if s.OnPrune != nil {
			s.OnPrune(name)
		}
	}
	return prune
}

// alive reports whether a ping outcome shows the backend is answering. A
// JSON-RPC error reply still proves the peer is up.
func alive(err error) bool {
	if err == nil {
		return true
	}
	var remote *backend.RemoteError
	return errors.As(err, &remote)
}

// Stats returns a snapshot.
func (s *Supervisor) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	failures := make(map[string]int, len(s.failures))
	for k, v := range s.failures {
		failures[k] = v
	}
	return Stats{
		Rounds:   s.rounds,
		Probes:   s.probes,
		Pruned:   s.pruned,
		Failures: failures,
	}
}

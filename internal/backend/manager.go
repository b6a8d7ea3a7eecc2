package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Dialer opens a transport to a configured backend.
type Dialer func(ctx context.Context, name string, cfg ServerConfig) (Transport, error)

// DefaultDialer spawns stdio backends and dials http ones.
func DefaultDialer(logger *zap.Logger) Dialer {
	return func(_ context.Context, name string, cfg ServerConfig) (Transport, error) {
		switch cfg.Kind() {
		case TransportHTTP:
			return NewHTTPTransport(name, cfg, logger), nil
		default:
			return StartStdio(name, cfg, logger)
		}
	}
}

// Options tune the manager.
type Options struct {
	HandshakeTimeout time.Duration
	CallTimeout      time.Duration
	DrainTimeout     time.Duration
	ClientName       string
	ClientVersion    string
	// ConnectLimit bounds concurrent connects in ConnectAll.
	ConnectLimit int
	// Dialer overrides DefaultDialer.
	Dialer Dialer
	// OnChange is called with the number of live connections after each change.
	OnChange func(connected int)
}

// DefaultOptions returns the standard timeouts.
func DefaultOptions() Options {
	return Options{
		HandshakeTimeout: 5 * time.Second,
		CallTimeout:      30 * time.Second,
		DrainTimeout:     5 * time.Second,
		ClientName:       "headyrouter",
		ClientVersion:    "dev",
		ConnectLimit:     4,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = d.HandshakeTimeout
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = d.CallTimeout
	}
	if o.DrainTimeout <= 0 {
		o.DrainTimeout = d.DrainTimeout
	}
	if o.ClientName == "" {
		o.ClientName = d.ClientName
	}
	if o.ClientVersion == "" {
		o.ClientVersion = d.ClientVersion
	}
	if o.ConnectLimit <= 0 {
		o.ConnectLimit = d.ConnectLimit
	}
	return o
}

// Manager owns the connection table. All mutation goes through it.
type Manager struct {
	servers Servers
	opts    Options
	dial    Dialer
	logger  *zap.Logger
	group   singleflight.Group

	mu      sync.RWMutex
	clients map[string]*Client
	closed  bool

	watchers sync.WaitGroup
}

// NewManager creates a manager for the given backend configs.
func NewManager(servers Servers, opts Options, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if servers == nil {
		servers = Servers{}
	}
	opts = opts.withDefaults()
	dial := opts.Dialer
	if dial == nil {
		dial = DefaultDialer(logger)
	}
	return &Manager{
		servers: servers,
		opts:    opts,
		dial:    dial,
		logger:  logger,
		clients: make(map[string]*Client),
	}
}

// Configured returns the enabled configured server names.
func (m *Manager) Configured() []string {
	return m.servers.Names()
}

// ServerConfig returns the configuration for name.
func (m *Manager) ServerConfig(name string) (ServerConfig, bool) {
	cfg, ok := m.servers[name]
	return cfg, ok
}

// Client returns the live client for name.
func (m *Manager) Client(name string) (*Client, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.clients[name]
	return c, ok
}

// Connected returns the names with a live connection, sorted.
func (m *Manager) Connected() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.clients))
	for n := range m.clients {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// IsConnected reports whether name has a live connection.
func (m *Manager) IsConnected(name string) bool {
	_, ok := m.Client(name)
	return ok
}

// Connect returns the live client for name, establishing it if needed.
// Concurrent connects for the same name share one attempt.
func (m *Manager) Connect(ctx context.Context, name string) (*Client, error) {
	if c, ok := m.Client(name); ok {
		return c, nil
	}

	cfg, ok := m.servers[name]
	if !ok || cfg.Disabled {
		return nil, &ConnectionError{Service: name, Err: ErrNotConfigured}
	}

	// The shared attempt outlives any single caller; each caller still
	// gives up on its own context.
	ch := m.group.DoChan(name, func() (any, error) {
		if c, ok := m.Client(name); ok {
			return c, nil
		}
		return m.connect(context.WithoutCancel(ctx), name, cfg)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Client), nil
	case <-ctx.Done():
		err := ctx.Err()
		if errors.Is(err, context.DeadlineExceeded) {
			err = ErrTimeout
		}
		return nil, &ConnectionError{Service: name, Err: err}
	}
}

func (m *Manager) connect(ctx context.Context, name string, cfg ServerConfig) (*Client, error) {
	m.mu.RLock()
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return nil, &ConnectionError{Service: name, Err: ErrTransportClosed}
	}

	ctx, cancel := context.WithTimeout(ctx, m.opts.HandshakeTimeout)
	defer cancel()

	start := time.Now()
	t, err := m.dial(ctx, name, cfg)
	if err != nil {
		return nil, &ConnectionError{Service: name, Err: err}
	}

	info, tools, err := m.handshake(ctx, t)
	if err != nil {
		_ = t.Close()
		return nil, &ConnectionError{Service: name, Err: err}
	}

	c := newClient(name, t, info, tools)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		_ = t.Close()
		return nil, &ConnectionError{Service: name, Err: ErrTransportClosed}
	}
	m.clients[name] = c
	count := len(m.clients)
	m.watchers.Add(1)
	m.mu.Unlock()

	go m.watch(c)
	m.changed(count)

	m.logger.Info("backend connected",
		zap.String("service", name),
		zap.String("server", info.Name),
		zap.String("version", info.Version),
		zap.Int("tools", len(tools)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return c, nil
}

func (m *Manager) handshake(ctx context.Context, t Transport) (ServerInfo, []ToolDescriptor, error) {
	raw, err := t.Call(ctx, methodInitialize, initializeParams{
		ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
		Capabilities:    map[string]any{},
		ClientInfo:      mcp.Implementation{Name: m.opts.ClientName, Version: m.opts.ClientVersion},
	})
	if err != nil {
		return ServerInfo{}, nil, fmt.Errorf("initialize: %w", err)
	}

	var res initializeResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return ServerInfo{}, nil, protocolErrorf("initialize result: %v", err)
	}
	info := ServerInfo{Name: res.ServerInfo.Name, Version: res.ServerInfo.Version, ProtocolVersion: res.ProtocolVersion}

	if err := t.Notify(ctx, methodInitialized, nil); err != nil {
		return ServerInfo{}, nil, fmt.Errorf("initialized notification: %w", err)
	}

	tools, err := listTools(ctx, t)
	if err != nil {
		return ServerInfo{}, nil, err
	}
	return info, tools, nil
}

func listTools(ctx context.Context, t Transport) ([]ToolDescriptor, error) {
	raw, err := t.Call(ctx, methodToolsList, map[string]any{})
	if err != nil {
		return nil, fmt.Errorf("tools/list: %w", err)
	}
	var res listToolsResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, protocolErrorf("tools/list result: %v", err)
	}
	if res.Tools == nil {
		res.Tools = []ToolDescriptor{}
	}
	return res.Tools, nil
}

// watch prunes the table entry when its transport dies on its own.
func (m *Manager) watch(c *Client) {
	defer m.watchers.Done()
	<-c.transport.Done()

	m.mu.Lock()
	current, ok := m.clients[c.name]
	pruned := ok && current == c
	if pruned {
		delete(m.clients, c.name)
	}
	count := len(m.clients)
	m.mu.Unlock()

	if pruned {
		m.logger.Warn("backend transport closed, pruning connection", zap.String("service", c.name))
		m.changed(count)
		_ = c.transport.Close()
	}
}

func (m *Manager) changed(count int) {
	if m.opts.OnChange != nil {
		m.opts.OnChange(count)
	}
}

// ConnectAll connects to names concurrently. Failures are logged, never returned.
// It returns the names that connected.
func (m *Manager) ConnectAll(ctx context.Context, names []string) []string {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.opts.ConnectLimit)

	var mu sync.Mutex
	var ok []string
	for _, name := range names {
		g.Go(func() error {
			if _, err := m.Connect(gctx, name); err != nil {
				m.logger.Warn("backend connect failed", zap.String("service", name), zap.Error(err))
				return nil
			}
			mu.Lock()
			ok = append(ok, name)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	sort.Strings(ok)
	return ok
}

// ListTools refreshes and returns the tool index of a connected backend.
func (m *Manager) ListTools(ctx context.Context, name string) ([]ToolDescriptor, error) {
	c, release, err := m.begin(name)
	if err != nil {
		return nil, err
	}
	defer release()

	ctx, cancel := context.WithTimeout(ctx, m.opts.CallTimeout)
	defer cancel()

	tools, err := listTools(ctx, c.transport)
	if err != nil {
		return nil, err
	}
	c.setTools(tools)
	return c.Tools(), nil
}

// CallTool forwards a tools/call to a connected backend and returns the raw result.
func (m *Manager) CallTool(ctx context.Context, name, tool string, args map[string]any) (json.RawMessage, error) {
	c, release, err := m.begin(name)
	if err != nil {
		return nil, err
	}
	defer release()

	if args == nil {
		args = map[string]any{}
	}

	ctx, cancel := context.WithTimeout(ctx, m.opts.CallTimeout)
	defer cancel()

	start := time.Now()
	raw, err := c.transport.Call(ctx, methodToolsCall, callToolParams{Name: tool, Arguments: args})
	m.logger.Debug("tool call",
		zap.String("service", name),
		zap.String("tool", tool),
		zap.Duration("elapsed", time.Since(start)),
		zap.Error(err),
	)
	return raw, err
}

// Ping checks that a connected backend still answers.
func (m *Manager) Ping(ctx context.Context, name string) error {
	c, release, err := m.begin(name)
	if err != nil {
		return err
	}
	defer release()

	_, err = c.transport.Call(ctx, methodPing, nil)
	return err
}

func (m *Manager) begin(name string) (*Client, func(), error) {
	c, ok := m.Client(name)
	if !ok || !c.acquire() {
		return nil, nil, fmt.Errorf("%s: %w", name, ErrNotConnected)
	}
	return c, c.release, nil
}

// Disconnect removes name from the table, waits for its in-flight calls up to
// the drain timeout, and closes the transport. Disconnecting an absent name is a no-op.
func (m *Manager) Disconnect(name string) error {
	m.mu.Lock()
	c, ok := m.clients[name]
	if ok {
		delete(m.clients, name)
	}
	count := len(m.clients)
	m.mu.Unlock()

	if !ok {
		return nil
	}
	m.changed(count)

	if !c.drain(m.opts.DrainTimeout) {
		m.logger.Warn("drain timeout, closing with calls in flight",
			zap.String("service", name), zap.Int("inflight", c.InFlight()))
	}
	err := c.transport.Close()
	m.logger.Info("backend disconnected", zap.String("service", name))
	return err
}

// Close disconnects every backend and refuses new connections.
func (m *Manager) Close() error {
	m.mu.Lock()
	m.closed = true
	names := make([]string, 0, len(m.clients))
	for n := range m.clients {
		names = append(names, n)
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, n := range names {
		wg.Add(1)
		go func(n string) {
			defer wg.Done()
			if err := m.Disconnect(n); err != nil {
				m.logger.Debug("disconnect", zap.String("service", n), zap.Error(err))
			}
		}(n)
	}
	wg.Wait()
	m.watchers.Wait()
	return nil
}

package backend

import (
	"sort"
	"sync"
	"time"
)

// Client is one live entry of the connection table.
type Client struct {
	name        string
	transport   Transport
	info        ServerInfo
	connectedAt time.Time

	mu       sync.Mutex
	tools    map[string]ToolDescriptor
	inflight int
	closing  bool
	drained  chan struct{}
}

func newClient(name string, t Transport, info ServerInfo, tools []ToolDescriptor) *Client {
	c := &Client{
		name:        name,
		transport:   t,
		info:        info,
		connectedAt: time.Now(),
	}
	c.setTools(tools)
	return c
}

// Name returns the service name.
func (c *Client) Name() string { return c.name }

// Info returns what the backend reported during the handshake.
func (c *Client) Info() ServerInfo { return c.info }

// ConnectedAt returns when the handshake completed.
func (c *Client) ConnectedAt() time.Time { return c.connectedAt }

// Tools returns the cached tool index sorted by name.
func (c *Client) Tools() []ToolDescriptor {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]ToolDescriptor, 0, len(c.tools))
	for _, t := range c.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// HasTool reports whether the backend advertised tool.
func (c *Client) HasTool(tool string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.tools[tool]
	return ok
}

func (c *Client) setTools(tools []ToolDescriptor) {
	idx := make(map[string]ToolDescriptor, len(tools))
	for _, t := range tools {
		idx[t.Name] = t
	}
	c.mu.Lock()
	c.tools = idx
	c.mu.Unlock()
}

// acquire registers an in-flight call. It fails once draining has started.
func (c *Client) acquire() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closing {
		return false
	}
	c.inflight++
	return true
}

func (c *Client) release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inflight--
	if c.inflight == 0 && c.drained != nil {
		close(c.drained)
		c.drained = nil
	}
}

// drain refuses new calls and waits up to timeout for in-flight ones.
// It reports whether all calls finished.
func (c *Client) drain(timeout time.Duration) bool {
	c.mu.Lock()
	c.closing = true
	if c.inflight == 0 {
		c.mu.Unlock()
		return true
	}
	ch := c.drained
	if ch == nil {
		ch = make(chan struct{})
		c.drained = ch
	}
	c.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ch:
		return true
	case <-timer.C:
		return false
	}
}

// InFlight returns the number of calls currently outstanding.
func (c *Client) InFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inflight
}

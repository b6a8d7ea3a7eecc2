// Package backendtest provides in-memory MCP backends for tests of packages
// built on backend.Manager.
package backendtest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/HeadyMe/heady-mcp-router/internal/backend"
	"github.com/mark3labs/mcp-go/mcp"
)

// Handler serves one tool.
type Handler func(ctx context.Context, args map[string]any) (json.RawMessage, error)

// Backend is a scripted MCP server.
type Backend struct {
	Name     string
	Handlers map[string]Handler

	mu      sync.Mutex
	current *Transport
	dials   int
}

// New creates a backend with the standard tools: echo, hang and fail.
func New(name string) *Backend {
	return &Backend{
		Name: name,
		Handlers: map[string]Handler{
			"echo": Echo,
			"hang": Hang,
			"fail": Fail,
		},
	}
}

// Tools lists the backend's tools sorted by name.
func (b *Backend) Tools() []backend.ToolDescriptor {
	names := make([]string, 0, len(b.Handlers))
	for n := range b.Handlers {
		names = append(names, n)
	}
	sort.Strings(names)
	out := make([]backend.ToolDescriptor, len(names))
	for i, n := range names {
		out[i] = backend.ToolDescriptor{Name: n, InputSchema: json.RawMessage(`{"type":"object"}`)}
	}
	return out
}

// Kill closes the live transport as if the process had died.
func (b *Backend) Kill() {
	b.mu.Lock()
	t := b.current
	b.mu.Unlock()
	if t != nil {
		t.Close()
	}
}

// Dials returns how many times the backend was dialed.
func (b *Backend) Dials() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dials
}

func (b *Backend) dial() *Transport {
	t := &Transport{backend: b, done: make(chan struct{})}
	b.mu.Lock()
	b.current = t
	b.dials++
	b.mu.Unlock()
	return t
}

// Dialer connects to the named backends. Unknown names fail to dial.
func Dialer(backends ...*Backend) backend.Dialer {
	byName := make(map[string]*Backend, len(backends))
	for _, b := range backends {
		byName[b.Name] = b
	}
	return func(_ context.Context, name string, _ backend.ServerConfig) (backend.Transport, error) {
		b, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("exec: %q: executable file not found in $PATH", name)
		}
		return b.dial(), nil
	}
}

// Servers returns a stdio config entry per name.
func Servers(names ...string) backend.Servers {
	s := make(backend.Servers, len(names))
	for _, n := range names {
		s[n] = backend.ServerConfig{Command: "mcp-" + n}
	}
	return s
}

// Transport answers JSON-RPC calls in memory.
type Transport struct {
	backend *Backend
	done    chan struct{}
	once    sync.Once
}

// Call implements backend.Transport.
func (t *Transport) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	select {
	case <-t.done:
		return nil, backend.ErrTransportClosed
	default:
	}

	switch method {
	case "initialize":
		return json.Marshal(map[string]any{
			"protocolVersion": mcp.LATEST_PROTOCOL_VERSION,
			"capabilities":    map[string]any{"tools": map[string]any{}},
			"serverInfo":      mcp.Implementation{Name: t.backend.Name, Version: "test"},
		})
	case "tools/list":
		return json.Marshal(map[string]any{"tools": t.backend.Tools()})
	case "ping":
		return json.RawMessage(`{}`), nil
	case "tools/call":
		var call struct {
			Name      string         `json:"name"`
			Arguments map[string]any `json:"arguments"`
		}
		data, err := json.Marshal(params)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, &call); err != nil {
			return nil, err
		}
		h, ok := t.backend.Handlers[call.Name]
		if !ok {
			return nil, &backend.RemoteError{Code: mcp.INVALID_PARAMS, Message: "Unknown tool: " + call.Name}
		}
		return h(ctx, call.Arguments)
	}
	return nil, &backend.RemoteError{Code: mcp.METHOD_NOT_FOUND, Message: "Method not found: " + method}
}

// Notify implements backend.Transport.
func (t *Transport) Notify(context.Context, string, any) error {
	select {
	case <-t.done:
		return backend.ErrTransportClosed
	default:
		return nil
	}
}

// Close implements backend.Transport.
func (t *Transport) Close() error {
	t.once.Do(func() { close(t.done) })
	return nil
}

// Done implements backend.Transport.
func (t *Transport) Done() <-chan struct{} { return t.done }

// TextResult builds a tools/call result with one text item.
func TextResult(text string) json.RawMessage {
	data, _ := json.Marshal(map[string]any{
		"content": []map[string]any{{"type": "text", "text": text}},
	})
	return data
}

// Echo returns its arguments as JSON text.
func Echo(_ context.Context, args map[string]any) (json.RawMessage, error) {
	data, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}
	return TextResult(string(data)), nil
}

// Hang blocks until the call deadline.
func Hang(ctx context.Context, _ map[string]any) (json.RawMessage, error) {
	<-ctx.Done()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("tools/call: %w", backend.ErrTimeout)
	}
	return nil, ctx.Err()
}

// Fail replies with a JSON-RPC error.
func Fail(context.Context, map[string]any) (json.RawMessage, error) {
	return nil, &backend.RemoteError{Code: mcp.INTERNAL_ERROR, Message: "tool failed"}
}

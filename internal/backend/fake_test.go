package backend

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
)

// fakeBackend is an in-process MCP server used by the tests. Tools:
//
//	echo  returns args.message
//	slow  sleeps args.delay_ms, then echoes
//	env   returns the value of environment variable args.name
//	fail  returns a JSON-RPC error
//	hang  never answers
//	crash closes the stream
type fakeBackend struct {
	ignoreInit bool
	notified   atomic.Int32
	calls      atomic.Int32
}

var fakeTools = []ToolDescriptor{
	{Name: "echo", Description: "Echo a message", InputSchema: json.RawMessage(`{"type":"object"}`)},
	{Name: "slow", Description: "Echo after a delay"},
	{Name: "env", Description: "Read an environment variable"},
	{Name: "fail", Description: "Always fails"},
	{Name: "hang", Description: "Never answers"},
	{Name: "crash", Description: "Closes the connection"},
}

type fakeRequest struct {
	ID     *int64          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

func reply(id int64, result any) map[string]any {
	return map[string]any{"jsonrpc": "2.0", "id": id, "result": result}
}

func replyErr(id int64, code int, msg string) map[string]any {
	return map[string]any{"jsonrpc": "2.0", "id": id, "error": map[string]any{"code": code, "message": msg}}
}

func textResult(text string) map[string]any {
	return map[string]any{"content": []map[string]any{{"type": "text", "text": text}}}
}

func (f *fakeBackend) serve(in io.Reader, out io.WriteCloser) {
	defer out.Close()

	var wg sync.WaitGroup
	defer wg.Wait()

	var mu sync.Mutex
	send := func(v any) {
		data, _ := json.Marshal(v)
		mu.Lock()
		defer mu.Unlock()
		_, _ = out.Write(append(data, '\n'))
	}

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		var req fakeRequest
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			continue
		}
		if req.ID == nil {
			if req.Method == methodInitialized {
				f.notified.Add(1)
			}
			continue
		}
		id := *req.ID

		switch req.Method {
		case methodInitialize:
			if f.ignoreInit {
				continue
			}
			send(reply(id, map[string]any{
				"protocolVersion": mcp.LATEST_PROTOCOL_VERSION,
				"capabilities":    map[string]any{"tools": map[string]any{}},
				"serverInfo":      map[string]any{"name": "fake", "version": "1.0.0"},
			}))
		case methodToolsList:
			send(reply(id, map[string]any{"tools": fakeTools}))
		case methodPing:
			send(reply(id, map[string]any{}))
		case methodToolsCall:
			f.calls.Add(1)
			var p callToolParams
			_ = json.Unmarshal(req.Params, &p)
			switch p.Name {
			case "hang":
				continue
			case "crash":
				return
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				send(f.call(id, p))
			}()
		default:
			send(replyErr(id, mcp.METHOD_NOT_FOUND, "method not found: "+req.Method))
		}
	}
}

func (f *fakeBackend) call(id int64, p callToolParams) any {
	switch p.Name {
	case "echo":
		return reply(id, textResult(fmt.Sprint(p.Arguments["message"])))
	case "slow":
		if ms, ok := p.Arguments["delay_ms"].(float64); ok {
			time.Sleep(time.Duration(ms) * time.Millisecond)
		}
		return reply(id, textResult(fmt.Sprint(p.Arguments["message"])))
	case "env":
		return reply(id, textResult(os.Getenv(fmt.Sprint(p.Arguments["name"]))))
	case "fail":
		return replyErr(id, mcp.INVALID_PARAMS, "invalid arguments: missing path")
	default:
		return replyErr(id, mcp.INVALID_PARAMS, "unknown tool: "+p.Name)
	}
}

// pipeDialer connects every dial to a fresh fake over in-memory pipes.
func pipeDialer(f *fakeBackend, dials *atomic.Int32) Dialer {
	return func(_ context.Context, name string, _ ServerConfig) (Transport, error) {
		if dials != nil {
			dials.Add(1)
		}
		clientR, serverW := io.Pipe()
		serverR, clientW := io.Pipe()
		go f.serve(serverR, serverW)
		return NewStreamTransport(name, clientR, clientW, nil), nil
	}
}

func resultText(raw json.RawMessage) string {
	var res struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(raw, &res); err != nil || len(res.Content) == 0 {
		return ""
	}
	return res.Content[0].Text
}

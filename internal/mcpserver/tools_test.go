package mcpserver

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/HeadyMe/heady-mcp-router/internal/backend"
	"github.com/HeadyMe/heady-mcp-router/internal/backend/backendtest"
	"github.com/HeadyMe/heady-mcp-router/internal/controlplane"
	"github.com/HeadyMe/heady-mcp-router/internal/governance"
	"github.com/HeadyMe/heady-mcp-router/internal/mcp"
	mcpgo "github.com/mark3labs/mcp-go/mcp"
)

// ─── Test helpers ────────────────────────────────────────────────────────────

func newTestService(t *testing.T) *controlplane.Service {
	t.Helper()
	mgr := backend.NewManager(backendtest.Servers("git", "memory"), backend.Options{
		CallTimeout: 100 * time.Millisecond,
		Dialer:      backendtest.Dialer(backendtest.New("git"), backendtest.New("memory")),
	}, nil)
	t.Cleanup(func() { _ = mgr.Close() })
	if got := mgr.ConnectAll(context.Background(), []string{"git"}); len(got) != 1 {
		t.Fatalf("connect git: got %v", got)
	}

	reg := mcp.NewDefaultRegistry()
	rec, err := mcp.NewRecommender(mcp.DefaultConfig(), reg)
	if err != nil {
		t.Fatalf("recommender: %v", err)
	}
	return controlplane.NewService(controlplane.Deps{
		Resolver:   mcp.NewResolver(reg, rec, "", nil),
		Backends:   mgr,
		Governance: governance.New(governance.DefaultConfig(), nil, nil),
	})
}

func makeReq(args map[string]interface{}) mcpgo.CallToolRequest {
	req := mcpgo.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func resultText(r *mcpgo.CallToolResult) string {
	if r == nil || len(r.Content) == 0 {
		return ""
	}
	for _, c := range r.Content {
		if tc, ok := c.(mcpgo.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

// ─── Tool tests ──────────────────────────────────────────────────────────────

func TestDefinitions(t *testing.T) {
	svc := newTestService(t)
	names := []string{
		NewListServicesTool(svc).Definition().Name,
		NewRecommendTool(svc).Definition().Name,
		NewSelectTool(svc).Definition().Name,
		NewCallTool(svc).Definition().Name,
	}
	want := []string{"list_services", "recommend_services", "select_services", "call_backend_tool"}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("tool %d = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestListServicesTool(t *testing.T) {
	tool := NewListServicesTool(newTestService(t))

	tests := []struct {
		name string
		args map[string]interface{}
		want []mcp.ServiceName
	}{
		{"all", nil, nil},
		{"by category", map[string]interface{}{"category": "Data"}, mcp.Names("memory", "postgres")},
		{"by capability", map[string]interface{}{"capability": "browser"}, mcp.Names("puppeteer")},
		{"category and capability", map[string]interface{}{"category": "data", "capability": "query"}, mcp.Names("postgres")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := tool.Handle(context.Background(), makeReq(tt.args))
			if err != nil {
				t.Fatalf("Handle: %v", err)
			}
			if res.IsError {
				t.Fatalf("unexpected tool error: %s", resultText(res))
			}
			var out struct {
				Services []mcp.ServiceDescriptor `json:"services"`
				Presets  []mcp.Preset            `json:"presets"`
			}
			if err := json.Unmarshal([]byte(resultText(res)), &out); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if tt.want == nil {
				if len(out.Services) != 10 {
					t.Errorf("got %d services, want 10", len(out.Services))
				}
				return
			}
			var got []mcp.ServiceName
			for _, s := range out.Services {
				got = append(got, s.Name)
			}
			if strings.Join(mcp.Strings(got), ",") != strings.Join(mcp.Strings(tt.want), ",") {
				t.Errorf("services = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRecommendTool(t *testing.T) {
	tool := NewRecommendTool(newTestService(t))

	res, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{"task": "query the postgres table"}))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	var rec mcp.Recommendation
	if err := json.Unmarshal([]byte(resultText(res)), &rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(rec.Services) != 2 || rec.Services[1] != "postgres" {
		t.Errorf("services = %v", rec.Services)
	}

	res, _ = tool.Handle(context.Background(), makeReq(map[string]interface{}{}))
	if res.IsError {
		t.Fatalf("missing task: %s", resultText(res))
	}
	rec = mcp.Recommendation{}
	if err := json.Unmarshal([]byte(resultText(res)), &rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(rec.Services) != 1 || rec.Services[0] != mcp.RouterService {
		t.Errorf("services for missing task = %v, want only %s", rec.Services, mcp.RouterService)
	}
}

func TestSelectTool(t *testing.T) {
	tool := NewSelectTool(newTestService(t))

	res, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{"services": "git, unknown-service"}))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	var sel mcp.Selection
	if err := json.Unmarshal([]byte(resultText(res)), &sel); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sel.Source != mcp.SourceExplicit {
		t.Errorf("source = %s", sel.Source)
	}
	if len(sel.Services) != 1 || sel.Services[0] != "git" {
		t.Errorf("services = %v", sel.Services)
	}
	if !sel.Validation.Valid {
		t.Errorf("validation = %+v", sel.Validation)
	}

	res, _ = tool.Handle(context.Background(), makeReq(map[string]interface{}{"preset": "basic"}))
	if err := json.Unmarshal([]byte(resultText(res)), &sel); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sel.Source != mcp.SourcePreset || sel.Validation.CanProceed != true || sel.Validation.Valid {
		t.Errorf("basic preset selection = %+v", sel)
	}
}

func TestCallTool(t *testing.T) {
	tool := NewCallTool(newTestService(t))
	ctx := context.Background()

	tests := []struct {
		name      string
		args      map[string]interface{}
		wantError bool
		contains  string
	}{
		{"echo with object", map[string]interface{}{"server": "git", "tool": "echo", "arguments": map[string]interface{}{"x": 1}}, false, `\"x\":1`},
		{"echo with string", map[string]interface{}{"server": "git", "tool": "echo", "arguments": `{"y":"z"}`}, false, `\"y\":\"z\"`},
		{"missing server", map[string]interface{}{"tool": "echo"}, true, "required"},
		{"bad arguments", map[string]interface{}{"server": "git", "tool": "echo", "arguments": "[1,2]"}, true, "JSON object"},
		{"not connected", map[string]interface{}{"server": "memory", "tool": "echo"}, true, "not connected"},
		{"remote error", map[string]interface{}{"server": "git", "tool": "fail"}, true, "tool failed"},
		{"timeout", map[string]interface{}{"server": "git", "tool": "hang"}, true, "timed out"},
		{"destructive", map[string]interface{}{"server": "git", "tool": "echo", "arguments": `{"cmd":"branch --delete old"}`}, true, governance.DeniedReason},
		{"destructive confirmed", map[string]interface{}{"server": "git", "tool": "echo", "arguments": `{"cmd":"branch --delete old"}`, "confirmed": true}, false, "branch --delete old"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := tool.Handle(ctx, makeReq(tt.args))
			if err != nil {
				t.Fatalf("Handle: %v", err)
			}
			if res.IsError != tt.wantError {
				t.Fatalf("IsError = %v, text %q", res.IsError, resultText(res))
			}
			if !strings.Contains(resultText(res), tt.contains) {
				t.Errorf("result %q does not contain %q", resultText(res), tt.contains)
			}
		})
	}
}

func TestNew_ListsTools(t *testing.T) {
	s := New(newTestService(t), "test")
	ctx := context.Background()

	s.HandleMessage(ctx, json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"`+mcpgo.LATEST_PROTOCOL_VERSION+`","capabilities":{},"clientInfo":{"name":"test","version":"1"}}}`))
	resp := s.HandleMessage(ctx, json.RawMessage(`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`))

	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, name := range []string{"list_services", "recommend_services", "select_services", "call_backend_tool"} {
		if !strings.Contains(string(data), `"`+name+`"`) {
			t.Errorf("tools/list response missing %s: %s", name, data)
		}
	}
}

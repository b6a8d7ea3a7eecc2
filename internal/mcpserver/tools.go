package mcpserver

import (
	"context"
	"strings"

	"github.com/HeadyMe/heady-mcp-router/internal/controlplane"
	"github.com/HeadyMe/heady-mcp-router/internal/mcp"
	mcpgo "github.com/mark3labs/mcp-go/mcp"
)

// ListServicesTool handles list_services.
type ListServicesTool struct {
	svc *controlplane.Service
}

// NewListServicesTool creates a ListServicesTool.
func NewListServicesTool(svc *controlplane.Service) *ListServicesTool {
	return &ListServicesTool{svc: svc}
}

// Definition returns the tool schema.
func (t *ListServicesTool) Definition() mcpgo.Tool {
	return mcpgo.NewTool("list_services",
		mcpgo.WithDescription("List registered MCP services, presets and configured backends. "+
			"Optionally filter services by category or capability."),
		mcpgo.WithString("category",
			mcpgo.Description("Only services in this category: routing, files, vcs, ai, data, network, automation, cloud"),
		),
		mcpgo.WithString("capability",
			mcpgo.Description("Only services that declare this capability, e.g. query or browser"),
		),
	)
}

// Handle serves list_services.
func (t *ListServicesTool) Handle(_ context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	reg := t.svc.Registry()
	services := reg.List()

	keep := map[mcp.ServiceName]bool{}
	filtered := false
	if c := strings.TrimSpace(req.GetString("category", "")); c != "" {
		filtered = true
		for _, n := range reg.ByCategory(mcp.Category(strings.ToLower(c))) {
			keep[n] = true
		}
	}
	if capability := strings.TrimSpace(req.GetString("capability", "")); capability != "" {
		byCap := map[mcp.ServiceName]bool{}
		for _, n := range reg.ByCapability(capability) {
			byCap[n] = true
		}
		if filtered {
			for n := range keep {
				if !byCap[n] {
					delete(keep, n)
				}
			}
		} else {
			keep = byCap
		}
		filtered = true
	}
	if filtered {
		out := services[:0]
		for _, s := range services {
			if keep[s.Name] {
				out = append(out, s)
			}
		}
		services = out
	}

	return jsonResult(map[string]any{
		"services": services,
		"presets":  t.svc.Presets(),
		"servers":  t.svc.Servers(),
	})
}

// RecommendTool handles recommend_services.
type RecommendTool struct {
	svc *controlplane.Service
}

// NewRecommendTool creates a RecommendTool.
func NewRecommendTool(svc *controlplane.Service) *RecommendTool {
	return &RecommendTool{svc: svc}
}

// Definition returns the tool schema.
func (t *RecommendTool) Definition() mcpgo.Tool {
	return mcpgo.NewTool("recommend_services",
		mcpgo.WithDescription("Recommend MCP services for a natural-language task, with reasoning, "+
			"a matching preset if one exists, and a resource allocation hint."),
		mcpgo.WithString("task",
			mcpgo.Description("What you are trying to do. Empty returns the baseline services."),
		),
	)
}

// Handle serves recommend_services.
func (t *RecommendTool) Handle(_ context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return jsonResult(t.svc.Recommend(req.GetString("task", ""), nil))
}

// SelectTool handles select_services.
type SelectTool struct {
	svc *controlplane.Service
}

// NewSelectTool creates a SelectTool.
func NewSelectTool(svc *controlplane.Service) *SelectTool {
	return &SelectTool{svc: svc}
}

// Definition returns the tool schema.
func (t *SelectTool) Definition() mcpgo.Tool {
	return mcpgo.NewTool("select_services",
		mcpgo.WithDescription("Resolve a service combination and validate it against live connections. "+
			"Precedence: services, then preset, then task, then the default preset."),
		mcpgo.WithString("services",
			mcpgo.Description("Comma-separated service names, e.g. \"filesystem,git\""),
		),
		mcpgo.WithString("preset",
			mcpgo.Description("Preset name, e.g. development or all"),
		),
		mcpgo.WithString("task",
			mcpgo.Description("Task description used for a recommendation"),
		),
	)
}

// Handle serves select_services.
func (t *SelectTool) Handle(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	sel := t.svc.Select(ctx, mcp.CombinationOptions{
		Services: listArg(req, "services"),
		Preset:   strings.TrimSpace(req.GetString("preset", "")),
		Task:     req.GetString("task", ""),
	})
	return jsonResult(sel)
}

// CallTool handles call_backend_tool.
type CallTool struct {
	svc *controlplane.Service
}

// NewCallTool creates a CallTool.
func NewCallTool(svc *controlplane.Service) *CallTool {
	return &CallTool{svc: svc}
}

// Definition returns the tool schema.
func (t *CallTool) Definition() mcpgo.Tool {
	return mcpgo.NewTool("call_backend_tool",
		mcpgo.WithDescription("Forward a tool call to a connected backend and return its raw result. "+
			"Destructive calls require confirmed=true."),
		mcpgo.WithString("server",
			mcpgo.Required(),
			mcpgo.Description("Backend name as configured in mcp_config.json"),
		),
		mcpgo.WithString("tool",
			mcpgo.Required(),
			mcpgo.Description("Tool name on the backend"),
		),
		mcpgo.WithString("arguments",
			mcpgo.Description("Tool arguments as a JSON object, e.g. \"{\\\"path\\\": \\\"README.md\\\"}\""),
		),
		mcpgo.WithBoolean("confirmed",
			mcpgo.Description("Confirm a destructive operation"),
		),
	)
}

// Handle serves call_backend_tool.
func (t *CallTool) Handle(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	server := strings.TrimSpace(req.GetString("server", ""))
	tool := strings.TrimSpace(req.GetString("tool", ""))
	if server == "" || tool == "" {
		return mcpgo.NewToolResultError("'server' and 'tool' are required"), nil
	}
	args, err := objectArg(req, "arguments")
	if err != nil {
		return mcpgo.NewToolResultError(err.Error()), nil
	}

	raw, err := t.svc.CallTool(ctx, controlplane.CallRequest{
		Service:   server,
		Tool:      tool,
		Args:      args,
		Confirmed: boolArg(req, "confirmed", false),
	})
	if err != nil {
		return errorResult(err), nil
	}
	return mcpgo.NewToolResultText(string(raw)), nil
}

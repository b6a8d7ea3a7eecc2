package mcpserver

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/HeadyMe/heady-mcp-router/internal/controlplane"
	mcpgo "github.com/mark3labs/mcp-go/mcp"
)

// boolArg extracts a boolean argument from a tool request.
func boolArg(req mcpgo.CallToolRequest, key string, defaultVal bool) bool {
	v, ok := req.GetArguments()[key].(bool)
	if !ok {
		return defaultVal
	}
	return v
}

// listArg splits a comma-separated argument, dropping empty items.
func listArg(req mcpgo.CallToolRequest, key string) []string {
	raw := req.GetString(key, "")
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// objectArg decodes a JSON object argument. It accepts an object or a string
// holding one.
func objectArg(req mcpgo.CallToolRequest, key string) (map[string]any, error) {
	switch v := req.GetArguments()[key].(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		return v, nil
	case string:
		if strings.TrimSpace(v) == "" {
			return map[string]any{}, nil
		}
		var out map[string]any
		if err := json.Unmarshal([]byte(v), &out); err != nil {
			return nil, fmt.Errorf("'%s' must be a JSON object: %v", key, err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("'%s' must be a JSON object", key)
	}
}

// jsonResult renders v as indented JSON text.
func jsonResult(v any) (*mcpgo.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcpgo.NewToolResultError(fmt.Sprintf("encoding result: %v", err)), nil
	}
	return mcpgo.NewToolResultText(string(data)), nil
}

// errorResult converts a service error into a tool error without leaking
// process details.
func errorResult(err error) *mcpgo.CallToolResult {
	st := controlplane.StatusOf(err)
	msg := st.Message
	if st.Reason != "" {
		msg += ": " + st.Reason
	}
	return mcpgo.NewToolResultError(msg)
}

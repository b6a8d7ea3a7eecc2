// Package backend connects to MCP backend servers and forwards JSON-RPC calls to them.
package backend

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/mark3labs/mcp-go/mcp"
)

const (
	methodInitialize  = "initialize"
	methodInitialized = "notifications/initialized"
	methodPing        = "ping"
	methodToolsList   = "tools/list"
	methodToolsCall   = "tools/call"
)

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcNotification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// rpcMessage is any inbound message. Responses carry an id and result or error;
// server-initiated requests and notifications carry a method.
type rpcMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

func newRequest(id int64, method string, params any) rpcRequest {
	return rpcRequest{JSONRPC: mcp.JSONRPC_VERSION, ID: id, Method: method, Params: params}
}

func newNotification(method string, params any) rpcNotification {
	return rpcNotification{JSONRPC: mcp.JSONRPC_VERSION, Method: method, Params: params}
}

// responseID extracts an integer id. Requests are only ever sent with integer ids.
func (m *rpcMessage) responseID() (int64, bool) {
	raw := bytes.TrimSpace(m.ID)
	if len(raw) == 0 || raw[0] == '"' || bytes.Equal(raw, []byte("null")) {
		return 0, false
	}
	id, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// outcome turns a response into a result or a typed error.
func (m *rpcMessage) outcome() (json.RawMessage, error) {
	if m.Error != nil {
		return nil, &RemoteError{Code: m.Error.Code, Message: m.Error.Message}
	}
	if len(m.Result) == 0 {
		return nil, protocolErrorf("response has neither result nor error")
	}
	return m.Result, nil
}

// ToolDescriptor describes one tool advertised by a backend.
type ToolDescriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// ServerInfo is what a backend reported during the handshake.
type ServerInfo struct {
	Name            string `json:"name"`
	Version         string `json:"version"`
	ProtocolVersion string `json:"protocolVersion"`
}

type initializeParams struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    map[string]any     `json:"capabilities"`
	ClientInfo      mcp.Implementation `json:"clientInfo"`
}

type initializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	ServerInfo      mcp.Implementation `json:"serverInfo"`
}

type listToolsResult struct {
	Tools []ToolDescriptor `json:"tools"`
}

type callToolParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

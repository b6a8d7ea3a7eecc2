package controlplane

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/HeadyMe/heady-mcp-router/internal/backend"
	"github.com/HeadyMe/heady-mcp-router/internal/governance"
)

func TestStatusOf(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		code    int
		message string
		outcome string
	}{
		{"not connected", fmt.Errorf("git: %w", backend.ErrNotConnected), http.StatusNotFound, "git: service not connected", "not_connected"},
		{"not configured", &backend.ConnectionError{Service: "x", Err: backend.ErrNotConfigured}, http.StatusNotFound, "connect x: service not configured", "not_connected"},
		{"timeout", fmt.Errorf("git tools/call: %w", backend.ErrTimeout), http.StatusGatewayTimeout, "backend call timed out", "timeout"},
		{"remote", &backend.RemoteError{Code: -32602, Message: "Unknown tool: x"}, http.StatusBadGateway, "Unknown tool: x", "remote_error"},
		{"protocol", &backend.ProtocolError{Reason: "missing result"}, http.StatusInternalServerError, msgBackendFailure, "error"},
		{"closed", backend.ErrTransportClosed, http.StatusInternalServerError, msgBackendFailure, "error"},
		{"connect", &backend.ConnectionError{Service: "git", Err: errors.New("exec: /usr/bin/secret-path: permission denied")}, http.StatusInternalServerError, msgConnectFailure, "error"},
		{"denied", governance.Denied{Reason: governance.DeniedReason}, http.StatusForbidden, "Governance check failed", "denied"},
		{"missing tool", ErrMissingTool, http.StatusBadRequest, ErrMissingTool.Error(), "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := StatusOf(tt.err)
			if st.Code != tt.code {
				t.Errorf("code = %d, want %d", st.Code, tt.code)
			}
			if st.Message != tt.message {
				t.Errorf("message = %q, want %q", st.Message, tt.message)
			}
			if got := outcome(tt.err); got != tt.outcome {
				t.Errorf("outcome = %q, want %q", got, tt.outcome)
			}
		})
	}

	if got := outcome(nil); got != "success" {
		t.Errorf("outcome(nil) = %q", got)
	}
}

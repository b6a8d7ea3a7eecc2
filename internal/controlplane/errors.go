package controlplane

import (
	"errors"
	"net/http"

	"github.com/HeadyMe/heady-mcp-router/internal/backend"
	"github.com/HeadyMe/heady-mcp-router/internal/governance"
)

// Sentinel errors for control plane operations.
var (
	ErrMissingService = errors.New("service name is required")
	ErrMissingTool    = errors.New("tool name is required")
)

// Fixed messages for internal failures; details go to the log only.
const (
	msgBackendFailure = "backend call failed"
	msgConnectFailure = "backend connection failed"
)

// Status is the caller-facing form of an error.
type Status struct {
	Code    int
	Message string
	Reason  string
}

// StatusOf maps an error from the service layer to an HTTP status and a
// message that is safe to return.
func StatusOf(err error) Status {
	var (
		denied  governance.Denied
		remote  *backend.RemoteError
		connErr *backend.ConnectionError
	)
	switch {
	case errors.As(err, &denied):
		return Status{Code: http.StatusForbidden, Message: "Governance check failed", Reason: denied.Reason}
	case errors.Is(err, ErrMissingService), errors.Is(err, ErrMissingTool):
		return Status{Code: http.StatusBadRequest, Message: err.Error()}
	case errors.Is(err, backend.ErrNotConnected):
		return Status{Code: http.StatusNotFound, Message: err.Error()}
	case errors.Is(err, backend.ErrNotConfigured):
		return Status{Code: http.StatusNotFound, Message: err.Error()}
	case errors.Is(err, backend.ErrTimeout):
		return Status{Code: http.StatusGatewayTimeout, Message: backend.ErrTimeout.Error()}
	case errors.As(err, &remote):
		return Status{Code: http.StatusBadGateway, Message: remote.Message}
	case errors.As(err, &connErr):
		return Status{Code: http.StatusInternalServerError, Message: msgConnectFailure}
	default:
		return Status{Code: http.StatusInternalServerError, Message: msgBackendFailure}
	}
}

// outcome labels an error for metrics and audit records.
func outcome(err error) string {
	switch code := StatusOf(err).Code; {
	case err == nil:
		return "success"
	case code == http.StatusForbidden:
		return "denied"
	case code == http.StatusNotFound:
		return "not_connected"
	case code == http.StatusGatewayTimeout:
		return "timeout"
	case code == http.StatusBadGateway:
		return "remote_error"
	default:
		return "error"
	}
}

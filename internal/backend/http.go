package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

// HTTPTransport posts each JSON-RPC message to a backend URL.
type HTTPTransport struct {
	name    string
	url     string
	headers map[string]string
	client  *retryablehttp.Client
	logger  *zap.Logger

	nextID    atomic.Int64
	done      chan struct{}
	closeOnce sync.Once
}

// NewHTTPTransport creates a transport for cfg.URL. Connection errors and 5xx
// responses are retried with exponential backoff.
func NewHTTPTransport(name string, cfg ServerConfig, logger *zap.Logger) *HTTPTransport {
	if logger == nil {
		logger = zap.NewNop()
	}

	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.RetryWaitMin = 100 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.Logger = nil

	return &HTTPTransport{
		name:    name,
		url:     cfg.URL,
		headers: cfg.Headers,
		client:  client,
		logger:  logger,
		done:    make(chan struct{}),
	}
}

func (t *HTTPTransport) post(ctx context.Context, v any) (*http.Response, error) {
	select {
	case <-t.done:
		return nil, ErrTransportClosed
	default:
	}

	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal message: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, t.url, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%s: %w", t.name, ErrTimeout)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("post %s: %w", t.url, err)
	}
	return resp, nil
}

// Call implements Transport.
func (t *HTTPTransport) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	id := t.nextID.Add(1)

	resp, err := t.post(ctx, newRequest(id, method, params))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, protocolErrorf("http status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxLineSize))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var msg rpcMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, protocolErrorf("malformed response: %v", err)
	}
	got, ok := msg.responseID()
	if !ok || got != id {
		return nil, protocolErrorf("response id %s does not match request id %d", string(msg.ID), id)
	}
	return msg.outcome()
}

// Notify implements Transport.
func (t *HTTPTransport) Notify(ctx context.Context, method string, params any) error {
	resp, err := t.post(ctx, newNotification(method, params))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return protocolErrorf("http status %d", resp.StatusCode)
	}
	return nil
}

// Close implements Transport.
func (t *HTTPTransport) Close() error {
	t.closeOnce.Do(func() {
		close(t.done)
		t.client.HTTPClient.CloseIdleConnections()
	})
	return nil
}

// Done implements Transport.
func (t *HTTPTransport) Done() <-chan struct{} {
	return t.done
}

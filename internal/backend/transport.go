package backend

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"
)

// maxLineSize bounds a single JSON-RPC line. tools/list responses can be large.
const maxLineSize = 16 << 20

// Transport carries JSON-RPC requests to one backend. Implementations are
// safe for concurrent use; responses are matched to requests by id.
type Transport interface {
	Call(ctx context.Context, method string, params any) (json.RawMessage, error)
	Notify(ctx context.Context, method string, params any) error
	Close() error
	// Done is closed once the transport can no longer carry calls.
	Done() <-chan struct{}
}

// frame is one encoded line handed to the writer goroutine.
type frame struct {
	data []byte
	errc chan error
}

// streamConn multiplexes line-delimited JSON-RPC over a reader and writer.
// A single reader goroutine dispatches responses to per-id pending channels;
// a single writer goroutine owns w, so frames are never interleaved.
type streamConn struct {
	name   string
	logger *zap.Logger

	w      io.WriteCloser
	frames chan frame

	mu      sync.Mutex
	nextID  int64
	pending map[int64]chan rpcMessage
	closed  bool

	done       chan struct{}
	readerDone chan struct{}
	closeOnce  sync.Once
}

func newStreamConn(name string, r io.Reader, w io.WriteCloser, logger *zap.Logger) *streamConn {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &streamConn{
		name:       name,
		logger:     logger,
		w:          w,
		frames:     make(chan frame),
		pending:    make(map[int64]chan rpcMessage),
		done:       make(chan struct{}),
		readerDone: make(chan struct{}),
	}
	go c.readLoop(r)
	go c.writeLoop()
	return c
}

// writeLoop writes frames in hand-over order until the connection dies. A
// write blocked on a full pipe returns once Close closes w.
func (c *streamConn) writeLoop() {
	for {
		select {
		case f := <-c.frames:
			_, err := c.w.Write(f.data)
			f.errc <- err
		case <-c.done:
			return
		}
	}
}

func (c *streamConn) readLoop(r io.Reader) {
	defer close(c.readerDone)
	defer c.shutdown()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var msg rpcMessage
		if err := json.Unmarshal(line, &msg); err != nil {
			c.logger.Warn("protocol error: malformed message", zap.String("service", c.name), zap.Error(err))
			continue
		}
		if msg.Method != "" {
			c.logger.Debug("ignoring server-initiated message", zap.String("service", c.name), zap.String("method", msg.Method))
			continue
		}

		id, ok := msg.responseID()
		if !ok {
			c.logger.Warn("protocol error: response without integer id", zap.String("service", c.name), zap.ByteString("id", msg.ID))
			continue
		}

		c.mu.Lock()
		ch, ok := c.pending[id]
		if ok {
			delete(c.pending, id)
			ch <- msg
		}
		c.mu.Unlock()

		if !ok {
			c.logger.Warn("protocol error: response for unknown request id", zap.String("service", c.name), zap.Int64("id", id))
		}
	}

	if err := scanner.Err(); err != nil && !errors.Is(err, io.ErrClosedPipe) {
		c.logger.Debug("backend stream read failed", zap.String("service", c.name), zap.Error(err))
	}
}

// shutdown fails every pending call and marks the connection dead.
func (c *streamConn) shutdown() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		for id, ch := range c.pending {
			close(ch)
			delete(c.pending, id)
		}
		c.mu.Unlock()
		close(c.done)
	})
}

// write hands v to the writer goroutine and waits for it to be written.
// It gives up when ctx ends; the frame may still be written later, whole.
func (c *streamConn) write(ctx context.Context, method string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	data = append(data, '\n')

	f := frame{data: data, errc: make(chan error, 1)}
	select {
	case c.frames <- f:
	case <-ctx.Done():
		return c.ctxErr(ctx, method)
	case <-c.done:
		return ErrTransportClosed
	}

	select {
	case err := <-f.errc:
		if err != nil {
			return fmt.Errorf("write message: %w", errors.Join(ErrTransportClosed, err))
		}
		return nil
	case <-ctx.Done():
		return c.ctxErr(ctx, method)
	case <-c.done:
		return ErrTransportClosed
	}
}

// ctxErr maps a finished context to ErrTimeout or the cancellation.
func (c *streamConn) ctxErr(ctx context.Context, method string) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s %s: %w", c.name, method, ErrTimeout)
	}
	return ctx.Err()
}

func (c *streamConn) forget(id int64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// Call sends a request and waits for the response with the same id.
func (c *streamConn) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrTransportClosed
	}
	c.nextID++
	id := c.nextID
	ch := make(chan rpcMessage, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	if err := c.write(ctx, method, newRequest(id, method, params)); err != nil {
		c.forget(id)
		return nil, err
	}

	select {
	case msg, ok := <-ch:
		if !ok {
			return nil, ErrTransportClosed
		}
		return msg.outcome()
	case <-ctx.Done():
		c.forget(id)
		return nil, c.ctxErr(ctx, method)
	}
}

// Notify sends a message that expects no response.
func (c *streamConn) Notify(ctx context.Context, method string, params any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrTransportClosed
	}
	return c.write(ctx, method, newNotification(method, params))
}

// Close stops accepting calls, fails pending ones and closes the write side.
func (c *streamConn) Close() error {
	c.shutdown()
	// Closing unblocks the writer goroutine if it is stuck on a full pipe.
	if err := c.w.Close(); err != nil && !errors.Is(err, io.ErrClosedPipe) {
		return err
	}
	return nil
}

// Done implements Transport.
func (c *streamConn) Done() <-chan struct{} {
	return c.done
}

// NewStreamTransport wraps an existing reader/writer pair, such as an
// in-process pipe, as a Transport. The reader must reach EOF once the peer
// sees the writer closed.
func NewStreamTransport(name string, r io.Reader, w io.WriteCloser, logger *zap.Logger) Transport {
	return newStreamConn(name, r, w, logger)
}

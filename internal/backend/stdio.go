package backend

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"
)

// exitGrace is how long a backend gets to exit on stdin EOF before it is killed.
const exitGrace = 2 * time.Second

// StdioTransport runs a backend as a child process speaking line-delimited
// JSON-RPC on stdin/stdout. Stderr is forwarded to the debug log.
type StdioTransport struct {
	*streamConn

	cmd        *exec.Cmd
	logger     *zap.Logger
	stderrDone chan struct{}
	exited     chan struct{}
	closeOnce  sync.Once
}

// commandFor adjusts command for goos. On Windows npx is a batch shim that
// exec cannot find without its extension.
func commandFor(goos, command string) string {
	if goos == "windows" && command == "npx" {
		return "npx.cmd"
	}
	return command
}

// StartStdio spawns the configured command. The process outlives any context;
// it ends when the transport is closed.
func StartStdio(name string, cfg ServerConfig, logger *zap.Logger) (*StdioTransport, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Command == "" {
		return nil, fmt.Errorf("no command configured")
	}

	cmd := exec.Command(commandFor(runtime.GOOS, cfg.Command), cfg.Args...)
	cmd.Env = mergeEnv(os.Environ(), cfg.Env)
	if cfg.Dir != "" {
		cmd.Dir = cfg.Dir
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", cfg.Command, err)
	}

	t := &StdioTransport{
		streamConn: newStreamConn(name, stdout, stdin, logger),
		cmd:        cmd,
		logger:     logger,
		stderrDone: make(chan struct{}),
		exited:     make(chan struct{}),
	}
	go t.drainStderr(stderr)
	go t.reap()

	logger.Info("backend process started", zap.String("service", name), zap.Int("pid", cmd.Process.Pid))
	return t, nil
}

func (t *StdioTransport) drainStderr(r io.Reader) {
	defer close(t.stderrDone)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		t.logger.Debug("backend stderr", zap.String("service", t.name), zap.String("line", scanner.Text()))
	}
}

// reap waits for the process once both output pipes are drained.
func (t *StdioTransport) reap() {
	defer close(t.exited)
	<-t.readerDone
	<-t.stderrDone

	err := t.cmd.Wait()
	fields := []zap.Field{zap.String("service", t.name)}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	t.logger.Info("backend process exited", fields...)
}

// Close ends the session: pending calls fail, stdin is closed, and the
// process is killed if it has not exited within the grace period.
func (t *StdioTransport) Close() error {
	var closeErr error
	t.closeOnce.Do(func() {
		closeErr = t.streamConn.Close()

		select {
		case <-t.exited:
		case <-time.After(exitGrace):
			if err := t.cmd.Process.Kill(); err != nil {
				t.logger.Debug("kill backend process", zap.String("service", t.name), zap.Error(err))
			}
			// A grandchild holding stdout open can keep the pipes alive past the kill.
			select {
			case <-t.exited:
			case <-time.After(exitGrace):
				t.logger.Warn("backend output still open after kill", zap.String("service", t.name))
			}
		}
	})
	return closeErr
}

// Pid returns the backend process id.
func (t *StdioTransport) Pid() int {
	return t.cmd.Process.Pid
}

package shutdown

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dashpay/functest-runner/internal/logging"
)

type hook struct {
	name string
	fn   func(context.Context) error
}

// Manager handles shutdown of a run
type Manager struct {
	hooks   []hook
	mu      sync.Mutex
	timeout time.Duration
	logger  *logging.Logger
	once    sync.Once
	err     error
}

// New creates a new shutdown manager
func New(timeout time.Duration, logger *logging.Logger) *Manager {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Manager{
		timeout: timeout,
		logger:  logger,
	}
}

// Register adds a shutdown function
// Functions are called in reverse order (LIFO)
func (m *Manager) Register(name string, fn func(context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, hook{name: name, fn: fn})
}

// Context returns a child of parent that is cancelled on SIGINT or SIGTERM.
// The returned stop function releases the signal handler.
func (m *Manager) Context(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		select {
		case sig := <-sigChan:
			m.logger.Warn(fmt.Sprintf("Received signal: %v", sig))
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}

// Shutdown executes all registered shutdown functions once. Later calls
// return the result of the first.
func (m *Manager) Shutdown() error {
	m.once.Do(func() {
		m.mu.Lock()
		defer m.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()

		var errs []error
		for i := len(m.hooks) - 1; i >= 0; i-- {
			h := m.hooks[i]
			if err := h.fn(ctx); err != nil {
				m.logger.Error("Shutdown of "+h.name+" failed", map[string]interface{}{"error": err.Error()})
				errs = append(errs, fmt.Errorf("%s: %w", h.name, err))
			}
		}
		m.err = errors.Join(errs...)
	})
	return m.err
}

// StopHTTPServer creates a shutdown function for http.Server
func StopHTTPServer(server interface{ Shutdown(context.Context) error }) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := server.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to stop HTTP server: %w", err)
		}
		return nil
	}
}

// CloseResource creates a shutdown function for io.Closer
func CloseResource(closer interface{ Close() error }) func(context.Context) error {
	return func(ctx context.Context) error {
		return closer.Close()
	}
}

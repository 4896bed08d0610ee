package utils

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrShutdownTimeout is returned when registered hooks outlive the shutdown budget
var ErrShutdownTimeout = errors.New("shutdown timeout")

// GracefulShutdown manages graceful shutdown of components
type GracefulShutdown struct {
	mu         sync.Mutex
	shutdownFn []namedHook
	timeout    time.Duration
	logger     *Logger
}

type namedHook struct {
	name string
	fn   func(context.Context) error
}

// NewGracefulShutdown creates a new graceful shutdown manager
func NewGracefulShutdown(timeout time.Duration, logger *Logger) *GracefulShutdown {
	if logger == nil {
		logger = DefaultLogger("shutdown")
	}

	return &GracefulShutdown{
		timeout: timeout,
		logger:  logger,
	}
}

// Register registers a shutdown function
func (g *GracefulShutdown) Register(name string, fn func(context.Context) error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.shutdownFn = append(g.shutdownFn, namedHook{name: name, fn: fn})
}

// Shutdown executes registered hooks in reverse order (LIFO), one at a time.
func (g *GracefulShutdown) Shutdown(ctx context.Context) error {
	g.mu.Lock()
	hooks := make([]namedHook, len(g.shutdownFn))
	copy(hooks, g.shutdownFn)
	g.mu.Unlock()

	g.logger.Info("Starting graceful shutdown", Int("components", len(hooks)))

	shutdownCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		var errs []error
		for i := len(hooks) - 1; i >= 0; i-- {
			h := hooks[i]
			if err := h.fn(shutdownCtx); err != nil {
				g.logger.Error("Shutdown hook failed", String("hook", h.name), Err(err))
				errs = append(errs, err)
			}
		}
		done <- errors.Join(errs...)
	}()

	select {
	case err := <-done:
		if err == nil {
			g.logger.Info("Graceful shutdown complete")
		}
		return err
	case <-shutdownCtx.Done():
		g.logger.Warn("Graceful shutdown timed out", Duration("timeout", g.timeout))
		return ErrShutdownTimeout
	}
}

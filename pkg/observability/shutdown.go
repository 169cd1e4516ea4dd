package observability

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
)

const defaultDrainTimeout = 30 * time.Second

// ShutdownFunc releases one resource during shutdown. All registered
// funcs share the drain timeout budget.
type ShutdownFunc func(context.Context) error

// ShutdownManager drains the HTTP server and releases registered
// resources when the process receives SIGINT or SIGTERM.
type ShutdownManager struct {
	logger  *logrus.Logger
	server  *http.Server
	timeout time.Duration

	mu    sync.Mutex
	funcs []ShutdownFunc
}

// NewShutdownManager creates a shutdown manager. A non-positive timeout
// falls back to the default drain timeout.
func NewShutdownManager(logger *logrus.Logger, server *http.Server, timeout time.Duration) *ShutdownManager {
	if timeout <= 0 {
		timeout = defaultDrainTimeout
	}
	return &ShutdownManager{logger: logger, server: server, timeout: timeout}
}

// RegisterShutdownFunc adds a release step. Safe for concurrent use.
func (sm *ShutdownManager) RegisterShutdownFunc(fn ShutdownFunc) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.funcs = append(sm.funcs, fn)
}

// WaitForShutdown blocks until SIGINT or SIGTERM arrives, then drains
// within the configured timeout.
func (sm *ShutdownManager) WaitForShutdown() error {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigs
	sm.logger.WithField("signal", sig.String()).Info("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), sm.timeout)
	defer cancel()
	return sm.drain(ctx)
}

// drain stops accepting requests, then runs every registered func
// concurrently and waits for all of them or the context deadline,
// whichever comes first.
func (sm *ShutdownManager) drain(ctx context.Context) error {
	if sm.server != nil {
		if err := sm.server.Shutdown(ctx); err != nil {
			sm.logger.WithError(err).Error("HTTP server drain failed")
			return fmt.Errorf("failed to drain http server: %w", err)
		}
		sm.logger.Info("HTTP server drained")
	}

	sm.mu.Lock()
	funcs := sm.funcs
	sm.mu.Unlock()

	results := make(chan error, len(funcs))
	var wg sync.WaitGroup
	for _, fn := range funcs {
		if fn == nil {
			continue
		}
		wg.Add(1)
		go func(fn ShutdownFunc) {
			defer wg.Done()
			results <- fn(ctx)
		}(fn)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		sm.logger.Warn("Shutdown deadline reached before all resources released")
		return fmt.Errorf("shutdown timed out")
	}

	close(results)
	failed := 0
	for err := range results {
		if err != nil {
			sm.logger.WithError(err).Error("Shutdown step failed")
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("shutdown finished with %d failed steps", failed)
	}
	sm.logger.Info("Shutdown complete")
	return nil
}

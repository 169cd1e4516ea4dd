package observability

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	return NewLoggerTo("info", "text", io.Discard)
}

// TestNewShutdownManagerTimeout tests the timeout fallback
func TestNewShutdownManagerTimeout(t *testing.T) {
	sm := NewShutdownManager(testLogger(), nil, 0)
	if sm.timeout != defaultDrainTimeout {
		t.Errorf("timeout = %v, want default %v", sm.timeout, defaultDrainTimeout)
	}

	sm = NewShutdownManager(testLogger(), nil, 10*time.Second)
	if sm.timeout != 10*time.Second {
		t.Errorf("timeout = %v, want 10s", sm.timeout)
	}
}

// TestRegisterShutdownFunc tests concurrent registration
func TestRegisterShutdownFunc(t *testing.T) {
	sm := NewShutdownManager(testLogger(), nil, time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sm.RegisterShutdownFunc(func(ctx context.Context) error { return nil })
		}()
	}
	wg.Wait()

	if len(sm.funcs) != 10 {
		t.Errorf("registered %d funcs, want 10", len(sm.funcs))
	}
}

// TestDrainRunsAllFuncs tests that every registered func executes
func TestDrainRunsAllFuncs(t *testing.T) {
	sm := NewShutdownManager(testLogger(), nil, time.Second)

	var ran int32
	for i := 0; i < 3; i++ {
		sm.RegisterShutdownFunc(func(ctx context.Context) error {
			atomic.AddInt32(&ran, 1)
			return nil
		})
	}

	if err := sm.drain(context.Background()); err != nil {
		t.Fatalf("drain failed: %v", err)
	}
	if got := atomic.LoadInt32(&ran); got != 3 {
		t.Errorf("ran %d funcs, want 3", got)
	}
}

// TestDrainCollectsErrors tests that failed steps are counted
func TestDrainCollectsErrors(t *testing.T) {
	sm := NewShutdownManager(testLogger(), nil, time.Second)
	sm.RegisterShutdownFunc(func(ctx context.Context) error { return errors.New("close failed") })
	sm.RegisterShutdownFunc(func(ctx context.Context) error { return nil })
	sm.RegisterShutdownFunc(func(ctx context.Context) error { return errors.New("flush failed") })

	err := sm.drain(context.Background())
	if err == nil {
		t.Fatal("expected error from failed steps")
	}
	if !strings.Contains(err.Error(), "2 failed steps") {
		t.Errorf("error = %v, want 2 failed steps", err)
	}
}

// TestDrainDeadline tests that a stuck func does not block forever
func TestDrainDeadline(t *testing.T) {
	sm := NewShutdownManager(testLogger(), nil, time.Second)
	sm.RegisterShutdownFunc(func(ctx context.Context) error {
		time.Sleep(2 * time.Second)
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := sm.drain(ctx)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !strings.Contains(err.Error(), "timed out") {
		t.Errorf("error = %v, want timeout", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("drain blocked for %v", elapsed)
	}
}

// TestDrainConcurrent tests that funcs run in parallel
func TestDrainConcurrent(t *testing.T) {
	sm := NewShutdownManager(testLogger(), nil, time.Second)
	for i := 0; i < 3; i++ {
		sm.RegisterShutdownFunc(func(ctx context.Context) error {
			time.Sleep(100 * time.Millisecond)
			return nil
		})
	}

	start := time.Now()
	if err := sm.drain(context.Background()); err != nil {
		t.Fatalf("drain failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 250*time.Millisecond {
		t.Errorf("funcs did not run concurrently, drain took %v", elapsed)
	}
}

// TestDrainPropagatesContext tests that funcs see the drain deadline
func TestDrainPropagatesContext(t *testing.T) {
	sm := NewShutdownManager(testLogger(), nil, time.Second)

	var hasDeadline bool
	sm.RegisterShutdownFunc(func(ctx context.Context) error {
		_, hasDeadline = ctx.Deadline()
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := sm.drain(ctx); err != nil {
		t.Fatalf("drain failed: %v", err)
	}
	if !hasDeadline {
		t.Error("func did not receive the drain deadline")
	}
}

// TestDrainStopsHTTPServer tests the server drain step
func TestDrainStopsHTTPServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sm := NewShutdownManager(testLogger(), srv.Config, time.Second)
	if err := sm.drain(context.Background()); err != nil {
		t.Fatalf("drain failed: %v", err)
	}
}

// TestDrainNothingRegistered tests drain with no server and no funcs
func TestDrainNothingRegistered(t *testing.T) {
	sm := NewShutdownManager(testLogger(), nil, time.Second)
	if err := sm.drain(context.Background()); err != nil {
		t.Errorf("drain failed: %v", err)
	}
}

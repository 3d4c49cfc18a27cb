package worker

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func TestPool_ReturnsJobError(t *testing.T) {
	p := NewPool(PoolConfig{Name: "test", Size: 1, Logger: testLogger()})
	boom := errors.New("boom")

	err := p.Do(context.Background(), func(ctx context.Context) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("expected job error, got %v", err)
	}
}

func TestPool_BoundsConcurrency(t *testing.T) {
	const size = 2
	p := NewPool(PoolConfig{Name: "test", Size: size, Logger: testLogger()})

	var running, peak atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = p.Do(context.Background(), func(ctx context.Context) error {
				n := running.Add(1)
				for {
					old := peak.Load()
					if n <= old || peak.CompareAndSwap(old, n) {
						break
					}
				}
				time.Sleep(20 * time.Millisecond)
				running.Add(-1)
				return nil
			})
		}()
	}
	wg.Wait()

	if peak.Load() > size {
		t.Fatalf("expected at most %d concurrent jobs, saw %d", size, peak.Load())
	}
	if p.Active() != 0 || p.Waiting() != 0 {
		t.Fatalf("expected idle pool, active=%d waiting=%d", p.Active(), p.Waiting())
	}
}

func TestPool_ContextCancelledWhileWaiting(t *testing.T) {
	p := NewPool(PoolConfig{Name: "test", Size: 1, Logger: testLogger()})

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = p.Do(context.Background(), func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	ran := false
	err := p.Do(ctx, func(ctx context.Context) error {
		ran = true
		return nil
	})
	close(release)

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if ran {
		t.Fatal("job should not run when the wait is cancelled")
	}
}

func TestPool_StartedJobIgnoresCancellation(t *testing.T) {
	p := NewPool(PoolConfig{Name: "test", Size: 1, Logger: testLogger()})
	ctx, cancel := context.WithCancel(context.Background())

	err := p.Do(ctx, func(jobCtx context.Context) error {
		cancel()
		return jobCtx.Err()
	})
	if err != nil {
		t.Fatalf("started job should keep running after cancel, got %v", err)
	}
}

func TestPool_RecoversPanic(t *testing.T) {
	p := NewPool(PoolConfig{Name: "test", Size: 1, Logger: testLogger()})

	err := p.Do(context.Background(), func(ctx context.Context) error {
		panic("extractor crashed")
	})
	if err == nil || !strings.Contains(err.Error(), "panicked") {
		t.Fatalf("expected panic error, got %v", err)
	}

	// The slot must be released after a panic.
	if err := p.Do(context.Background(), func(ctx context.Context) error { return nil }); err != nil {
		t.Fatalf("pool unusable after panic: %v", err)
	}
}

func TestNewPool_Defaults(t *testing.T) {
	p := NewPool(PoolConfig{})
	if p.Size() != defaultSize {
		t.Fatalf("expected default size %d, got %d", defaultSize, p.Size())
	}
}

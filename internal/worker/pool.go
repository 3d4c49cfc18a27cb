// Package worker runs blocking jobs, such as video downloads, on a bounded
// set of slots so they cannot starve message dispatch.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

const defaultSize = 2

// Pool bounds how many jobs run at once. Callers block in Do until their
// job has finished.
type Pool struct {
	name    string
	size    int64
	sem     *semaphore.Weighted
	active  atomic.Int64
	waiting atomic.Int64
	logger  *slog.Logger
}

type PoolConfig struct {
	Name   string
	Size   int
	Logger *slog.Logger
}

func NewPool(cfg PoolConfig) *Pool {
	if cfg.Size <= 0 {
		cfg.Size = defaultSize
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Name == "" {
		cfg.Name = "worker"
	}
	return &Pool{
		name:   cfg.Name,
		size:   int64(cfg.Size),
		sem:    semaphore.NewWeighted(int64(cfg.Size)),
		logger: cfg.Logger,
	}
}

// Do waits for a free slot and runs job on it. ctx only bounds the wait:
// once a job has started it runs to completion, and its error (or a
// recovered panic) is returned.
func (p *Pool) Do(ctx context.Context, job func(ctx context.Context) error) error {
	p.waiting.Add(1)
	queued := time.Now()
	err := p.sem.Acquire(ctx, 1)
	p.waiting.Add(-1)
	if err != nil {
		return fmt.Errorf("%s pool: waiting for slot: %w", p.name, err)
	}
	defer p.sem.Release(1)

	if wait := time.Since(queued); wait > time.Second {
		p.logger.Debug("job waited for slot", "pool", p.name, "wait", wait)
	}

	p.active.Add(1)
	defer p.active.Add(-1)

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("%s pool: job panicked: %v", p.name, r)
			}
		}()
		done <- job(context.WithoutCancel(ctx))
	}()
	return <-done
}

// Size is the number of jobs that may run concurrently.
func (p *Pool) Size() int { return int(p.size) }

// Active is the number of jobs currently running.
func (p *Pool) Active() int { return int(p.active.Load()) }

// Waiting is the number of callers blocked on a slot.
func (p *Pool) Waiting() int { return int(p.waiting.Load()) }

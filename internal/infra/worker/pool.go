// File: internal/infra/worker/pool.go
package worker

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

type Task func(ctx context.Context) error

// Pool is a fixed-size slot pool. Callers Acquire a slot before taking work so a pool
// never holds more claimed jobs than it can run.
type Pool struct {
	name     string
	slots    chan struct{}
	wg       sync.WaitGroup
	inFlight atomic.Int64
	log      *zerolog.Logger
}

func NewPool(name string, workers int, logger *zerolog.Logger) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Pool{name: name, slots: make(chan struct{}, workers), log: logger}
}

func (p *Pool) Size() int { return cap(p.slots) }

func (p *Pool) InFlight() int { return int(p.inFlight.Load()) }

// Acquire blocks until a slot is free or ctx is done.
func (p *Pool) Acquire(ctx context.Context) error {
	select {
	case p.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release returns a slot taken by Acquire that Go was never called for.
func (p *Pool) Release() { <-p.slots }

// Go runs task on the slot previously acquired. The slot is released when task returns.
// A panicking task is recovered and reported as an error.
func (p *Pool) Go(ctx context.Context, task Task) {
	p.wg.Add(1)
	p.inFlight.Add(1)
	go func() {
		defer func() {
			p.inFlight.Add(-1)
			<-p.slots
			p.wg.Done()
		}()
		if err := runSafe(ctx, task); err != nil && p.log != nil {
			p.log.Error().Err(err).Str("pool", p.name).Msg("worker task error")
		}
	}()
}

// Wait blocks until every started task has returned.
func (p *Pool) Wait() { p.wg.Wait() }

func runSafe(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return task(ctx)
}

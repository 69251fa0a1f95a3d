// Package worker runs background jobs: a generic periodic runner and the
// sweeper that reclaims unpaid seat holds.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/showtime-booking/internal/logger"
)

// Task is one unit of periodic work.
type Task func(ctx context.Context) error

// Periodic calls a Task on a fixed interval until stopped.  A failing or
// panicking run is logged and the next tick runs as usual.
type Periodic struct {
	name     string
	interval time.Duration
	task     Task
	log      *logger.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewPeriodic returns a runner for task.  interval must be positive.
func NewPeriodic(name string, interval time.Duration, task Task, log *logger.Logger) *Periodic {
	if log == nil {
		log = logger.Get()
	}
	return &Periodic{name: name, interval: interval, task: task, log: log.Named(name)}
}

// Start launches the loop.  The task runs once immediately and then on
// every tick.
func (p *Periodic) Start(ctx context.Context) error {
	if p.interval <= 0 {
		return fmt.Errorf("%s: interval must be positive, got %s", p.name, p.interval)
	}
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("%s already running", p.name)
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.mu.Unlock()

	p.log.Info("starting", zap.Duration("interval", p.interval))
	p.wg.Add(1)
	go p.loop(ctx, p.stopCh)
	return nil
}

// Stop ends the loop and waits for an in-flight run to finish.
func (p *Periodic) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.stopCh)
	p.mu.Unlock()

	p.wg.Wait()
	p.log.Info("stopped")
}

func (p *Periodic) loop(ctx context.Context, stop <-chan struct{}) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	// Run immediately on start
	p.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			p.RunOnce(ctx)
		}
	}
}

// RunOnce executes the task synchronously, converting a panic into a logged
// error.
func (p *Periodic) RunOnce(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s panicked: %v", p.name, r)
			p.log.Error("task panicked", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()
	if err = p.task(ctx); err != nil {
		p.log.Error("task failed; will retry next tick", zap.Error(err))
	}
	return err
}

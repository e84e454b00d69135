// Package worker runs message jobs on a fixed set of shards.
//
// Jobs with the same key always land on the same shard and run one at a
// time in submission order. Different keys proceed in parallel.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"raskhody/internal/log"
	"raskhody/internal/metrics"
)

// ErrStopped is returned by Submit once the pool has stopped accepting work.
var ErrStopped = errors.New("worker pool stopped")

// Job is one unit of work. The context is the pool's run context.
type Job func(ctx context.Context)

type Pool struct {
	shards  []chan Job
	logger  *log.Logger
	metrics *metrics.Metrics

	mu      sync.RWMutex
	stopped bool
}

// New creates a pool with the given number of shards, each buffering up to
// queueSize pending jobs.
func New(shards, queueSize int, logger *log.Logger, m *metrics.Metrics) *Pool {
	if shards < 1 {
		shards = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	if logger == nil {
		logger = log.Discard()
	}
	p := &Pool{
		shards:  make([]chan Job, shards),
		logger:  logger.WithComponent(log.ComponentWorker),
		metrics: m,
	}
	for i := range p.shards {
		p.shards[i] = make(chan Job, queueSize)
	}
	return p
}

// Size returns the number of shards.
func (p *Pool) Size() int {
	return len(p.shards)
}

// ShardFor maps a key to its shard.
func (p *Pool) ShardFor(key int64) int {
	n := int64(len(p.shards))
	return int(((key % n) + n) % n)
}

// Submit queues job on the shard for key. It blocks while the shard queue
// is full and gives up when ctx is done.
func (p *Pool) Submit(ctx context.Context, key int64, job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrStopped
	}

	shard := p.ShardFor(key)
	select {
	case p.shards[shard] <- job:
		p.metrics.SetQueueLength(shard, len(p.shards[shard]))
		return nil
	case <-ctx.Done():
		return fmt.Errorf("submit to shard %d: %w", shard, ctx.Err())
	}
}

// Run processes jobs until ctx is cancelled. On cancellation it stops
// accepting work, finishes every job already queued and returns.
func (p *Pool) Run(ctx context.Context) error {
	// Jobs get a context that outlives cancellation so that queued work can
	// still reach the store and send its reply.
	jobCtx := context.WithoutCancel(ctx)

	g := new(errgroup.Group)
	for i, shard := range p.shards {
		g.Go(func() error {
			p.runShard(jobCtx, i, shard)
			return nil
		})
	}

	p.logger.InfoContext(ctx, "Worker pool started", "shards", len(p.shards))
	<-ctx.Done()

	p.mu.Lock()
	p.stopped = true
	for _, shard := range p.shards {
		close(shard)
	}
	p.mu.Unlock()

	err := g.Wait()
	p.logger.Info("Worker pool drained")
	return err
}

func (p *Pool) runShard(ctx context.Context, index int, jobs <-chan Job) {
	for job := range jobs {
		p.metrics.SetQueueLength(index, len(jobs))
		p.safeRun(ctx, index, job)
	}
}

func (p *Pool) safeRun(ctx context.Context, index int, job Job) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.ErrorContext(ctx, "Worker job panicked", log.FieldShard, index, "panic", r)
		}
	}()
	job(ctx)
}

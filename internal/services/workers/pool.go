package workers

import (
	"context"
	"fmt"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/clavis/internal/common"
)

// Job is one unit of work. Jobs own their error handling; anything worth
// keeping must be recorded before the job returns.
type Job func(ctx context.Context)

// Pool fans jobs out over a fixed number of workers. It is built for one
// batch: start it, submit the batch, wait. Cancelling the context stops
// workers between jobs and makes further submissions fail, which is how a
// catalog run winds down without draining the whole keyboard list.
type Pool struct {
	jobs    chan Job
	workers int
	wg      sync.WaitGroup
	ctx     context.Context
	logger  arbor.ILogger
}

// NewPool creates a pool of workers bound to ctx. A non-positive worker
// count falls back to serial processing.
func NewPool(ctx context.Context, workers int, logger arbor.ILogger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = common.GetLogger()
	}

	return &Pool{
		jobs:    make(chan Job, workers*2),
		workers: workers,
		ctx:     ctx,
		logger:  logger,
	}
}

// Start launches the workers
func (p *Pool) Start() {
	p.logger.Debug().
		Int("workers", p.workers).
		Msg("Starting worker pool")

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		id := i
		common.SafeGo(p.logger, fmt.Sprintf("pool-worker-%d", id), func() {
			defer p.wg.Done()
			p.worker(id)
		})
	}
}

// Submit queues a job. It blocks until a worker slot frees up and returns
// false once the pool context is done.
func (p *Pool) Submit(job Job) bool {
	select {
	case p.jobs <- job:
		return true
	case <-p.ctx.Done():
		return false
	}
}

// Wait closes the queue and blocks until every worker has exited.
func (p *Pool) Wait() {
	close(p.jobs)
	p.wg.Wait()
}

func (p *Pool) worker(id int) {
	for {
		select {
		case job, ok := <-p.jobs:
			if !ok {
				return
			}
			job(p.ctx)

		case <-p.ctx.Done():
			p.logger.Debug().
				Int("worker_id", id).
				Msg("Worker stopping - context cancelled")
			return
		}
	}
}

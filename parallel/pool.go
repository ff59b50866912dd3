// Package parallel runs independent tasks on a bounded set of goroutines.
package parallel

import (
	"errors"
	"runtime"
	"sync"
)

// Pool runs tasks on a fixed number of workers. With a single worker,
// tasks run synchronously in Go. A Pool can be reused after Wait until it
// is closed.
type Pool struct {
	work    chan func()
	workers sync.WaitGroup
	pending sync.WaitGroup
	closeFn func()

	mu   sync.Mutex
	errs []error
}

// Start creates a pool of numWorkers workers, or one per usable CPU when
// numWorkers < 1.
func Start(numWorkers int) *Pool {
	if numWorkers < 1 {
		numWorkers = runtime.GOMAXPROCS(0)
	}

	pool := &Pool{closeFn: func() {}}

	if numWorkers > 1 {
		pool.work = make(chan func(), numWorkers)

		for range numWorkers {
			pool.workers.Go(func() {
				for f := range pool.work {
					f()
				}
			})
		}

		pool.closeFn = sync.OnceFunc(func() {
			close(pool.work)
			pool.workers.Wait()
		})
	}

	return pool
}

// Go schedules f. It blocks while all workers are busy and the queue is
// full.
func (p *Pool) Go(f func() error) {
	p.pending.Add(1)
	task := func() {
		defer p.pending.Done()
		if err := f(); err != nil {
			p.mu.Lock()
			p.errs = append(p.errs, err)
			p.mu.Unlock()
		}
	}

	if p.work == nil {
		task()
		return
	}
	p.work <- task
}

// Wait blocks until every scheduled task has finished and returns their
// errors joined. The error list is reset.
func (p *Pool) Wait() error {
	p.pending.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	err := errors.Join(p.errs...)
	p.errs = nil
	return err
}

// Close stops the workers. Go must not be called afterwards.
func (p *Pool) Close() {
	p.closeFn()
}

package pipeline

import (
	"context"
	"sync"
)

// workerPool bounds the number of records in flight.
type workerPool struct {
	semaphore chan struct{}
	wg        sync.WaitGroup
}

func newWorkerPool(maxWorkers int) *workerPool {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	return &workerPool{semaphore: make(chan struct{}, maxWorkers)}
}

// Submit blocks until a worker slot is free. It returns false without running
// job once ctx is done.
func (wp *workerPool) Submit(ctx context.Context, job func()) bool {
	if ctx.Err() != nil {
		return false
	}
	select {
	case <-ctx.Done():
		return false
	case wp.semaphore <- struct{}{}:
	}

	wp.wg.Add(1)
	go func() {
		defer wp.wg.Done()
		defer func() { <-wp.semaphore }()
		job()
	}()
	return true
}

func (wp *workerPool) Wait() {
	wp.wg.Wait()
}

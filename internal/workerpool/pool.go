package workerpool

import (
	"log/slog"
	"sync"
)

// Task is a unit of background work.
type Task func()

// Pool runs tasks on a fixed number of workers fed by a bounded queue.
type Pool struct {
	workers   int
	taskQueue chan Task
	wg        sync.WaitGroup
	mu        sync.RWMutex
	closed    bool
	logger    *slog.Logger
}

// New starts a pool with the given worker count and queue size.
func New(workers int, queueSize int, logger *slog.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}

	pool := &Pool{
		workers:   workers,
		taskQueue: make(chan Task, queueSize),
		logger:    logger,
	}

	for i := 0; i < workers; i++ {
		pool.wg.Add(1)
		go pool.worker(i)
	}

	pool.logger.Info("worker pool started",
		"workers", workers,
		"queue_size", queueSize)

	return pool
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for task := range p.taskQueue {
		func() {
			defer func() {
				if r := recover(); r != nil {
					p.logger.Error("task panic recovered",
						"worker_id", id,
						"panic", r)
				}
			}()
			task()
		}()
	}
}

// Submit queues a task, blocking while the queue is full. It returns false
// once the pool is shut down.
func (p *Pool) Submit(task Task) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}
	p.taskQueue <- task
	return true
}

// TrySubmit queues a task without blocking. It returns false when the queue
// is full or the pool is shut down.
func (p *Pool) TrySubmit(task Task) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}
	select {
	case p.taskQueue <- task:
		return true
	default:
		return false
	}
}

// Pending returns the number of queued tasks not yet picked up by a worker.
func (p *Pool) Pending() int {
	return len(p.taskQueue)
}

// Shutdown stops accepting tasks and waits for queued tasks to finish.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.taskQueue)
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Info("worker pool shutdown completed")
}

package pagination

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Executor runs deferred actions off the caller's goroutine.
type Executor interface {
	Execute(task func())
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(task func())

// Execute calls f(task).
func (f ExecutorFunc) Execute(task func()) { f(task) }

// PoolConfig holds worker pool configuration
type PoolConfig struct {
	// Workers is the number of goroutines executing tasks
	Workers int
	// QueueSize is the number of tasks that may wait for a free worker
	QueueSize int
}

// DefaultPoolConfig returns the network pool configuration: five workers,
// enough for one initial load plus appends and retries of a few listings.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		Workers:   5,
		QueueSize: 64,
	}
}

// WorkerPool is a fixed-size Executor backed by a task queue.
type WorkerPool struct {
	queue chan func()
	done  chan struct{}
	once  sync.Once
	wg    sync.WaitGroup
}

// NewWorkerPool starts a worker pool.
func NewWorkerPool(config PoolConfig) *WorkerPool {
	if config.Workers <= 0 {
		config.Workers = 5
	}
	if config.QueueSize < 0 {
		config.QueueSize = 0
	}

	p := &WorkerPool{
		queue: make(chan func(), config.QueueSize),
		done:  make(chan struct{}),
	}
	for i := 0; i < config.Workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	return p
}

// Execute queues task, waiting for room in the queue. Tasks submitted after
// Close are dropped, and Close releases submitters waiting for room.
func (p *WorkerPool) Execute(task func()) {
	select {
	case <-p.done:
		log.Warn().Msg("Worker pool closed - dropping task")
		return
	default:
	}

	select {
	case p.queue <- task:
	case <-p.done:
		log.Warn().Msg("Worker pool closed - dropping task")
	}
}

// Close stops accepting tasks and waits for queued ones to finish.
func (p *WorkerPool) Close() {
	p.once.Do(func() { close(p.done) })
	p.wg.Wait()
}

// worker processes tasks from the queue until Close, then runs what is
// still queued.
func (p *WorkerPool) worker(workerID int) {
	defer p.wg.Done()
	tasksProcessed := 0

	for running := true; running; {
		select {
		case task := <-p.queue:
			task()
			tasksProcessed++
		case <-p.done:
			running = false
		}
	}

drain:
	for {
		select {
		case task := <-p.queue:
			task()
			tasksProcessed++
		default:
			break drain
		}
	}

	if tasksProcessed > 0 {
		log.Debug().
			Int("worker_id", workerID).
			Int("tasks_processed", tasksProcessed).
			Msg("Worker completed")
	}
}

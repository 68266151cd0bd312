package jobs

import (
	"context"
	"sync"
)

// task is the read-only execution handle handed to a worker: the query
// text plus the job's cancellation context. Workers never see the Job
// record itself.
type task struct {
	jobID   string
	sqlText string
	ctx     context.Context
	cancel  context.CancelFunc
}

// scheduler is the bounded-concurrency dispatch queue for one engine:
// a strict FIFO list drained by `width` workers. Jobs are started in
// submission order; completion order is up to the engine.
type scheduler struct {
	engineID string
	width    int

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []*task
	closed bool

	wg sync.WaitGroup
}

func newScheduler(engineID string, width int) *scheduler {
	if width < 1 {
		width = 1
	}
	s := &scheduler{engineID: engineID, width: width}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// start launches the worker pool. run executes one task and must not panic.
func (s *scheduler) start(run func(*task)) {
	for i := 0; i < s.width; i++ {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for {
				t, ok := s.pop()
				if !ok {
					return
				}
				run(t)
			}
		}()
	}
}

// enqueue appends a task. Never blocks; the queue is unbounded so Submit
// can return immediately.
func (s *scheduler) enqueue(t *task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		t.cancel()
		return
	}
	s.queue = append(s.queue, t)
	s.cond.Signal()
}

// pop blocks until a task is available or the scheduler is stopped.
// Dequeue order is strictly FIFO, which is what makes per-engine start
// order match submission order.
func (s *scheduler) pop() (*task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.queue) == 0 && !s.closed {
		s.cond.Wait()
	}
	if len(s.queue) == 0 {
		return nil, false
	}
	t := s.queue[0]
	s.queue = s.queue[1:]
	return t, true
}

// stop drains nothing further and waits for in-flight tasks to finish.
// Tasks still queued are cancelled so their contexts are released.
func (s *scheduler) stop() {
	s.mu.Lock()
	s.closed = true
	remaining := s.queue
	s.queue = nil
	s.cond.Broadcast()
	s.mu.Unlock()

	for _, t := range remaining {
		t.cancel()
	}
	s.wg.Wait()
}

// depth returns the number of queued (not yet started) tasks.
func (s *scheduler) depth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

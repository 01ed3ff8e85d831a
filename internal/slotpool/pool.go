// Package slotpool implements slotpool.Pool: a fixed set of worker
// goroutines draining two priority queues of TaskId, grounded on
// SlotThreadPool.hpp/DBQueueWaitHandler from the original implementation
// and restyled the way the teacher's InMemoryEventLog guards shared state
// with a single mutex plus a condition variable for blocking consumers.
package slotpool

import (
	"log/slog"
	"sync"
	"time"

	"github.com/ddspipe/ddspipe/internal/ddserrors"
	"github.com/ddspipe/ddspipe/pkg/slotpool"
)

// Pool is the concurrency-safe SlotThreadPool implementation.
type Pool struct {
	nThreads int
	logger   *slog.Logger

	slotsMu sync.Mutex
	slots   map[slotpool.TaskId]slotpool.Task

	mu      sync.Mutex
	cond    *sync.Cond
	drained *sync.Cond
	queue0  []slotpool.TaskId
	queue1  []slotpool.TaskId
	pending0 int
	enabled bool
	closing bool

	wg sync.WaitGroup
}

var _ slotpool.Pool = (*Pool)(nil)

// New creates a Pool with nThreads worker goroutines, not yet enabled.
func New(nThreads int, logger *slog.Logger) *Pool {
	if nThreads < 1 {
		nThreads = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pool{
		nThreads: nThreads,
		logger:   logger,
		slots:    make(map[slotpool.TaskId]slotpool.Task),
	}
	p.cond = sync.NewCond(&p.mu)
	p.drained = sync.NewCond(&p.mu)
	return p
}

// Register implements slotpool.Pool.
func (p *Pool) Register(id slotpool.TaskId, task slotpool.Task) error {
	p.slotsMu.Lock()
	defer p.slotsMu.Unlock()

	if _, exists := p.slots[id]; exists {
		return ddserrors.NewInconsistency("duplicate slot task id %q", id)
	}
	p.slots[id] = task
	return nil
}

// Emit implements slotpool.Pool.
func (p *Pool) Emit(id slotpool.TaskId) {
	p.EmitPriority(id, slotpool.Priority0)
}

// EmitPriority implements slotpool.Pool.
func (p *Pool) EmitPriority(id slotpool.TaskId, priority slotpool.Priority) {
	p.slotsMu.Lock()
	_, registered := p.slots[id]
	p.slotsMu.Unlock()
	if !registered {
		p.logger.Warn("emit on unregistered slot", "task_id", string(id))
		return
	}

	p.mu.Lock()
	if !p.enabled || p.closing {
		p.mu.Unlock()
		return
	}
	switch priority {
	case slotpool.Priority1:
		p.queue1 = append(p.queue1, id)
	default:
		p.queue0 = append(p.queue0, id)
		p.pending0++
	}
	p.mu.Unlock()
	p.cond.Signal()
}

// Enable implements slotpool.Pool.
func (p *Pool) Enable() {
	p.mu.Lock()
	if p.enabled {
		p.mu.Unlock()
		return
	}
	p.enabled = true
	p.closing = false
	p.mu.Unlock()

	p.wg.Add(p.nThreads)
	for i := 0; i < p.nThreads; i++ {
		go p.workerLoop()
	}
}

// Disable implements slotpool.Pool.
func (p *Pool) Disable() {
	p.mu.Lock()
	if !p.enabled {
		p.mu.Unlock()
		return
	}
	p.closing = true
	p.mu.Unlock()
	p.cond.Broadcast()

	p.wg.Wait()

	p.mu.Lock()
	p.enabled = false
	p.closing = false
	p.queue0 = nil
	p.queue1 = nil
	p.pending0 = 0
	p.mu.Unlock()
	p.drained.Broadcast()
}

// WaitAllConsumed implements slotpool.Pool.
//
// abandoned is read and written only while p.mu is held, the same lock
// the spawned goroutine holds around every p.drained.Wait() call, so
// setting it on timeout and broadcasting is guaranteed to either catch
// the goroutine already parked in Wait() or be seen by it before it
// parks — no lost wakeup either way, and the goroutine never outlives
// the timeout waiting for some unrelated future drain or Disable.
func (p *Pool) WaitAllConsumed(timeout time.Duration) slotpool.AwakeReason {
	if timeout <= 0 {
		p.mu.Lock()
		for p.pending0 > 0 && p.enabled {
			p.drained.Wait()
		}
		p.mu.Unlock()
		return slotpool.ConsumedAll
	}

	done := make(chan struct{})
	abandoned := false
	go func() {
		p.mu.Lock()
		for p.pending0 > 0 && p.enabled && !abandoned {
			p.drained.Wait()
		}
		consumed := !abandoned
		p.mu.Unlock()
		if consumed {
			close(done)
		}
	}()

	select {
	case <-done:
		return slotpool.ConsumedAll
	case <-time.After(timeout):
		p.mu.Lock()
		abandoned = true
		p.mu.Unlock()
		p.drained.Broadcast()
		return slotpool.TimedOut
	}
}

// workerLoop is the body every pool goroutine runs: consume one TaskId at
// a time, look up and run its task, then loop until the pool is disabled.
func (p *Pool) workerLoop() {
	defer p.wg.Done()
	for {
		id, fromPriority0, ok := p.consume()
		if !ok {
			return
		}

		p.slotsMu.Lock()
		task, registered := p.slots[id]
		p.slotsMu.Unlock()

		if registered {
			task()
		}

		if fromPriority0 {
			p.mu.Lock()
			p.pending0--
			if p.pending0 <= 0 {
				p.drained.Broadcast()
			}
			p.mu.Unlock()
		}
	}
}

// consume blocks until a TaskId is available or the pool is closing. ok is
// false once the pool has nothing left and is shutting down.
func (p *Pool) consume() (id slotpool.TaskId, fromPriority0 bool, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for {
		if p.closing {
			return "", false, false
		}
		if len(p.queue0) > 0 {
			id, p.queue0 = p.queue0[0], p.queue0[1:]
			return id, true, true
		}
		if len(p.queue1) > 0 {
			id, p.queue1 = p.queue1[0], p.queue1[1:]
			return id, false, true
		}
		p.cond.Wait()
	}
}

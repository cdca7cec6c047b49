package browser

import "sync"

// serialQueue runs functions one at a time, in dispatch order, on a single
// goroutine. Dispatch never blocks; the backlog is unbounded.
type serialQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	fns    []func()
	closed bool
	done   chan struct{}
}

func newSerialQueue() *serialQueue {
	q := &serialQueue{done: make(chan struct{})}
	q.cond = sync.NewCond(&q.mu)
	go q.run()
	return q
}

// dispatch appends fn and reports whether it was accepted.
func (q *serialQueue) dispatch(fn func()) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.fns = append(q.fns, fn)
	q.cond.Signal()
	return true
}

func (q *serialQueue) run() {
	defer close(q.done)
	for {
		q.mu.Lock()
		for len(q.fns) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.fns) == 0 {
			q.mu.Unlock()
			return
		}
		fn := q.fns[0]
		q.fns[0] = nil
		q.fns = q.fns[1:]
		q.mu.Unlock()
		fn()
	}
}

// close runs what is already queued, then stops the goroutine.
func (q *serialQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.cond.Signal()
	q.mu.Unlock()
	<-q.done
}

// MainQueue runs callbacks one at a time, in dispatch order, on a single
// goroutine. UI code hands it to a Profile so results arrive on the thread
// that owns the views.
type MainQueue struct {
	q *serialQueue
}

// NewMainQueue starts a queue.
func NewMainQueue() *MainQueue { return &MainQueue{q: newSerialQueue()} }

// Dispatch schedules fn without blocking. Callbacks dispatched after Close
// are dropped.
func (m *MainQueue) Dispatch(fn func()) { m.q.dispatch(fn) }

// Close runs the callbacks already dispatched, then stops the queue.
func (m *MainQueue) Close() { m.q.close() }

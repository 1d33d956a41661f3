package crawler

import (
	"slices"
	"sync"

	"github.com/nao1215/crawlkit/internal/model"
)

// frontier is the FIFO queue of requests waiting to be fetched.
//
// The frontier also owns the in-flight counter. A worker that took a
// request pushes the children it found before it calls done, so "queue
// empty and nothing in flight" can only be observed once the crawl has
// really drained.
type frontier struct {
	mu   sync.Mutex
	cond *sync.Cond

	queue    []*model.Request
	inFlight int

	// stopped makes take return false so workers exit; the queue is kept.
	stopped bool

	// limit bounds the number of takes until the next start; zero means unlimited.
	limit int
	taken int
}

func newFrontier() *frontier {
	f := &frontier{}
	f.cond = sync.NewCond(&f.mu)
	return f
}

// start prepares the frontier for a run allowing at most limit takes.
func (f *frontier) start(limit int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = false
	f.limit = limit
	f.taken = 0
}

// push appends reqs. Pushing is allowed after stop so in-flight results
// are kept for the next run.
func (f *frontier) push(reqs ...*model.Request) {
	if len(reqs) == 0 {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue = append(f.queue, reqs...)
	f.cond.Broadcast()
}

// take blocks until a request is available and marks it in flight. It
// returns false once the frontier is stopped, the take limit is reached,
// or the queue is empty with nothing in flight.
func (f *frontier) take() (*model.Request, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for {
		if f.stopped || f.limitReachedLocked() {
			return nil, false
		}
		if len(f.queue) > 0 {
			req := f.queue[0]
			f.queue[0] = nil
			f.queue = f.queue[1:]
			f.inFlight++
			f.taken++
			return req, true
		}
		if f.inFlight == 0 {
			return nil, false
		}
		f.cond.Wait()
	}
}

// done marks one taken request as finished.
func (f *frontier) done() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inFlight--
	f.cond.Broadcast()
}

// stop wakes every waiting worker and makes take return false.
func (f *frontier) stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
	f.cond.Broadcast()
}

func (f *frontier) limitReached() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.limitReachedLocked()
}

func (f *frontier) limitReachedLocked() bool {
	return f.limit > 0 && f.taken >= f.limit
}

func (f *frontier) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queue)
}

func (f *frontier) inFlightCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inFlight
}

// snapshot returns a copy of the queued requests in order.
func (f *frontier) snapshot() []*model.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.queue)
}

// restore replaces the queue. It must only be called while no worker runs.
func (f *frontier) restore(reqs []*model.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue = slices.Clone(reqs)
	f.cond.Broadcast()
}

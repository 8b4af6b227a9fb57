package worker

import (
	"context"
	"log"
	"sync"

	"vaxscreen/messages"
)

// SampleFunc produces one sample. The call blocks for the duration of the
// capture and recognition.
type SampleFunc func() messages.Sample

// ResultCallback is invoked on completion (from a worker goroutine).
// The sampler passes a closure that posts back into the event loop safely.
type ResultCallback func(s messages.Sample)

// Pool is a fixed-size recognition pool with a 1-slot input queue (strict
// back-pressure). The sampler runs it with a single worker so that no two
// polls ever overlap: a tick arriving while recognition is in flight is
// dropped, not queued.
type Pool struct {
	jobs chan job
	wg   sync.WaitGroup
}

type job struct {
	ctx     context.Context
	produce SampleFunc
	cb      ResultCallback
}

// New creates a worker pool. Size defaults to 1 when size<=0. Queue is 1 slot.
func New(size int) *Pool {
	if size <= 0 {
		size = 1
	}
	p := &Pool{jobs: make(chan job, 1)}
	p.start(size)
	return p
}

func (p *Pool) start(n int) {
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for j := range p.jobs {
				s := produceWithContext(j.ctx, j.produce)
				j.cb(s)
			}
		}()
	}
}

// Submit enqueues a recognition job if the single-slot queue is free.
// Returns false if dropped.
func (p *Pool) Submit(ctx context.Context, produce SampleFunc, cb ResultCallback) bool {
	select {
	case p.jobs <- job{ctx: ctx, produce: produce, cb: cb}:
		return true
	default:
		return false
	}
}

// Close stops the pool after draining current work.
func (p *Pool) Close() {
	close(p.jobs)
	p.wg.Wait()
}

// produceWithContext wraps the sample producer with a deadline-aware path.
// There is no way to abort an in-flight Tesseract call; on expiry the
// underlying recognition continues in the background and its result is
// discarded, while the caller receives an empty sample.
func produceWithContext(ctx context.Context, produce SampleFunc) messages.Sample {
	if _, ok := ctx.Deadline(); !ok {
		return produce()
	}
	resCh := make(chan messages.Sample, 1)
	go func() {
		resCh <- produce()
	}()
	select {
	case s := <-resCh:
		return s
	case <-ctx.Done():
		log.Printf("Worker: recognition deadline exceeded: %v", ctx.Err())
		return messages.Sample{}
	}
}

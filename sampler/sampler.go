package sampler

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"vaxscreen/messages"
	"vaxscreen/worker"
)

// Sampler drives the poll loop: on each tick it submits a recognition job to
// a single-worker pool and forwards the resulting sample to the event loop.
// Stop is cooperative: the loop observes the cleared active flag at the top
// of its next iteration; an in-flight recognition is never aborted.
type Sampler struct {
	interval time.Duration
	deadline time.Duration
	produce  worker.SampleFunc
	pool     *worker.Pool
	out      chan<- messages.Sample

	active atomic.Bool
	mu     sync.Mutex
	done   chan struct{}
}

func New(interval, deadline time.Duration, produce worker.SampleFunc, out chan<- messages.Sample) *Sampler {
	return &Sampler{
		interval: interval,
		deadline: deadline,
		produce:  produce,
		pool:     worker.New(1),
		out:      out,
	}
}

// Start begins the poll loop. Starting while already active is a no-op.
func (s *Sampler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active.Load() {
		log.Printf("Sampler: already active, ignoring start")
		return
	}
	if s.done != nil {
		// Wait out a previous loop's final iteration before flipping the
		// flag back on, so two loops can never run at once.
		<-s.done
	}
	s.active.Store(true)
	s.done = make(chan struct{})
	go s.loop(ctx, s.done)
}

// Stop clears the active flag. The loop terminates at its next iteration.
func (s *Sampler) Stop() {
	if s.active.CompareAndSwap(true, false) {
		log.Printf("Sampler: stop requested")
	}
}

// Active reports whether the poll loop is running.
func (s *Sampler) Active() bool { return s.active.Load() }

// Close stops the loop and shuts the recognition pool down.
func (s *Sampler) Close() {
	s.Stop()
	s.mu.Lock()
	if s.done != nil {
		<-s.done
		s.done = nil
	}
	s.mu.Unlock()
	s.pool.Close()
}

func (s *Sampler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	log.Printf("Sampler: started, interval=%s", s.interval)

	for s.active.Load() {
		jobCtx, cancel := context.WithTimeout(ctx, s.deadline)
		submitted := s.pool.Submit(jobCtx, s.produce, func(sm messages.Sample) {
			cancel()
			select {
			case s.out <- sm:
			default:
				log.Printf("Sampler: event loop busy, dropping sample")
			}
		})
		if !submitted {
			cancel()
			log.Printf("Sampler: recognition still in flight, skipping tick")
		}

		select {
		case <-time.After(s.interval):
		case <-ctx.Done():
			s.active.Store(false)
		}
	}
	log.Printf("Sampler: stopped")
}

// Package pipeline connects a capture source to a consumer through a bounded
// queue. The source side never blocks: when the queue is full the item is
// dropped and counted.
package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"airwatch.klederson.com/internal/capture"
)

// Counters are shared by every pipeline of a sensor.
type Counters struct {
	QueueDrops atomic.Uint64 // items dropped because the queue was full
	LockSkips  atomic.Uint64 // registry updates skipped on lock timeout
	Filtered   atomic.Uint64 // adverts rejected by floor or address type
}

// Pipeline runs produce into a queue drained by handle on its own goroutine.
type Pipeline[T any] struct {
	name     string
	produce  func(ctx context.Context, emit func(T)) error
	handle   func(T)
	queueLen int
	counters *Counters
}

// New creates a pipeline.
func New[T any](name string, queueLen int, produce func(context.Context, func(T)) error, handle func(T), counters *Counters) *Pipeline[T] {
	return &Pipeline[T]{
		name:     name,
		produce:  produce,
		handle:   handle,
		queueLen: queueLen,
		counters: counters,
	}
}

// Name implements mode.Pipeline.
func (p *Pipeline[T]) Name() string { return p.name }

// Run implements mode.Pipeline. It returns once the producer has returned
// and every queued item has been handled.
func (p *Pipeline[T]) Run(ctx context.Context) error {
	q := make(chan T, p.queueLen)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for item := range q {
			p.handle(item)
		}
	}()

	err := p.produce(ctx, func(item T) {
		select {
		case q <- item:
		default:
			p.counters.QueueDrops.Add(1)
		}
	})
	close(q)
	<-done
	return err
}

// Cycled turns an advert source into a duty-cycled producer: scan for the
// scan duration, pause for the delay, repeat. Both are re-read every cycle.
func Cycled(src capture.AdvertSource, timing func() (scan, pause time.Duration)) func(context.Context, func(capture.Advert)) error {
	return func(ctx context.Context, emit func(capture.Advert)) error {
		for {
			scan, pause := timing()
			sctx, cancel := context.WithTimeout(ctx, scan)
			err := src.Scan(sctx, emit)
			cancel()
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err != nil && !errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			if pause > 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(pause):
				}
			}
		}
	}
}

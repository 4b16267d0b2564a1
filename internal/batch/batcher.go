package batch

import "github.com/rotisserie/eris"

// Flush persists a full buffer. A nil Flush turns the batcher into a
// no-op sink, which phase-one pipelines use to stream items they only
// need counted.
type Flush[T any] func(items []T) error

// Batcher buffers produced items and flushes them when the threshold
// is reached or on Finalize. It is not synchronized: callers invoke it
// from the worker pool's OnResult callback, which is already held
// under the pool's result lock.
type Batcher[T any] struct {
	flush     Flush[T]
	threshold int
	buf       []T
	flushed   int
}

// NewBatcher creates a batcher flushing every threshold items.
func NewBatcher[T any](flush Flush[T], threshold int) *Batcher[T] {
	if threshold <= 0 {
		threshold = 50
	}
	return &Batcher[T]{
		flush:     flush,
		threshold: threshold,
		buf:       make([]T, 0, threshold),
	}
}

// Handle appends items and flushes when the buffer reaches the
// threshold.
func (b *Batcher[T]) Handle(items ...T) error {
	b.buf = append(b.buf, items...)
	if len(b.buf) >= b.threshold {
		return b.doFlush()
	}
	return nil
}

// Finalize flushes any remaining items.
func (b *Batcher[T]) Finalize() error {
	if len(b.buf) == 0 {
		return nil
	}
	return b.doFlush()
}

// Flushed reports how many items have been handed to the flush
// callback so far.
func (b *Batcher[T]) Flushed() int {
	return b.flushed
}

// Pending reports how many items sit in the buffer.
func (b *Batcher[T]) Pending() int {
	return len(b.buf)
}

func (b *Batcher[T]) doFlush() error {
	n := len(b.buf)
	if b.flush != nil {
		if err := b.flush(b.buf); err != nil {
			return eris.Wrap(err, "batch: flush")
		}
	}
	b.flushed += n
	b.buf = b.buf[:0]
	return nil
}

package pool

import (
	"context"
	"iter"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/faustostangler/FL2-sub000/internal/monitoring"
)

// Job is a task wrapped with the id of the worker executing it.
type Job[T any] struct {
	Index    int
	Data     T
	WorkerID string
}

// Result pairs a processor output with its task index and worker id.
// Results are collected in completion order; callers that need the
// submission order sort by Index.
type Result[R any] struct {
	Index    int
	Value    R
	WorkerID string
}

// Processor transforms one job into a result.
type Processor[T, R any] func(ctx context.Context, job Job[T]) (R, error)

// Options tunes a single Run.
type Options[R any] struct {
	// MaxWorkers is the number of concurrent workers. Default 1.
	MaxWorkers int

	// QueueSize bounds the task channel; producers block when it is
	// full. Default 100.
	QueueSize int

	// OnResult, if set, is invoked for every result under the same
	// lock that guards the results slice, so callbacks are serialized.
	OnResult func(Result[R])

	// PostCallback, if set, runs once on the calling goroutine after
	// all workers drain.
	PostCallback func([]Result[R])
}

// Outcome is what Run returns: results in completion order plus a
// metrics snapshot covering the run.
type Outcome[R any] struct {
	Results []Result[R]
	Metrics monitoring.MetricsSnapshot
}

// FromSlice adapts a slice into an indexed task sequence.
func FromSlice[T any](items []T) iter.Seq2[int, T] {
	return func(yield func(int, T) bool) {
		for i, it := range items {
			if !yield(i, it) {
				return
			}
		}
	}
}

// Run drains the task sequence through a bounded set of workers. It is
// a synchronous batch primitive: it returns only after every enqueued
// task has been processed. Processor errors are logged and counted as
// failures; the failed task is skipped and the queue advances.
func Run[T, R any](ctx context.Context, metrics *monitoring.Collector, tasks iter.Seq2[int, T], proc Processor[T, R], opts Options[R]) Outcome[R] {
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = 1
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 100
	}

	start := time.Now()

	type task struct {
		index int
		data  T
	}
	queue := make(chan task, opts.QueueSize)

	var (
		mu      sync.Mutex
		results []Result[R]
		wg      sync.WaitGroup
	)

	for w := 0; w < opts.MaxWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			workerID := uuid.NewString()[:8]
			for t := range queue {
				job := Job[T]{Index: t.index, Data: t.data, WorkerID: workerID}
				value, err := proc(ctx, job)
				if err != nil {
					if metrics != nil {
						metrics.RecordFailure()
					}
					zap.L().Warn("pool: task failed",
						zap.Int("index", t.index),
						zap.String("worker_id", workerID),
						zap.Error(err),
					)
					continue
				}
				res := Result[R]{Index: t.index, Value: value, WorkerID: workerID}
				mu.Lock()
				results = append(results, res)
				if opts.OnResult != nil {
					opts.OnResult(res)
				}
				mu.Unlock()
			}
		}()
	}

	// Producer: enqueue everything, then close to release the workers.
	// Enqueueing blocks when the queue is full, which bounds memory
	// independent of the task stream length.
produce:
	for i, d := range tasks {
		if ctx.Err() != nil {
			break
		}
		select {
		case queue <- task{index: i, data: d}:
		case <-ctx.Done():
			break produce
		}
	}
	close(queue)

	wg.Wait()

	if opts.PostCallback != nil {
		opts.PostCallback(results)
	}

	var snap monitoring.MetricsSnapshot
	if metrics != nil {
		snap = metrics.Snapshot(time.Since(start))
	} else {
		snap = monitoring.MetricsSnapshot{ElapsedTime: time.Since(start)}
	}

	return Outcome[R]{Results: results, Metrics: snap}
}

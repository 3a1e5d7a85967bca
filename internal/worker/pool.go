// Package worker runs CPU- and I/O-bound batch jobs on a bounded pool.
//
// Jobs never touch the library or the store. They return tagged results to
// the caller, which applies any mutation on the editor goroutine.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/matsen/bibshelf/internal/liberr"
	"github.com/matsen/bibshelf/internal/logging"
)

// Status tags the outcome of one job.
type Status int

const (
	StatusOK Status = iota
	StatusError
	StatusCanceled
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusError:
		return "error"
	case StatusCanceled:
		return "canceled"
	}
	return "unknown"
}

// Result is the outcome of one job: (status, jobId, result).
type Result[R any] struct {
	JobID  int
	Status Status
	Value  R
	Err    error
}

// Batch is the collected outcome of one Run, in job order.
type Batch[R any] struct {
	ID      string
	Results []Result[R]
}

// Count returns how many results carry status s.
func (b *Batch[R]) Count(s Status) int {
	n := 0
	for _, r := range b.Results {
		if r.Status == s {
			n++
		}
	}
	return n
}

// Pool bounds concurrency and carries the shared abort flag and the global
// progress counter.
type Pool struct {
	size    int
	aborted atomic.Bool
	done    atomic.Int64
	total   atomic.Int64
	log     *logging.Logger
}

// NewPool returns a pool running at most size jobs at once. size < 1 means
// one job per CPU.
func NewPool(size int, log *logging.Logger) *Pool {
	if size < 1 {
		size = runtime.NumCPU()
	}
	return &Pool{size: size, log: logging.OrNop(log)}
}

// Size returns the concurrency limit.
func (p *Pool) Size() int {
	return p.size
}

// Abort asks running batches to stop. Jobs not yet started report Canceled.
func (p *Pool) Abort() {
	p.aborted.Store(true)
}

// Aborted reports whether Abort was called since the last Reset.
func (p *Pool) Aborted() bool {
	return p.aborted.Load()
}

// Reset clears the abort flag and the progress counter.
func (p *Pool) Reset() {
	p.aborted.Store(false)
	p.done.Store(0)
	p.total.Store(0)
}

// Progress returns finished and submitted job counts across all batches.
func (p *Pool) Progress() (done, total int64) {
	return p.done.Load(), p.total.Load()
}

// Run executes fn over args on the pool and returns one result per arg.
// The abort flag and ctx are checked before each job; jobs skipped that way
// report StatusCanceled with an error wrapping liberr.ErrCanceled. A job
// error never stops the rest of the batch. A panicking job reports
// StatusError.
func Run[A, R any](ctx context.Context, p *Pool, args []A, fn func(ctx context.Context, arg A) (R, error)) *Batch[R] {
	b := &Batch[R]{
		ID:      uuid.NewString(),
		Results: make([]Result[R], len(args)),
	}
	p.total.Add(int64(len(args)))

	var g errgroup.Group
	g.SetLimit(p.size)
	for i, arg := range args {
		g.Go(func() error {
			defer p.done.Add(1)
			b.Results[i] = runOne(ctx, p, b.ID, i, arg, fn)
			return nil
		})
	}
	_ = g.Wait()

	if n := b.Count(StatusCanceled); n > 0 {
		p.log.Info("batch canceled", "batch", b.ID, "canceled", n, "jobs", len(args))
	}
	if n := b.Count(StatusError); n > 0 {
		p.log.Debug("batch finished with failures", "batch", b.ID, "failed", n, "jobs", len(args))
	}
	return b
}

func runOne[A, R any](ctx context.Context, p *Pool, batchID string, jobID int, arg A, fn func(context.Context, A) (R, error)) (res Result[R]) {
	res.JobID = jobID
	if p.Aborted() || ctx.Err() != nil {
		res.Status = StatusCanceled
		res.Err = liberr.New(liberr.ErrCanceled, "job", fmt.Sprintf("%s/%d", batchID, jobID), ctx.Err())
		return res
	}

	defer func() {
		if r := recover(); r != nil {
			res.Status = StatusError
			res.Err = fmt.Errorf("job %d panicked: %v", jobID, r)
		}
	}()

	v, err := fn(ctx, arg)
	switch {
	case err == nil:
		res.Status, res.Value = StatusOK, v
	case errors.Is(err, liberr.ErrCanceled), errors.Is(err, context.Canceled):
		res.Status, res.Err = StatusCanceled, err
	default:
		res.Status, res.Err = StatusError, err
	}
	return res
}

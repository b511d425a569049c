// Package fetch runs batches of independent I/O tasks with a concurrency
// limit and a per-task timeout. A failed task never cancels its siblings and
// results keep the position of their request.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"
)

// Options bounds a batch.
type Options struct {
	// Concurrency is the maximum number of tasks in flight. Values < 1 mean 1.
	Concurrency int
	// Timeout bounds each task. Zero disables the per-task deadline.
	Timeout time.Duration
}

// Outcome is the result of one task: either Value or Err is meaningful.
type Outcome[T any] struct {
	Value    T
	Err      error
	Duration time.Duration
}

// OK reports whether the task succeeded.
func (o Outcome[T]) OK() bool { return o.Err == nil }

// Task performs one request.
type Task[Req, Res any] func(ctx context.Context, req Req) (Res, error)

// Run executes fn for every request with at most opts.Concurrency in flight.
// The returned slice has one Outcome per request, at the request's index.
func Run[Req, Res any](ctx context.Context, reqs []Req, fn Task[Req, Res], opts Options) []Outcome[Res] {
	out := make([]Outcome[Res], len(reqs))
	if len(reqs) == 0 {
		return out
	}

	limit := opts.Concurrency
	if limit < 1 {
		limit = 1
	}

	// Plain errgroup, not WithContext: a failing task must not cancel the rest.
	var g errgroup.Group
	g.SetLimit(limit)

	for i, req := range reqs {
		g.Go(func() error {
			out[i] = runOne(ctx, req, fn, opts.Timeout)
			return nil
		})
	}

	_ = g.Wait()
	return out
}

func runOne[Req, Res any](ctx context.Context, req Req, fn Task[Req, Res], timeout time.Duration) (o Outcome[Res]) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			var zero Res
			o = Outcome[Res]{Value: zero, Err: eris.Errorf("fetch: task panicked: %v", r)}
		}
		o.Duration = time.Since(start)
	}()

	taskCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		taskCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if err := taskCtx.Err(); err != nil {
		return Outcome[Res]{Err: eris.Wrap(err, "fetch: task not started")}
	}

	val, err := fn(taskCtx, req)
	if err == nil && taskCtx.Err() != nil {
		// The task ignored its deadline; its value arrived too late to count.
		err = taskCtx.Err()
	}
	if err != nil {
		var zero Res
		return Outcome[Res]{Value: zero, Err: wrapTaskErr(err)}
	}
	return Outcome[Res]{Value: val}
}

func wrapTaskErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return eris.Wrap(err, "fetch: task timed out")
	}
	return err
}

// Values returns the values of the successful outcomes in input order.
func Values[T any](outcomes []Outcome[T]) []T {
	vals := make([]T, 0, len(outcomes))
	for _, o := range outcomes {
		if o.OK() {
			vals = append(vals, o.Value)
		}
	}
	return vals
}

// Failed counts the failed outcomes.
func Failed[T any](outcomes []Outcome[T]) int {
	n := 0
	for _, o := range outcomes {
		if !o.OK() {
			n++
		}
	}
	return n
}

// Summary renders counts for logging.
func Summary[T any](outcomes []Outcome[T]) string {
	failed := Failed(outcomes)
	return fmt.Sprintf("%d ok, %d failed", len(outcomes)-failed, failed)
}

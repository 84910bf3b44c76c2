package ioqueue

import (
	"context"
	"sync"
	"time"

	"github.com/brickingsoft/errors"
	"github.com/brickingsoft/rxp"
)

const defaultRunnerPollTimeout = 100 * time.Millisecond

// Runner keeps a number of goroutines polling one queue.
type Runner struct {
	queue     *Queue
	workers   int
	timeout   time.Duration
	executors rxp.Executors
	init      WorkerInit
}

// WorkerInit runs on a poll loop's goroutine before its first Poll. The undo
// func, when not nil, runs after the loop exits.
type WorkerInit func(worker int) (undo func(), err error)

// NewRunner builds a runner with workers poll loops. Options configure the
// rxp executors the loops run on.
func NewRunner(q *Queue, workers int, options ...rxp.Option) (r *Runner, err error) {
	if workers < 1 {
		workers = 1
	}
	options = append(options, rxp.WithMaxGoroutines(workers+1))
	executors, execErr := rxp.New(options...)
	if execErr != nil {
		err = errors.New("new runner failed", errors.WithMeta(errMetaPkgKey, errMetaPkgVal), errors.WithWrap(execErr))
		return
	}
	r = &Runner{
		queue:     q,
		workers:   workers,
		timeout:   defaultRunnerPollTimeout,
		executors: executors,
	}
	return
}

// OnWorkerStart installs fn as the per-loop init hook. It must be called
// before Run.
func (r *Runner) OnWorkerStart(fn WorkerInit) {
	r.init = fn
}

// pollTask is one poll loop submitted to the executors.
type pollTask struct {
	runner *Runner
	worker int
	ctx    context.Context
	wg     *sync.WaitGroup
	fail   func(error)
}

func (task *pollTask) Handle(_ context.Context) {
	defer task.wg.Done()
	r := task.runner
	if r.init != nil {
		undo, initErr := r.init(task.worker)
		if initErr != nil {
			task.fail(initErr)
			return
		}
		if undo != nil {
			defer undo()
		}
	}
	for task.ctx.Err() == nil {
		if _, err := r.queue.Poll(r.timeout); err != nil {
			task.fail(err)
			return
		}
	}
}

// Run polls until ctx is done or a poll fails, then closes the executors.
// The queue itself stays open. A runner runs once.
func (r *Runner) Run(ctx context.Context) (err error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg      sync.WaitGroup
		errOnce sync.Once
		pollErr error
	)
	fail := func(e error) {
		errOnce.Do(func() {
			pollErr = e
		})
		cancel()
	}
	for i := 0; i < r.workers; i++ {
		wg.Add(1)
		task := &pollTask{runner: r, worker: i, ctx: ctx, wg: &wg, fail: fail}
		if execErr := r.executors.Execute(ctx, task); execErr != nil {
			wg.Done()
			fail(execErr)
			break
		}
	}
	wg.Wait()

	closeErr := r.executors.Close()
	if pollErr != nil && !errors.Is(pollErr, ErrClosed) {
		err = pollErr
		return
	}
	err = closeErr
	return
}

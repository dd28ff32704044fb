package runtime

import (
	"context"
	goruntime "runtime"
	"sync/atomic"

	"github.com/dop251/goja"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wippyai/scriptor/engine"
	"github.com/wippyai/scriptor/errors"
)

// State is the lifecycle stage of a Worker.
type State int32

const (
	Running State = iota
	ShuttingDown
	Terminated
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case ShuttingDown:
		return "shutting_down"
	case Terminated:
		return "terminated"
	}
	return "unknown"
}

// BuildFunc creates the VM a worker owns. It runs on the worker goroutine.
type BuildFunc func() (*VM, error)

// Worker owns a VM on a dedicated goroutine locked to an OS thread and
// serves requests from any goroutine in submission order.
type Worker struct {
	mbox  *mailbox
	done  chan struct{}
	log   *zap.Logger
	id    string
	state atomic.Int32
}

// NewWorker starts a worker and builds its VM. A build failure is returned
// after the worker goroutine has exited.
func NewWorker(build BuildFunc) (*Worker, error) {
	w := &Worker{
		id:   uuid.NewString(),
		mbox: newMailbox(),
		done: make(chan struct{}),
	}
	w.log = Logger().With(zap.String("worker", w.id))

	ready := make(chan error, 1)
	go w.loop(build, ready)
	if err := <-ready; err != nil {
		<-w.done
		return nil, err
	}

	w.log.Debug("worker started")
	return w, nil
}

func (w *Worker) loop(build BuildFunc, ready chan<- error) {
	goruntime.LockOSThread()
	defer goruntime.UnlockOSThread()
	defer func() {
		w.state.Store(int32(Terminated))
		close(w.done)
	}()

	vm, err := build()
	if err != nil {
		w.mbox.refuse()
		ready <- err
		return
	}
	defer vm.Close()
	ready <- nil

	// caller contexts bound the wait for a reply, never the drain
	ctx := context.Background()
	for {
		req := w.mbox.pop()
		if req.kill {
			w.log.Debug("worker stopped")
			return
		}
		req.run(ctx, vm)
	}
}

// ID identifies the worker in logs.
func (w *Worker) ID() string {
	return w.id
}

func (w *Worker) State() State {
	return State(w.state.Load())
}

func (w *Worker) closedError() error {
	return errors.New(errors.PhaseWorker, errors.KindClosed).
		Detailf("worker %s is closed", w.id).
		Build()
}

// submit queues run and waits for its reply. A caller whose ctx ends stops
// waiting; the worker still runs the request to completion and drops the
// reply.
func submit[T any](ctx context.Context, w *Worker, run func(ctx context.Context, vm *VM) T) (T, error) {
	var zero T
	reply := make(chan T, 1)
	ok := w.mbox.push(request{run: func(wctx context.Context, vm *VM) {
		defer func() {
			if r := recover(); r != nil {
				w.log.Error("request panicked", zap.Any("panic", r))
				close(reply)
			}
		}()
		reply <- run(wctx, vm)
	}})
	if !ok {
		return zero, w.closedError()
	}

	select {
	case v, ok := <-reply:
		if !ok {
			return zero, errors.ExecutionFailure("worker request panicked", nil)
		}
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

type outcome struct {
	value any
	err   error
}

// With runs fn inside the VM's engine and waits for it to return.
func (w *Worker) With(ctx context.Context, fn func(c *engine.Context) error) error {
	res, err := submit(ctx, w, func(_ context.Context, vm *VM) error {
		return vm.engine.With(fn)
	})
	if err != nil {
		return err
	}
	return res
}

// WithAsync runs fn inside the engine and replies once the value it
// returns has settled. Promise results are awaited while the worker keeps
// draining host jobs.
func (w *Worker) WithAsync(ctx context.Context, fn func(c *engine.Context) (goja.Value, error)) (any, error) {
	out, err := submit(ctx, w, func(wctx context.Context, vm *VM) outcome {
		var v goja.Value
		err := vm.engine.With(func(c *engine.Context) error {
			var err error
			v, err = fn(c)
			return err
		})
		if err != nil {
			return outcome{err: err}
		}
		v, err = vm.engine.Settle(wctx, v)
		if err != nil {
			return outcome{err: err}
		}
		return outcome{value: v.Export()}
	})
	if err != nil {
		return nil, err
	}
	return out.value, out.err
}

// RunMain runs an entry module on the worker. See VM.RunMain.
func (w *Worker) RunMain(ctx context.Context, path string, arg any) (any, error) {
	out, err := submit(ctx, w, func(wctx context.Context, vm *VM) outcome {
		v, err := vm.RunMain(wctx, path, arg)
		return outcome{value: v, err: err}
	})
	if err != nil {
		return nil, err
	}
	return out.value, out.err
}

// Eval runs code on the worker. See VM.Eval.
func (w *Worker) Eval(ctx context.Context, code string) (any, error) {
	out, err := submit(ctx, w, func(wctx context.Context, vm *VM) outcome {
		v, err := vm.Eval(wctx, code)
		return outcome{value: v, err: err}
	})
	if err != nil {
		return nil, err
	}
	return out.value, out.err
}

// Close stops accepting requests, lets the worker finish those already
// queued, and blocks until its goroutine has exited and the VM is closed.
// Calling Close again only waits.
func (w *Worker) Close() error {
	if w.mbox.push(request{kill: true}) {
		w.state.CompareAndSwap(int32(Running), int32(ShuttingDown))
		w.log.Debug("worker shutting down")
	}
	<-w.done
	return nil
}

package engine

import (
	"context"
	"runtime"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/wippyai/scriptor/errors"
)

// Await pumps the host job queue until promise settles. One job runs per
// iteration and the goroutine yields between iterations. When nothing is
// queued or in flight the promise can never settle and Await fails.
func (e *Engine) Await(ctx context.Context, promise *goja.Promise) (goja.Value, error) {
	for {
		switch promise.State() {
		case goja.PromiseStateFulfilled:
			return promise.Result(), nil
		case goja.PromiseStateRejected:
			return nil, rejection(promise.Result())
		}

		ran, err := e.ExecutePendingJob()
		if err != nil {
			return nil, err
		}
		if ran {
			runtime.Gosched()
			continue
		}

		if e.inflight.Load() == 0 && !e.IsJobPending() {
			return nil, errors.ExecutionFailure("promise is pending with no queued jobs or host operations", nil)
		}
		if err := e.wait(ctx); err != nil {
			return nil, err
		}
	}
}

// Idle pumps jobs until the queue is empty and no host operation is in flight.
func (e *Engine) Idle(ctx context.Context) error {
	for {
		ran, err := e.ExecutePendingJob()
		if err != nil {
			return err
		}
		if ran {
			runtime.Gosched()
			continue
		}

		if e.inflight.Load() == 0 && !e.IsJobPending() {
			return nil
		}
		if err := e.wait(ctx); err != nil {
			return err
		}
	}
}

// drain runs queued jobs without waiting for in-flight host operations.
func (e *Engine) drain() error {
	for {
		ran, err := e.ExecutePendingJob()
		if err != nil {
			return err
		}
		if !ran {
			return nil
		}
		runtime.Gosched()
	}
}

func (e *Engine) wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return errors.ExecutionFailure("wait for host jobs cancelled", ctx.Err())
	case <-e.hostCtx.Done():
		return errors.New(errors.PhaseEngine, errors.KindClosed).
			Detail("engine closed while waiting for host jobs").
			Build()
	case <-e.jobs.wake:
		return nil
	}
}

// Settle awaits v if it is a promise and returns v unchanged otherwise.
func (e *Engine) Settle(ctx context.Context, v goja.Value) (goja.Value, error) {
	if v == nil {
		return goja.Undefined(), nil
	}
	if p, ok := v.Export().(*goja.Promise); ok {
		return e.Await(ctx, p)
	}
	return v, nil
}

// RunMain loads the entry module at path, calls its default (or main)
// export with arg and waits for the result, the job queue and every host
// operation to finish. An entry without a callable export evaluates to
// undefined. The settled value is returned exported to Go.
func (e *Engine) RunMain(ctx context.Context, path string, arg any) (any, error) {
	var result goja.Value
	err := e.With(func(c *Context) error {
		exports, err := c.Require("", path)
		if err != nil {
			return err
		}

		fn, ok := entryFunc(exports)
		if !ok {
			result = goja.Undefined()
			return nil
		}

		var args []goja.Value
		if arg != nil {
			args = append(args, c.vm.ToValue(arg))
		}
		result, err = fn(exports, args...)
		return err
	})
	if err != nil {
		return nil, err
	}

	Logger().Debug("entry evaluated", zap.String("path", path))

	result, err = e.Settle(ctx, result)
	if err != nil {
		return nil, err
	}
	if err := e.drain(); err != nil {
		return nil, err
	}
	if err := e.Idle(ctx); err != nil {
		return nil, err
	}
	return result.Export(), nil
}

// entryFunc picks the callable an entry module exposes.
func entryFunc(exports goja.Value) (goja.Callable, bool) {
	if fn, ok := goja.AssertFunction(exports); ok {
		return fn, true
	}
	obj, ok := exports.(*goja.Object)
	if !ok {
		return nil, false
	}
	for _, key := range []string{"default", "main"} {
		if fn, ok := goja.AssertFunction(obj.Get(key)); ok {
			return fn, true
		}
	}
	return nil, false
}

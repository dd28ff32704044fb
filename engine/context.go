package engine

import (
	"context"
	stderrors "errors"
	"path/filepath"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/wippyai/scriptor/errors"
)

// Context is the handle passed to code running inside Engine.With. It lives
// as long as the engine but may only be used on the owning goroutine.
type Context struct {
	e  *Engine
	vm *goja.Runtime
}

// Runtime returns the underlying goja runtime.
func (c *Context) Runtime() *goja.Runtime {
	return c.vm
}

// Context returns a context cancelled when the engine closes.
func (c *Context) Context() context.Context {
	return c.e.hostCtx
}

// Engine returns the engine owning the context.
func (c *Context) Engine() *Engine {
	return c.e
}

// Require resolves specifier relative to base, evaluating the module on
// first use, and returns its exports.
func (c *Context) Require(base, specifier string) (goja.Value, error) {
	name, err := c.e.modules.Resolve(base, specifier)
	if err != nil {
		return nil, err
	}
	if m, ok := c.e.cache[name]; ok {
		return m.Get("exports"), nil
	}

	u, err := c.e.modules.Load(c, name)
	if err != nil {
		return nil, err
	}
	return c.Evaluate(u)
}

// Evaluate runs a unit and returns its exports. A unit whose name is
// already in the module cache is not run again.
func (c *Context) Evaluate(u *Unit) (goja.Value, error) {
	if m, ok := c.e.cache[u.name]; ok {
		return m.Get("exports"), nil
	}

	module := c.vm.NewObject()
	exports := c.vm.NewObject()
	if err := module.Set("exports", exports); err != nil {
		return nil, err
	}
	_ = module.Set("id", u.name)
	c.e.cache[u.name] = module

	if err := c.evaluate(u, module); err != nil {
		delete(c.e.cache, u.name)
		return nil, wrapError(err)
	}

	debugf("evaluated %s", u.name)
	return module.Get("exports"), nil
}

func (c *Context) evaluate(u *Unit, module *goja.Object) error {
	if u.native != nil {
		return u.native(c, module)
	}

	wrapper, err := c.vm.RunProgram(u.program)
	if err != nil {
		return err
	}
	fn, ok := goja.AssertFunction(wrapper)
	if !ok {
		return errors.CompileFailure(u.name, stderrors.New("program is not a module wrapper"))
	}

	dir := ""
	if filepath.IsAbs(u.name) {
		dir = filepath.Dir(u.name)
	}
	_, err = fn(goja.Undefined(),
		module.Get("exports"),
		c.requireFunc(u.name),
		module,
		c.vm.ToValue(u.name),
		c.vm.ToValue(dir),
	)
	return err
}

// requireFunc builds the require function seen by the module named base.
func (c *Context) requireFunc(base string) goja.Value {
	return c.vm.ToValue(func(call goja.FunctionCall) goja.Value {
		specifier := call.Argument(0).String()
		v, err := c.Require(base, specifier)
		if err != nil {
			Logger().Debug("require failed",
				zap.String("base", base),
				zap.String("specifier", specifier),
				zap.Error(err))
			panic(c.vm.NewGoError(err))
		}
		return v
	})
}

// Eval runs code as a classic script in the global scope.
func (c *Context) Eval(name, code string) (goja.Value, error) {
	v, err := c.vm.RunScript(name, code)
	if err != nil {
		return nil, wrapError(err)
	}
	return v, nil
}

// Async runs work on its own goroutine and returns a promise settled from
// the host job queue. The context passed to work is cancelled when the
// engine closes. The value returned by work is converted with Runtime.ToValue
// on the owning goroutine.
func (c *Context) Async(work func(ctx context.Context) (any, error)) goja.Value {
	e := c.e
	promise, resolve, reject := c.vm.NewPromise()

	e.inflight.Add(1)
	go func() {
		v, err := work(e.hostCtx)
		e.Enqueue(func(c *Context) error {
			if err != nil {
				reject(c.vm.NewGoError(err))
			} else {
				resolve(c.vm.ToValue(v))
			}
			return nil
		})
		// enqueue before release so the drain loop never sees an idle engine
		// with a completion still in transit
		e.inflight.Add(-1)
	}()

	return c.vm.ToValue(promise)
}

// Throw raises err as a JavaScript exception from inside a native function.
func (c *Context) Throw(err error) {
	panic(c.vm.NewGoError(err))
}

// wrapError converts goja failures into engine errors. Errors raised by the
// module pipeline and rethrown through scripts keep their original type.
func wrapError(err error) error {
	if err == nil {
		return nil
	}

	var ex *goja.Exception
	if stderrors.As(err, &ex) {
		if cause := thrownGoError(ex.Value()); cause != nil {
			var se *errors.Error
			if stderrors.As(cause, &se) {
				return se
			}
			return errors.Exception(ex.Error(), cause)
		}
		return errors.Exception(ex.Error(), nil)
	}

	var ie *goja.InterruptedError
	if stderrors.As(err, &ie) {
		return errors.ExecutionFailure("execution interrupted", err)
	}

	var se *errors.Error
	if stderrors.As(err, &se) {
		return err
	}
	return errors.Exception(err.Error(), err)
}

// thrownGoError extracts the Go error wrapped by a GoError object.
func thrownGoError(v goja.Value) error {
	obj, ok := v.(*goja.Object)
	if !ok {
		return nil
	}
	inner := obj.Get("value")
	if inner == nil {
		return nil
	}
	if err, ok := inner.Export().(error); ok {
		return err
	}
	return nil
}

// rejection converts a promise rejection reason into an error.
func rejection(reason goja.Value) error {
	if cause := thrownGoError(reason); cause != nil {
		var se *errors.Error
		if stderrors.As(cause, &se) {
			return se
		}
		return errors.Exception(cause.Error(), cause)
	}
	detail := "undefined"
	if reason != nil {
		detail = reason.String()
		if obj, ok := reason.(*goja.Object); ok {
			if stack := obj.Get("stack"); stack != nil && !goja.IsUndefined(stack) {
				detail = stack.String()
			}
		}
	}
	return errors.Exception(detail, nil)
}

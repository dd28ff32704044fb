package engine

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/dop251/goja"

	"github.com/wippyai/scriptor/errors"
)

// mapSource serves units by exact name.
type mapSource struct {
	units map[string]func() (*Unit, error)
	loads map[string]int
}

func newMapSource() *mapSource {
	return &mapSource{
		units: make(map[string]func() (*Unit, error)),
		loads: make(map[string]int),
	}
}

func (s *mapSource) script(name, src string) {
	s.units[name] = func() (*Unit, error) { return Compile(name, src) }
}

func (s *mapSource) native(name string, fn func(c *Context, exports *goja.Object) error) {
	s.units[name] = func() (*Unit, error) { return NewNativeUnit(name, ExportsFunc(fn)), nil }
}

func (s *mapSource) Resolve(base, specifier string) (string, error) {
	if _, ok := s.units[specifier]; ok {
		return specifier, nil
	}
	return "", errors.NotFound(base, specifier)
}

func (s *mapSource) Load(_ *Context, name string) (*Unit, error) {
	f, ok := s.units[name]
	if !ok {
		return nil, errors.LoadNotFound(name)
	}
	s.loads[name]++
	return f()
}

// hostOp registers a native module whose op() resolves with n after delay.
func hostOp(s *mapSource, n int, delay time.Duration) {
	s.native("host", func(c *Context, exports *goja.Object) error {
		return exports.Set("op", func(goja.FunctionCall) goja.Value {
			return c.Async(func(ctx context.Context) (any, error) {
				select {
				case <-time.After(delay):
					return n, nil
				case <-ctx.Done():
					return nil, ctx.Err()
				}
			})
		})
	})
}

func newEngine(t *testing.T, src ModuleSource, opts ...Option) *Engine {
	t.Helper()
	e, err := New(src, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestRunMain_AsyncHostOperation(t *testing.T) {
	src := newMapSource()
	hostOp(src, 21, 10*time.Millisecond)
	src.script("main.js", `
		const host = require("host");
		module.exports = async function () {
			const v = await host.op();
			return v * 2;
		};
	`)

	e := newEngine(t, src)
	got, err := e.RunMain(context.Background(), "main.js", nil)
	if err != nil {
		t.Fatalf("RunMain: %v", err)
	}
	if got != int64(42) {
		t.Errorf("RunMain = %v (%T), want 42", got, got)
	}
	if e.IsJobPending() || e.PendingJobs() != 0 {
		t.Errorf("pending jobs after RunMain: %d", e.PendingJobs())
	}
	if got := e.Loaded(); len(got) != 2 || got[0] != "host" || got[1] != "main.js" {
		t.Errorf("Loaded = %v, want [host main.js]", got)
	}
	if e.InFlight() != 0 {
		t.Errorf("in-flight host operations after RunMain: %d", e.InFlight())
	}
}

func TestRunMain_EntryExports(t *testing.T) {
	tests := []struct {
		name string
		src  string
		arg  any
		want any
	}{
		{"default export", `exports.default = (x) => x + 1;`, 1, int64(2)},
		{"main export", `exports.main = () => "hello";`, nil, "hello"},
		{"default wins over main", `exports.default = () => "d"; exports.main = () => "m";`, nil, "d"},
		{"module function", `module.exports = (s) => s.toUpperCase();`, "abc", "ABC"},
		{"non-function export", `exports.default = 5;`, nil, nil},
		{"no export", `var x = 1;`, nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := newMapSource()
			src.script("main.js", tt.src)
			e := newEngine(t, src)

			got, err := e.RunMain(context.Background(), "main.js", tt.arg)
			if err != nil {
				t.Fatalf("RunMain: %v", err)
			}
			if got != tt.want {
				t.Errorf("RunMain = %v (%T), want %v", got, got, tt.want)
			}
		})
	}
}

func TestRunMain_Errors(t *testing.T) {
	tests := []struct {
		name   string
		src    string
		target error
	}{
		{"thrown", `exports.default = () => { throw new Error("boom"); };`, errors.ErrException},
		{"rejected", `exports.default = async () => { throw new Error("boom"); };`, errors.ErrException},
		{"never settles", `exports.default = () => new Promise(() => {});`, errors.ErrExecutionFailure},
		{"missing import", `require("./nope.js");`, errors.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := newMapSource()
			src.script("main.js", tt.src)
			e := newEngine(t, src)

			_, err := e.RunMain(context.Background(), "main.js", nil)
			if !stderrors.Is(err, tt.target) {
				t.Fatalf("RunMain error = %v, want %v", err, tt.target)
			}
		})
	}
}

func TestRunMain_MissingImportKeepsContext(t *testing.T) {
	src := newMapSource()
	src.script("main.js", `require("./util.js");`)
	e := newEngine(t, src)

	_, err := e.RunMain(context.Background(), "main.js", nil)
	var se *errors.Error
	if !stderrors.As(err, &se) {
		t.Fatalf("expected *errors.Error, got %T: %v", err, err)
	}
	if se.Base != "main.js" || se.Specifier != "./util.js" {
		t.Errorf("base/specifier = %q/%q", se.Base, se.Specifier)
	}
}

func TestWith_Reentrant(t *testing.T) {
	e := newEngine(t, nil)

	var inner error
	err := e.With(func(c *Context) error {
		inner = c.Engine().With(func(*Context) error { return nil })
		return nil
	})
	if err != nil {
		t.Fatalf("outer With: %v", err)
	}
	if !stderrors.Is(inner, errors.ErrReentrant) {
		t.Errorf("inner With error = %v, want reentrant", inner)
	}

	// the engine stays usable after a rejected reentrant call
	if err := e.With(func(*Context) error { return nil }); err != nil {
		t.Errorf("With after reentrant attempt: %v", err)
	}
}

func TestWith_FlushesPromiseReactions(t *testing.T) {
	e := newEngine(t, nil)

	err := e.With(func(c *Context) error {
		_, err := c.Eval("setup", `var seen = 0; Promise.resolve(7).then(v => { seen = v; });`)
		return err
	})
	if err != nil {
		t.Fatalf("With: %v", err)
	}

	var seen int64
	_ = e.With(func(c *Context) error {
		seen = c.Runtime().Get("seen").ToInteger()
		return nil
	})
	if seen != 7 {
		t.Errorf("seen = %d, want 7", seen)
	}
}

func TestModuleCache(t *testing.T) {
	src := newMapSource()
	src.script("counter.js", `globalThis.count = (globalThis.count || 0) + 1; exports.n = globalThis.count;`)
	src.script("main.js", `
		const a = require("counter.js");
		const b = require("counter.js");
		exports.default = () => a === b && a.n === 1;
	`)

	e := newEngine(t, src)
	got, err := e.RunMain(context.Background(), "main.js", nil)
	if err != nil {
		t.Fatalf("RunMain: %v", err)
	}
	if got != true {
		t.Errorf("module evaluated more than once")
	}
	if src.loads["counter.js"] != 1 {
		t.Errorf("counter.js loaded %d times, want 1", src.loads["counter.js"])
	}
}

func TestModuleCache_FailedEvaluationIsRetried(t *testing.T) {
	src := newMapSource()
	src.script("flaky.js", `
		globalThis.tries = (globalThis.tries || 0) + 1;
		if (globalThis.tries === 1) throw new Error("first");
		exports.ok = true;
	`)
	e := newEngine(t, src)

	err := e.With(func(c *Context) error {
		_, err := c.Require("", "flaky.js")
		return err
	})
	if !stderrors.Is(err, errors.ErrException) {
		t.Fatalf("first require error = %v, want exception", err)
	}

	err = e.With(func(c *Context) error {
		_, err := c.Require("", "flaky.js")
		return err
	})
	if err != nil {
		t.Fatalf("second require: %v", err)
	}
}

func TestCompile_SyntaxError(t *testing.T) {
	_, err := Compile("bad.js", "function (")
	if !stderrors.Is(err, errors.ErrCompileFailure) {
		t.Fatalf("Compile error = %v, want compile failure", err)
	}
}

func TestEnqueue_FromOtherGoroutines(t *testing.T) {
	e := newEngine(t, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.Enqueue(func(c *Context) error {
				_, err := c.Eval("inc", `globalThis.n = (globalThis.n || 0) + 1`)
				return err
			})
		}()
	}
	wg.Wait()

	if e.PendingJobs() != 8 {
		t.Fatalf("PendingJobs = %d, want 8", e.PendingJobs())
	}
	if err := e.Idle(context.Background()); err != nil {
		t.Fatalf("Idle: %v", err)
	}

	var n int64
	_ = e.With(func(c *Context) error {
		n = c.Runtime().Get("n").ToInteger()
		return nil
	})
	if n != 8 {
		t.Errorf("n = %d, want 8", n)
	}
}

func TestIdle_WaitsForInFlight(t *testing.T) {
	src := newMapSource()
	hostOp(src, 1, 20*time.Millisecond)
	e := newEngine(t, src)

	err := e.With(func(c *Context) error {
		_, err := c.Eval("start", `var done = false; require("host").op().then(() => { done = true; });`)
		return err
	})
	if err != nil {
		t.Fatalf("With: %v", err)
	}
	if err := e.Idle(context.Background()); err != nil {
		t.Fatalf("Idle: %v", err)
	}

	var done bool
	_ = e.With(func(c *Context) error {
		done = c.Runtime().Get("done").ToBoolean()
		return nil
	})
	if !done {
		t.Error("Idle returned before host operation completed")
	}
}

func TestIdle_ContextCancelled(t *testing.T) {
	src := newMapSource()
	hostOp(src, 1, time.Hour)
	e := newEngine(t, src)

	_ = e.With(func(c *Context) error {
		_, err := c.Eval("start", `require("host").op();`)
		return err
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := e.Idle(ctx); !stderrors.Is(err, errors.ErrExecutionFailure) {
		t.Fatalf("Idle error = %v, want execution failure", err)
	}
}

func TestClose(t *testing.T) {
	e, err := New(nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if err := e.With(func(*Context) error { return nil }); err == nil {
		t.Error("With after Close should fail")
	}
}

func TestSetup(t *testing.T) {
	e := newEngine(t, nil, WithSetup(func(c *Context) error {
		return c.Runtime().Set("answer", 42)
	}))

	var v int64
	_ = e.With(func(c *Context) error {
		val, err := c.Eval("read", "answer")
		if err != nil {
			return err
		}
		v = val.ToInteger()
		return nil
	})
	if v != 42 {
		t.Errorf("answer = %d, want 42", v)
	}
}

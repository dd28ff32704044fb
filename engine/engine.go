package engine

import (
	"context"
	"slices"
	"sync/atomic"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/wippyai/scriptor/errors"
)

// ModuleSource maps specifiers to canonical names and names to units.
// module.Registry is the usual implementation.
type ModuleSource interface {
	Resolve(base, specifier string) (string, error)
	Load(c *Context, name string) (*Unit, error)
}

// Option configures an Engine.
type Option func(*config)

type config struct {
	setup []func(*Context) error
}

// WithSetup registers a function run once inside the new engine, before the
// global require is installed. Host globals are installed this way.
func WithSetup(fn func(*Context) error) Option {
	return func(c *config) {
		c.setup = append(c.setup, fn)
	}
}

// Engine owns a goja runtime, its module cache and the host job queue.
// Only Enqueue may be called from goroutines other than the owner.
type Engine struct {
	hostCtx  context.Context
	modules  ModuleSource
	vm       *goja.Runtime
	ctx      *Context
	jobs     *jobQueue
	cancel   context.CancelFunc
	cache    map[string]*goja.Object
	inflight atomic.Int64
	closed   atomic.Bool
	entered  bool
}

// New creates an engine resolving modules through modules. A nil source
// makes every require fail with a not found error.
func New(modules ModuleSource, opts ...Option) (*Engine, error) {
	var cfg config
	for _, o := range opts {
		o(&cfg)
	}
	if modules == nil {
		modules = emptySource{}
	}

	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))

	hostCtx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		hostCtx: hostCtx,
		cancel:  cancel,
		modules: modules,
		vm:      vm,
		jobs:    newJobQueue(),
		cache:   make(map[string]*goja.Object),
	}
	e.ctx = &Context{e: e, vm: vm}

	err := e.With(func(c *Context) error {
		for _, fn := range cfg.setup {
			if err := fn(c); err != nil {
				return err
			}
		}
		return vm.Set("require", c.requireFunc(""))
	})
	if err != nil {
		cancel()
		return nil, err
	}

	Logger().Debug("engine created", zap.Int("setup", len(cfg.setup)))
	return e, nil
}

// With runs fn with exclusive access to the context. Promise reactions
// scheduled by fn run before With returns. A call from inside fn fails with
// ErrReentrant.
func (e *Engine) With(fn func(c *Context) error) error {
	if e.entered {
		return errors.New(errors.PhaseEngine, errors.KindReentrant).
			Detail("engine is already executing").
			Build()
	}
	if e.closed.Load() {
		return errors.New(errors.PhaseEngine, errors.KindClosed).
			Detail("engine is closed").
			Build()
	}

	e.entered = true
	defer func() { e.entered = false }()

	var ferr error
	call, _ := goja.AssertFunction(e.vm.ToValue(func(goja.FunctionCall) goja.Value {
		ferr = fn(e.ctx)
		return goja.Undefined()
	}))
	if _, err := call(goja.Undefined()); err != nil {
		return wrapError(err)
	}
	if ferr != nil {
		return wrapError(ferr)
	}
	return nil
}

// Enqueue schedules a job for the owning goroutine. It is safe for
// concurrent use. Jobs enqueued after Close are dropped.
func (e *Engine) Enqueue(j Job) {
	if e.closed.Load() {
		return
	}
	e.jobs.push(j)
}

// IsJobPending reports whether the host job queue is non-empty.
func (e *Engine) IsJobPending() bool {
	return e.jobs.len() > 0
}

// PendingJobs returns the number of queued host jobs.
func (e *Engine) PendingJobs() int {
	return e.jobs.len()
}

// InFlight returns the number of host operations that have not yet
// enqueued their completion.
func (e *Engine) InFlight() int {
	return int(e.inflight.Load())
}

// ExecutePendingJob runs one queued job. It reports false when the queue
// was empty.
func (e *Engine) ExecutePendingJob() (bool, error) {
	j, ok := e.jobs.pop()
	if !ok {
		return false, nil
	}
	return true, e.With(func(c *Context) error { return j(c) })
}

// Loaded returns the sorted canonical names in the module cache.
func (e *Engine) Loaded() []string {
	names := make([]string, 0, len(e.cache))
	for name := range e.cache {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Close cancels in-flight host work and drops queued jobs. It is idempotent.
func (e *Engine) Close() error {
	if e.closed.Swap(true) {
		return nil
	}
	e.cancel()
	e.jobs.clear()
	Logger().Debug("engine closed")
	return nil
}

type emptySource struct{}

func (emptySource) Resolve(base, specifier string) (string, error) {
	return "", errors.NotFound(base, specifier)
}

func (emptySource) Load(_ *Context, name string) (*Unit, error) {
	return nil, errors.LoadNotFound(name)
}

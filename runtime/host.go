package runtime

import (
	"context"
	"reflect"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/dop251/goja"

	"github.com/wippyai/scriptor/engine"
	"github.com/wippyai/scriptor/errors"
	"github.com/wippyai/scriptor/module"
)

// Host is the interface for struct-based host modules.
// All exported methods (except Namespace) become module functions.
type Host interface {
	// Namespace returns the module name scripts require.
	Namespace() string
}

// AsyncHost extends Host with async function declarations.
// Functions listed by AsyncFunctions() run off the engine goroutine and
// return promises.
type AsyncHost interface {
	Host
	AsyncFunctions() []string
}

// ExplicitRegistrar allows hosts to provide exact function names
// when the automatic PascalCase-to-camelCase conversion doesn't apply.
type ExplicitRegistrar interface {
	Register() map[string]any
}

type HostFunc struct {
	Handler any
	IsAsync bool
}

// HostRegistry collects Go functions grouped by namespace and exposes each
// namespace as one host module.
type HostRegistry struct {
	funcs map[string]map[string]*HostFunc
	mu    sync.RWMutex
}

func NewHostRegistry() *HostRegistry {
	return &HostRegistry{
		funcs: make(map[string]map[string]*HostFunc),
	}
}

func (r *HostRegistry) RegisterHost(h Host) error {
	ns := h.Namespace()
	if ns == "" {
		return errors.InvalidInput(errors.PhaseConfig, "namespace cannot be empty")
	}

	asyncFuncs := make(map[string]bool)
	if ah, ok := h.(AsyncHost); ok {
		for _, name := range ah.AsyncFunctions() {
			asyncFuncs[name] = true
		}
	}

	if er, ok := h.(ExplicitRegistrar); ok {
		for name, handler := range er.Register() {
			if err := r.register(ns, name, handler, asyncFuncs[name]); err != nil {
				return err
			}
		}
		return nil
	}

	rv := reflect.ValueOf(h)
	rt := rv.Type()
	for i := 0; i < rt.NumMethod(); i++ {
		method := rt.Method(i)
		if !method.IsExported() || method.Name == "Namespace" || method.Name == "AsyncFunctions" {
			continue
		}

		name := toCamelCase(method.Name)
		if err := r.register(ns, name, rv.Method(i).Interface(), asyncFuncs[name]); err != nil {
			return err
		}
	}
	return nil
}

// RegisterFunc registers a single synchronous function.
func (r *HostRegistry) RegisterFunc(namespace, name string, fn any) error {
	return r.register(namespace, name, fn, false)
}

// RegisterFuncAsync registers a single function run through Context.Async.
// A leading context.Context parameter receives the engine's context and a
// trailing error result rejects the promise.
func (r *HostRegistry) RegisterFuncAsync(namespace, name string, fn any) error {
	return r.register(namespace, name, fn, true)
}

func (r *HostRegistry) register(namespace, name string, fn any, async bool) error {
	if namespace == "" {
		return errors.InvalidInput(errors.PhaseConfig, "namespace cannot be empty")
	}
	if name == "" {
		return errors.InvalidInput(errors.PhaseConfig, "function name cannot be empty")
	}
	if fn == nil || reflect.TypeOf(fn).Kind() != reflect.Func {
		return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Specifier(namespace + "." + name).
			Detailf("handler must be a function, got %T", fn).
			Build()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.funcs[namespace] == nil {
		r.funcs[namespace] = make(map[string]*HostFunc)
	}
	r.funcs[namespace][name] = &HostFunc{Handler: fn, IsAsync: async}
	return nil
}

// Namespaces returns the registered namespaces in sorted order.
func (r *HostRegistry) Namespaces() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.funcs))
	for ns := range r.funcs {
		out = append(out, ns)
	}
	sort.Strings(out)
	return out
}

// Modules returns one host module per namespace.
func (r *HostRegistry) Modules() []module.HostModule {
	var out []module.HostModule
	for _, ns := range r.Namespaces() {
		r.mu.RLock()
		funcs := make(map[string]*HostFunc, len(r.funcs[ns]))
		for name, hf := range r.funcs[ns] {
			funcs[name] = hf
		}
		r.mu.RUnlock()

		out = append(out, module.HostFunc{
			Module: ns,
			Fn: func(c *engine.Context, exports *goja.Object) error {
				return bind(c, exports, funcs)
			},
		})
	}
	return out
}

func bind(c *engine.Context, exports *goja.Object, funcs map[string]*HostFunc) error {
	for name, hf := range funcs {
		v := c.Runtime().ToValue(hf.Handler)
		if hf.IsAsync {
			v = c.Runtime().ToValue(asyncFunc(c, hf.Handler))
		}
		if err := exports.Set(name, v); err != nil {
			return err
		}
	}
	return nil
}

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// asyncFunc converts arguments on the engine goroutine and calls fn on its
// own goroutine.
func asyncFunc(c *engine.Context, fn any) func(goja.FunctionCall) goja.Value {
	rv := reflect.ValueOf(fn)
	rt := rv.Type()

	first := 0
	if rt.NumIn() > 0 && rt.In(0) == contextType {
		first = 1
	}

	return func(call goja.FunctionCall) goja.Value {
		args := make([]reflect.Value, rt.NumIn())
		for i := first; i < rt.NumIn(); i++ {
			ptr := reflect.New(rt.In(i))
			if arg := call.Argument(i - first); !goja.IsUndefined(arg) {
				if err := c.Runtime().ExportTo(arg, ptr.Interface()); err != nil {
					c.Throw(errors.InvalidInput(errors.PhaseEngine, err.Error()))
				}
			}
			args[i] = ptr.Elem()
		}

		return c.Async(func(ctx context.Context) (any, error) {
			if first == 1 {
				args[0] = reflect.ValueOf(ctx)
			}
			out := rv.Call(args)

			var err error
			if n := len(out); n > 0 && rt.Out(n-1) == errorType {
				if e := out[n-1].Interface(); e != nil {
					err = e.(error)
				}
				out = out[:n-1]
			}
			if err != nil || len(out) == 0 {
				return nil, err
			}
			return out[0].Interface(), nil
		})
	}
}

// toCamelCase converts PascalCase to camelCase.
// Handles acronyms: GetHTTPClient -> getHttpClient
func toCamelCase(s string) string {
	if len(s) == 0 {
		return ""
	}

	runes := []rune(s)
	var result strings.Builder
	word := 0

	for i := 0; i < len(runes); i++ {
		r := runes[i]

		if unicode.IsUpper(r) {
			acronymEnd := i + 1
			for acronymEnd < len(runes) && unicode.IsUpper(runes[acronymEnd]) {
				acronymEnd++
			}

			if acronymEnd > i+1 {
				// Last uppercase before lowercase starts next word, not part of acronym
				if acronymEnd < len(runes) && unicode.IsLower(runes[acronymEnd]) {
					acronymEnd--
				}
			}

			for j := i; j < acronymEnd; j++ {
				if j == i && word > 0 {
					result.WriteRune(runes[j])
				} else {
					result.WriteRune(unicode.ToLower(runes[j]))
				}
			}
			word++
			i = acronymEnd - 1 // -1 because loop will increment
		} else {
			result.WriteRune(r)
		}
	}
	return result.String()
}

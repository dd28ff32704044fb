package engine

import (
	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/require"

	"github.com/wippyai/scriptor/errors"
)

// The wrapper keeps the first source line on line 1 so stack traces match the file.
const (
	wrapperHead = "(function(exports, require, module, __filename, __dirname) {"
	wrapperTail = "\n})"
)

// NativeFunc populates a native module. module.exports starts as an empty object
// and may be replaced.
type NativeFunc func(c *Context, module *goja.Object) error

// Unit is an executable module produced by a loader
type Unit struct {
	program *goja.Program
	native  NativeFunc
	name    string
}

// Name returns the canonical name the unit was loaded under.
func (u *Unit) Name() string {
	return u.name
}

// IsNative reports whether the unit is backed by Go code.
func (u *Unit) IsNative() bool {
	return u.native != nil
}

// Compile wraps CommonJS source and compiles it under name.
func Compile(name, source string) (*Unit, error) {
	prg, err := goja.Compile(name, wrapperHead+source+wrapperTail, false)
	if err != nil {
		return nil, errors.CompileFailure(name, err)
	}
	return &Unit{name: name, program: prg}, nil
}

// NewScriptUnit creates a unit from a program that was compiled with the
// CommonJS wrapper (see Compile). Programs are immutable and may be shared
// between engines.
func NewScriptUnit(name string, prg *goja.Program) *Unit {
	return &Unit{name: name, program: prg}
}

// NewNativeUnit creates a unit backed by a Go loader.
func NewNativeUnit(name string, fn NativeFunc) *Unit {
	return &Unit{name: name, native: fn}
}

// ExportsFunc adapts a loader that only fills in the exports object.
func ExportsFunc(fn func(c *Context, exports *goja.Object) error) NativeFunc {
	return func(c *Context, module *goja.Object) error {
		exports, ok := module.Get("exports").(*goja.Object)
		if !ok {
			return errors.InvalidInput(errors.PhaseEngine, "module.exports is not an object")
		}
		return fn(c, exports)
	}
}

// NodeLoader adapts a goja_nodejs module loader.
func NodeLoader(l require.ModuleLoader) NativeFunc {
	return func(c *Context, module *goja.Object) error {
		l(c.vm, module)
		return nil
	}
}

package hostmod

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/console"
	"github.com/dop251/goja_nodejs/process"
	"github.com/dop251/goja_nodejs/require"
	"go.uber.org/zap"

	"github.com/wippyai/scriptor/engine"
)

// Globals returns an engine option installing console, process, print,
// delay and the text codecs.
func Globals(cfg Config) engine.Option {
	cfg = cfg.withDefaults()
	return engine.WithSetup(func(c *engine.Context) error {
		return install(c, cfg)
	})
}

func install(c *engine.Context, cfg Config) error {
	vm := c.Runtime()

	// console and process load through the node registry; the engine
	// replaces the global require it installs once setup returns.
	reg := require.NewRegistry()
	reg.RegisterNativeModule(console.ModuleName, console.RequireWithPrinter(newPrinter(cfg)))
	reg.Enable(vm)
	console.Enable(vm)
	process.Enable(vm)

	globals := map[string]any{
		"TextEncoder": textEncoder(vm),
		"TextDecoder": textDecoder(vm),
		"print": func(call goja.FunctionCall) goja.Value {
			parts := make([]string, len(call.Arguments))
			for i, a := range call.Arguments {
				parts[i] = a.String()
			}
			fmt.Fprintln(cfg.Stdout, strings.Join(parts, " "))
			return goja.Undefined()
		},
		"delay": func(call goja.FunctionCall) goja.Value {
			d := time.Duration(call.Argument(0).ToInteger()) * time.Millisecond
			return c.Async(func(ctx context.Context) (any, error) {
				t := time.NewTimer(d)
				defer t.Stop()
				select {
				case <-t.C:
					return nil, nil
				case <-ctx.Done():
					return nil, ctx.Err()
				}
			})
		},
	}
	for name, v := range globals {
		if err := vm.Set(name, v); err != nil {
			return err
		}
	}
	return nil
}

func textEncoder(vm *goja.Runtime) func(goja.ConstructorCall) *goja.Object {
	return func(call goja.ConstructorCall) *goja.Object {
		_ = call.This.Set("encoding", "utf-8")
		_ = call.This.Set("encode", func(fc goja.FunctionCall) goja.Value {
			s := ""
			if arg := fc.Argument(0); !goja.IsUndefined(arg) {
				s = arg.String()
			}
			return uint8Array(vm, []byte(s))
		})
		return nil
	}
}

func textDecoder(vm *goja.Runtime) func(goja.ConstructorCall) *goja.Object {
	return func(call goja.ConstructorCall) *goja.Object {
		_ = call.This.Set("encoding", "utf-8")
		_ = call.This.Set("decode", func(fc goja.FunctionCall) goja.Value {
			b := bytesOf(vm, fc.Argument(0))
			if !utf8.Valid(b) {
				return vm.ToValue(strings.ToValidUTF8(string(b), "�"))
			}
			return vm.ToValue(string(b))
		})
		return nil
	}
}

func uint8Array(vm *goja.Runtime, b []byte) goja.Value {
	ctor, ok := goja.AssertConstructor(vm.Get("Uint8Array"))
	if !ok {
		panic(vm.NewTypeError("Uint8Array is not available"))
	}
	obj, err := ctor(nil, vm.ToValue(vm.NewArrayBuffer(b)))
	if err != nil {
		panic(err)
	}
	return obj
}

// bytesOf reads an ArrayBuffer or typed array view. A view whose range
// falls outside its buffer throws a TypeError.
func bytesOf(vm *goja.Runtime, v goja.Value) []byte {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	switch x := v.Export().(type) {
	case goja.ArrayBuffer:
		return x.Bytes()
	case []byte:
		return x
	}

	obj, ok := v.(*goja.Object)
	if !ok {
		return nil
	}
	buf := obj.Get("buffer")
	if buf == nil {
		return nil
	}
	ab, ok := buf.Export().(goja.ArrayBuffer)
	if !ok {
		return nil
	}
	data := ab.Bytes()
	off := integerOf(obj.Get("byteOffset"), 0)
	n := integerOf(obj.Get("byteLength"), int64(len(data))-off)
	if off < 0 || n < 0 || off > int64(len(data)) || n > int64(len(data))-off {
		panic(vm.NewTypeError("view range %d+%d is outside a buffer of %d bytes", off, n, len(data)))
	}
	return data[off : off+n]
}

func integerOf(v goja.Value, def int64) int64 {
	if v == nil || goja.IsUndefined(v) {
		return def
	}
	return v.ToInteger()
}

func newPrinter(cfg Config) console.Printer {
	if cfg.Logger != nil {
		return zapPrinter{log: cfg.Logger.Named("console")}
	}
	return writerPrinter{stdout: cfg.Stdout, stderr: cfg.Stderr}
}

type writerPrinter struct {
	stdout io.Writer
	stderr io.Writer
}

func (p writerPrinter) Log(s string)   { fmt.Fprintln(p.stdout, s) }
func (p writerPrinter) Warn(s string)  { fmt.Fprintln(p.stderr, s) }
func (p writerPrinter) Error(s string) { fmt.Fprintln(p.stderr, s) }

type zapPrinter struct {
	log *zap.Logger
}

func (p zapPrinter) Log(s string)   { p.log.Info(s) }
func (p zapPrinter) Warn(s string)  { p.log.Warn(s) }
func (p zapPrinter) Error(s string) { p.log.Error(s) }

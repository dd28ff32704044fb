package hostmod

import (
	"io"
	"os"
	"runtime"

	"github.com/dop251/goja"

	"github.com/wippyai/scriptor/engine"
)

// OS exposes the process streams, arguments and environment.
type OS struct {
	cfg Config
}

// Name implements module.HostModule.
func (*OS) Name() string { return NameOS }

// Load implements module.HostModule.
func (o *OS) Load(c *engine.Context, exports *goja.Object) error {
	vm := c.Runtime()

	args := make([]any, len(o.cfg.Args))
	for i, a := range o.cfg.Args {
		args[i] = a
	}

	values := map[string]any{
		"stdout":   stream(c, o.cfg.Stdout),
		"stderr":   stream(c, o.cfg.Stderr),
		"args":     vm.NewArray(args...),
		"platform": runtime.GOOS,
		"arch":     runtime.GOARCH,
		"cwd": func() string {
			return o.cfg.Cwd
		},
		"env": func(call goja.FunctionCall) goja.Value {
			v, ok := os.LookupEnv(call.Argument(0).String())
			if !ok {
				return goja.Undefined()
			}
			return vm.ToValue(v)
		},
	}
	for name, v := range values {
		if err := exports.Set(name, v); err != nil {
			return err
		}
	}
	return nil
}

// stream builds an object with a synchronous write(text) method.
func stream(c *engine.Context, w io.Writer) *goja.Object {
	obj := c.Runtime().NewObject()
	_ = obj.Set("write", func(call goja.FunctionCall) goja.Value {
		if _, err := io.WriteString(w, call.Argument(0).String()); err != nil {
			c.Throw(err)
		}
		return goja.Undefined()
	})
	return obj
}

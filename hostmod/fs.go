package hostmod

import (
	"context"
	"os"

	"github.com/dop251/goja"

	"github.com/wippyai/scriptor/engine"
)

// FS exposes asynchronous file access. Relative paths resolve against the
// configured working directory.
type FS struct {
	cfg Config
}

// Name implements module.HostModule.
func (*FS) Name() string { return NameFS }

// Load implements module.HostModule.
func (f *FS) Load(c *engine.Context, exports *goja.Object) error {
	vm := c.Runtime()

	fns := map[string]func(call goja.FunctionCall) goja.Value{
		"readFile": func(call goja.FunctionCall) goja.Value {
			path := f.cfg.path(call.Argument(0).String())
			return c.Async(func(context.Context) (any, error) {
				data, err := os.ReadFile(path)
				if err != nil {
					return nil, err
				}
				return string(data), nil
			})
		},
		"writeFile": func(call goja.FunctionCall) goja.Value {
			path := f.cfg.path(call.Argument(0).String())
			data := call.Argument(1).String()
			return c.Async(func(context.Context) (any, error) {
				return nil, os.WriteFile(path, []byte(data), 0o644)
			})
		},
		"readDir": func(call goja.FunctionCall) goja.Value {
			path := f.cfg.path(call.Argument(0).String())
			return c.Async(func(context.Context) (any, error) {
				entries, err := os.ReadDir(path)
				if err != nil {
					return nil, err
				}
				out := make([]any, 0, len(entries))
				for _, e := range entries {
					out = append(out, map[string]any{
						"name":  e.Name(),
						"isDir": e.IsDir(),
					})
				}
				return out, nil
			})
		},
		"stat": func(call goja.FunctionCall) goja.Value {
			path := f.cfg.path(call.Argument(0).String())
			return c.Async(func(context.Context) (any, error) {
				info, err := os.Stat(path)
				if err != nil {
					return nil, err
				}
				return map[string]any{
					"name":    info.Name(),
					"size":    info.Size(),
					"isDir":   info.IsDir(),
					"mode":    info.Mode().String(),
					"modTime": info.ModTime().UnixMilli(),
				}, nil
			})
		},
		"exists": func(call goja.FunctionCall) goja.Value {
			path := f.cfg.path(call.Argument(0).String())
			return c.Async(func(context.Context) (any, error) {
				_, err := os.Stat(path)
				return err == nil, nil
			})
		},
		"mkdir": func(call goja.FunctionCall) goja.Value {
			path := f.cfg.path(call.Argument(0).String())
			return c.Async(func(context.Context) (any, error) {
				return nil, os.MkdirAll(path, 0o755)
			})
		},
		"remove": func(call goja.FunctionCall) goja.Value {
			path := f.cfg.path(call.Argument(0).String())
			return c.Async(func(context.Context) (any, error) {
				return nil, os.RemoveAll(path)
			})
		},
	}

	for name, fn := range fns {
		if err := exports.Set(name, vm.ToValue(fn)); err != nil {
			return err
		}
	}
	return nil
}

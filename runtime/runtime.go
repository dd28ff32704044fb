package runtime

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/wippyai/scriptor/bundle"
	"github.com/wippyai/scriptor/engine"
	"github.com/wippyai/scriptor/errors"
	"github.com/wippyai/scriptor/hostmod"
	"github.com/wippyai/scriptor/module"
	"github.com/wippyai/scriptor/plugin"
)

// Loader names accepted in Options.Loaders.
const (
	LoaderScript    = "script"
	LoaderPlugins   = "plugins"
	LoaderTranspile = "transpile"
)

// Options enumerates the components a VM is built from.
type Options struct {
	Stdout io.Writer
	Stderr io.Writer
	Logger *zap.Logger

	// HTTPClient backs the http host module.
	HTTPClient *http.Client

	Cwd string
	// Root is the configuration root. PluginDir and CacheDir default to
	// its loaders/ and cache/ subdirectories.
	Root      string
	CacheDir  string
	PluginDir string

	// Hosts names the host modules to expose. Nil selects all.
	Hosts []string
	// Loaders names the extension loaders in priority order.
	Loaders []string
	Args    []string

	// Bundles exposes the embedded script modules.
	Bundles bool
	// ConsoleToLog routes console output to Logger.
	ConsoleToLog bool
}

// DefaultOptions returns options with every component enabled.
func DefaultOptions() Options {
	return Options{
		Loaders: []string{LoaderScript, LoaderPlugins, LoaderTranspile},
		Bundles: true,
	}
}

// pluginDir returns the explicit plugin directory, or the root's loaders/
// when it exists.
func (o Options) pluginDir() string {
	if o.PluginDir != "" || o.Root == "" {
		return o.PluginDir
	}
	dir := filepath.Join(o.Root, "loaders")
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return ""
	}
	return dir
}

func (o Options) cacheDir() string {
	if o.CacheDir != "" || o.Root == "" {
		return o.CacheDir
	}
	return filepath.Join(o.Root, "cache")
}

// Builder assembles a VM from Options plus programmatic additions.
type Builder struct {
	opts    Options
	hosts   *HostRegistry
	modules []module.HostModule
	bundles []module.Bundle
	loaders []module.ExtensionLoader
	err     error
}

func NewBuilder(opts Options) *Builder {
	return &Builder{opts: opts, hosts: NewHostRegistry()}
}

// AddHost exposes a Go value as a module named by its namespace.
func (b *Builder) AddHost(h Host) *Builder {
	if err := b.hosts.RegisterHost(h); err != nil && b.err == nil {
		b.err = err
	}
	return b
}

// AddHostModule exposes a host module alongside the configured ones.
func (b *Builder) AddHostModule(m module.HostModule) *Builder {
	b.modules = append(b.modules, m)
	return b
}

// AddBundle adds a script module served by name.
func (b *Builder) AddBundle(bnd module.Bundle) *Builder {
	b.bundles = append(b.bundles, bnd)
	return b
}

// AddLoader appends an extension loader after the configured ones.
func (b *Builder) AddLoader(l module.ExtensionLoader) *Builder {
	b.loaders = append(b.loaders, l)
	return b
}

// Build creates the VM. The caller owns it and must call Close.
func (b *Builder) Build(ctx context.Context) (*VM, error) {
	if b.err != nil {
		return nil, b.err
	}

	opts := b.opts
	if opts.Cwd == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, errors.Wrap(errors.PhaseConfig, errors.KindIO, err, "working directory")
		}
		opts.Cwd = wd
	}
	log := opts.Logger
	if log == nil {
		log = Logger()
	}

	hostCfg := hostmod.Config{
		Stdout: opts.Stdout,
		Stderr: opts.Stderr,
		Client: opts.HTTPClient,
		Cwd:    opts.Cwd,
		Args:   opts.Args,
	}
	if opts.ConsoleToLog {
		hostCfg.Logger = log
	}

	natives, err := hostmod.NativeSet(hostCfg, opts.Hosts...)
	if err != nil {
		return nil, err
	}
	for _, m := range b.hosts.Modules() {
		natives.Add(m)
	}
	for _, m := range b.modules {
		natives.Add(m)
	}

	rb := module.NewBuilder(opts.Cwd).AddSource(natives)
	if opts.Bundles || len(b.bundles) > 0 {
		var all []module.Bundle
		if opts.Bundles {
			all = append(all, bundle.Bundles()...)
		}
		set, err := module.NewBundleSet(append(all, b.bundles...)...)
		if err != nil {
			return nil, err
		}
		rb.AddSource(set)
	}

	vm := &VM{}
	for _, name := range opts.Loaders {
		switch name {
		case LoaderScript:
			rb.AddLoader(module.ScriptLoader{})
		case LoaderTranspile:
			rb.AddLoader(module.TranspileLoader{})
		case LoaderPlugins:
			dir := opts.pluginDir()
			if dir == "" {
				log.Debug("plugin loader skipped, no plugin directory")
				continue
			}
			if vm.plugins != nil {
				continue
			}
			pl, err := plugin.Open(ctx, dir,
				plugin.WithCacheDir(opts.cacheDir()),
				plugin.WithStdio(opts.Stdout, opts.Stderr),
			)
			if err != nil {
				return nil, err
			}
			vm.plugins = pl
			rb.AddLoader(pl)
		default:
			vm.Close()
			return nil, errors.InvalidInput(errors.PhaseConfig, "unknown loader "+name)
		}
	}
	for _, l := range b.loaders {
		rb.AddLoader(l)
	}

	reg, err := rb.Build()
	if err != nil {
		vm.Close()
		return nil, err
	}
	vm.registry = reg

	eng, err := engine.New(reg, hostmod.Globals(hostCfg))
	if err != nil {
		vm.Close()
		return nil, err
	}
	vm.engine = eng

	log.Debug("vm built",
		zap.String("cwd", opts.Cwd),
		zap.Strings("extensions", reg.Extensions()),
		zap.Int("plugins", len(vm.Plugins())))
	return vm, nil
}

// VM is an engine wired to a module registry and its plugins. It is owned
// by a single goroutine; Worker provides access from others.
type VM struct {
	engine   *engine.Engine
	registry *module.Registry
	plugins  *plugin.Loader
}

// New builds a VM from opts.
func New(ctx context.Context, opts Options) (*VM, error) {
	return NewBuilder(opts).Build(ctx)
}

func (v *VM) Engine() *engine.Engine {
	return v.engine
}

func (v *VM) Registry() *module.Registry {
	return v.registry
}

// Plugins describes the loaded plugins in discovery order.
func (v *VM) Plugins() []plugin.Info {
	if v.plugins == nil {
		return nil
	}
	return v.plugins.Plugins()
}

// RunMain evaluates the entry module at path and calls its entry function
// with arg, returning the settled result.
func (v *VM) RunMain(ctx context.Context, path string, arg any) (any, error) {
	res, err := v.engine.RunMain(ctx, path, arg)
	Logger().Debug("entry finished",
		zap.String("path", path),
		zap.Strings("modules", v.engine.Loaded()),
		zap.Bool("failed", err != nil))
	return res, err
}

// Eval runs code as a script and returns its settled result.
func (v *VM) Eval(ctx context.Context, code string) (any, error) {
	var res goja.Value
	err := v.engine.With(func(c *engine.Context) error {
		var err error
		res, err = c.Eval("<eval>", code)
		return err
	})
	if err != nil {
		return nil, err
	}
	res, err = v.engine.Settle(ctx, res)
	if err != nil {
		return nil, err
	}
	return res.Export(), nil
}

// Close releases the engine and plugin runtimes. It is safe to call more
// than once.
func (v *VM) Close() error {
	var err error
	if v.engine != nil {
		err = v.engine.Close()
	}
	if v.plugins != nil {
		if perr := v.plugins.Close(context.Background()); err == nil {
			err = perr
		}
	}
	return err
}

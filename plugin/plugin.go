package plugin

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"unicode/utf8"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wippyai/scriptor/engine"
	"github.com/wippyai/scriptor/errors"
)

// Ext is the file extension of plugin binaries.
const Ext = ".wasm"

// Config holds plugin sandbox settings.
type Config struct {
	Stdout io.Writer
	Stderr io.Writer

	// CacheDir enables wazero's on-disk compilation cache.
	CacheDir string

	// MemoryLimitPages caps each plugin's memory in 64KiB pages.
	MemoryLimitPages uint32

	// Concurrency limits parallel compilation. Zero means unlimited.
	Concurrency int
}

// Option configures Open.
type Option func(*Config)

// WithStdio sets the writers plugins inherit as stdout and stderr. Nil
// writers keep the process streams.
func WithStdio(stdout, stderr io.Writer) Option {
	return func(c *Config) {
		if stdout != nil {
			c.Stdout = stdout
		}
		if stderr != nil {
			c.Stderr = stderr
		}
	}
}

// WithCacheDir enables the compilation cache in dir.
func WithCacheDir(dir string) Option {
	return func(c *Config) { c.CacheDir = dir }
}

// WithMemoryLimitPages caps plugin memory.
func WithMemoryLimitPages(pages uint32) Option {
	return func(c *Config) { c.MemoryLimitPages = pages }
}

// WithConcurrency limits how many plugins compile at once.
func WithConcurrency(n int) Option {
	return func(c *Config) { c.Concurrency = n }
}

// Info describes a loaded plugin.
type Info struct {
	Path       string
	Extensions []string
}

// descriptor is one plugin with its own sandbox. Calls into the sandbox are
// serialized by mu.
type descriptor struct {
	runtime wazero.Runtime
	guest   *guest
	path    string
	exts    []string
	mu      sync.Mutex
}

func (d *descriptor) transform(ctx context.Context, input []byte) (result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.guest.callTransform(ctx, input)
}

// Loader is an extension loader backed by sandboxed transform plugins.
type Loader struct {
	cache   wazero.CompilationCache
	plugins []*descriptor
	closed  bool
	mu      sync.Mutex
}

// Open scans dir (non-recursively) for plugin binaries and instantiates each
// in its own sandbox. Plugins are ordered by file name. If any plugin fails
// to compile, instantiate or report its extensions, everything opened so far
// is closed and the error names the offending file.
func Open(ctx context.Context, dir string, opts ...Option) (*Loader, error) {
	cfg := Config{
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
	for _, o := range opts {
		o(&cfg)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.PluginInit(dir, "scan plugin directory", err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != Ext {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}

	l := &Loader{plugins: make([]*descriptor, len(paths))}
	if cfg.CacheDir != "" {
		cache, err := wazero.NewCompilationCacheWithDir(cfg.CacheDir)
		if err != nil {
			return nil, errors.PluginInit(cfg.CacheDir, "open compilation cache", err)
		}
		l.cache = cache
	}

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Concurrency > 0 {
		g.SetLimit(cfg.Concurrency)
	}
	for i, path := range paths {
		g.Go(func() error {
			d, err := openPlugin(gctx, path, &cfg, l.cache)
			if err != nil {
				return err
			}
			l.plugins[i] = d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		_ = l.Close(context.WithoutCancel(ctx))
		return nil, err
	}

	for _, d := range l.plugins {
		Logger().Debug("plugin loaded",
			zap.String("path", d.path),
			zap.Strings("extensions", d.exts))
	}
	return l, nil
}

func openPlugin(ctx context.Context, path string, cfg *Config, cache wazero.CompilationCache) (*descriptor, error) {
	bin, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.PluginInit(path, "read", err)
	}

	rcfg := wazero.NewRuntimeConfig()
	if cfg.MemoryLimitPages > 0 {
		rcfg = rcfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}
	if cache != nil {
		rcfg = rcfg.WithCompilationCache(cache)
	}
	rt := wazero.NewRuntimeWithConfig(ctx, rcfg)

	d, err := instantiate(ctx, rt, path, bin, cfg)
	if err != nil {
		_ = rt.Close(context.WithoutCancel(ctx))
		return nil, err
	}
	return d, nil
}

func instantiate(ctx context.Context, rt wazero.Runtime, path string, bin []byte, cfg *Config) (*descriptor, error) {
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		return nil, errors.PluginInit(path, "instantiate WASI", err)
	}

	compiled, err := rt.CompileModule(ctx, bin)
	if err != nil {
		return nil, errors.PluginInit(path, "compile", err)
	}

	// stdio only: no preopened directories, no environment
	modCfg := wazero.NewModuleConfig().
		WithName(filepath.Base(path)).
		WithStdin(os.Stdin).
		WithStdout(cfg.Stdout).
		WithStderr(cfg.Stderr).
		WithStartFunctions("_initialize")

	mod, err := rt.InstantiateModule(ctx, compiled, modCfg)
	if err != nil {
		return nil, errors.PluginInit(path, "instantiate", err)
	}

	g, err := bindGuest(mod)
	if err != nil {
		return nil, errors.PluginInit(path, "bind exports", err)
	}

	exts, err := g.callExtensions(ctx)
	if err != nil {
		return nil, errors.PluginInit(path, "query extensions", err)
	}

	return &descriptor{
		runtime: rt,
		guest:   g,
		path:    path,
		exts:    exts,
	}, nil
}

// Extensions returns every extension declared by every plugin, in discovery
// order. Duplicates are kept.
func (l *Loader) Extensions() []string {
	var out []string
	for _, d := range l.plugins {
		out = append(out, d.exts...)
	}
	return out
}

// Plugins describes the loaded plugins in discovery order.
func (l *Loader) Plugins() []Info {
	out := make([]Info, 0, len(l.plugins))
	for _, d := range l.plugins {
		out = append(out, Info{
			Path:       d.path,
			Extensions: append([]string(nil), d.exts...),
		})
	}
	return out
}

// Load transforms source with each plugin in discovery order and compiles
// the first successful output as a unit named path. When every plugin
// fails, the last failure message is returned. The registry only routes
// extensions some plugin declared, so descriptors are not filtered here.
func (l *Loader) Load(c *engine.Context, path string, source []byte) (*engine.Unit, error) {
	if msg := invalidUTF8(source); msg != "" {
		return nil, errors.TransformFailure(path, msg)
	}

	ctx := context.Background()
	if c != nil {
		ctx = c.Context()
	}
	var lastErr error
	for _, d := range l.plugins {
		res, err := d.transform(ctx, source)
		if err != nil {
			lastErr = errors.New(errors.PhaseLoad, errors.KindTransformFailure).
				Path(path).
				Detailf("plugin %s: %v", filepath.Base(d.path), err).
				Cause(err).
				Build()
			continue
		}
		if res.success {
			return engine.Compile(path, res.text)
		}

		Logger().Debug("plugin transform failed",
			zap.String("plugin", d.path),
			zap.String("path", path),
			zap.String("message", res.text))
		lastErr = errors.TransformFailure(path, res.text)
	}

	if lastErr == nil {
		return nil, errors.ExtensionUnsupported(path)
	}
	return nil, lastErr
}

// Close releases every sandbox. It is idempotent.
func (l *Loader) Close(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true

	var first error
	for _, d := range l.plugins {
		if d == nil {
			continue
		}
		d.mu.Lock()
		if err := d.runtime.Close(ctx); err != nil && first == nil {
			first = err
		}
		d.mu.Unlock()
	}
	if l.cache != nil {
		if err := l.cache.Close(ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// invalidUTF8 describes the first invalid sequence in b, or returns "".
func invalidUTF8(b []byte) string {
	for i := 0; i < len(b); {
		r, size := utf8.DecodeRune(b[i:])
		if r == utf8.RuneError && size == 1 {
			return fmt.Sprintf("invalid utf-8 sequence of 1 bytes from index %d", i)
		}
		i += size
	}
	return ""
}

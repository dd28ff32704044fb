package module

import (
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/wippyai/scriptor/engine"
	"github.com/wippyai/scriptor/errors"
)

// Source recognizes bare module names and loads them.
type Source interface {
	Has(name string) bool
	Load(c *engine.Context, name string) (*engine.Unit, error)
}

// ExtensionLoader turns file contents into a unit. Loaders claim file
// extensions without the leading dot.
type ExtensionLoader interface {
	Extensions() []string
	Load(c *engine.Context, path string, source []byte) (*engine.Unit, error)
}

// Registry resolves specifiers and loads modules. Bare names are served by
// sources; files by the extension loader chain. Both are consulted in
// registration order. The registry keeps no cache: every Load reads the file
// again.
type Registry struct {
	cwd     string
	sources []Source
	loaders []ExtensionLoader
	exts    []string
}

// Builder collects sources and loaders for a Registry.
type Builder struct {
	cwd     string
	sources []Source
	loaders []ExtensionLoader
}

// NewBuilder creates a builder resolving relative specifiers against cwd.
// An empty cwd means the process working directory at Build time.
func NewBuilder(cwd string) *Builder {
	return &Builder{cwd: cwd}
}

// AddSource appends a bare-name source.
func (b *Builder) AddSource(s Source) *Builder {
	b.sources = append(b.sources, s)
	return b
}

// AddLoader appends an extension loader. Earlier loaders take priority.
func (b *Builder) AddLoader(l ExtensionLoader) *Builder {
	b.loaders = append(b.loaders, l)
	return b
}

// Build freezes the registrations.
func (b *Builder) Build() (*Registry, error) {
	cwd := b.cwd
	if cwd == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, errors.Wrap(errors.PhaseResolve, errors.KindIO, err, "working directory")
		}
		cwd = wd
	}
	abs, err := filepath.Abs(cwd)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseResolve, errors.KindInvalidPath, err, "working directory")
	}

	r := &Registry{
		cwd:     abs,
		sources: append([]Source(nil), b.sources...),
		loaders: append([]ExtensionLoader(nil), b.loaders...),
	}

	seen := make(map[string]bool)
	for _, l := range r.loaders {
		for _, ext := range l.Extensions() {
			if !seen[ext] {
				seen[ext] = true
				r.exts = append(r.exts, ext)
			}
		}
	}

	Logger().Debug("registry built",
		zap.String("cwd", abs),
		zap.Int("sources", len(r.sources)),
		zap.Strings("extensions", r.exts))
	return r, nil
}

// Cwd returns the directory relative specifiers resolve against when the
// importer is not a file.
func (r *Registry) Cwd() string {
	return r.cwd
}

// Extensions returns every extension claimed by a loader, in priority order.
func (r *Registry) Extensions() []string {
	return append([]string(nil), r.exts...)
}

// Resolve maps a specifier written in base to a canonical name. base is the
// canonical name of the importer, empty for top-level code.
func (r *Registry) Resolve(base, specifier string) (string, error) {
	if r.isPathLike(specifier) {
		return r.resolveFile(base, specifier)
	}

	for _, s := range r.sources {
		if s.Has(specifier) {
			return specifier, nil
		}
	}
	return "", errors.NotFound(base, specifier)
}

// Load produces the unit for a canonical name returned by Resolve.
func (r *Registry) Load(c *engine.Context, name string) (*engine.Unit, error) {
	if !r.isPathLike(name) {
		for _, s := range r.sources {
			if s.Has(name) {
				return s.Load(c, name)
			}
		}
		return nil, errors.LoadNotFound(name)
	}

	ext := strings.TrimPrefix(filepath.Ext(name), ".")
	if ext == "" {
		return nil, errors.InvalidPath(errors.PhaseLoad, name, "file has no extension")
	}

	source, err := os.ReadFile(name)
	if err != nil {
		return nil, errors.IO(name, err)
	}

	var (
		claimed bool
		lastErr error
	)
	for _, l := range r.loaders {
		if !claims(l, ext) {
			continue
		}
		claimed = true

		u, err := l.Load(c, name, source)
		if err == nil {
			return u, nil
		}
		Logger().Debug("loader failed",
			zap.String("path", name),
			zap.Error(err))
		lastErr = err
	}

	if !claimed {
		return nil, errors.ExtensionUnsupported(name)
	}
	return nil, lastErr
}

func claims(l ExtensionLoader, ext string) bool {
	for _, e := range l.Extensions() {
		if e == ext {
			return true
		}
	}
	return false
}

package module

import (
	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/require"

	"github.com/wippyai/scriptor/engine"
)

// HostModule is a module implemented in Go and exposed under a fixed name.
type HostModule interface {
	Name() string
	Load(c *engine.Context, exports *goja.Object) error
}

// HostFunc adapts a function to HostModule.
type HostFunc struct {
	Fn     func(c *engine.Context, exports *goja.Object) error
	Module string
}

// Name implements HostModule.
func (h HostFunc) Name() string { return h.Module }

// Load implements HostModule.
func (h HostFunc) Load(c *engine.Context, exports *goja.Object) error { return h.Fn(c, exports) }

// NativeSet serves host modules by exact name.
type NativeSet struct {
	byName map[string]engine.NativeFunc
	names  []string
}

// NewNativeSet creates a set from host modules. Later modules with a
// duplicate name are ignored.
func NewNativeSet(mods ...HostModule) *NativeSet {
	s := &NativeSet{byName: make(map[string]engine.NativeFunc)}
	for _, m := range mods {
		s.add(m.Name(), engine.ExportsFunc(m.Load))
	}
	return s
}

// AddNode registers a goja_nodejs module loader under name.
func (s *NativeSet) AddNode(name string, l require.ModuleLoader) *NativeSet {
	s.add(name, engine.NodeLoader(l))
	return s
}

func (s *NativeSet) add(name string, fn engine.NativeFunc) {
	if _, ok := s.byName[name]; ok {
		return
	}
	s.byName[name] = fn
	s.names = append(s.names, name)
}

// Names returns the registered names in registration order.
func (s *NativeSet) Names() []string {
	return append([]string(nil), s.names...)
}

// Has implements Source.
func (s *NativeSet) Has(name string) bool {
	_, ok := s.byName[name]
	return ok
}

// Load implements Source.
func (s *NativeSet) Load(_ *engine.Context, name string) (*engine.Unit, error) {
	fn, ok := s.byName[name]
	if !ok {
		return nil, notProvided(name)
	}
	return engine.NewNativeUnit(name, fn), nil
}

// Add registers a host module. A duplicate name is ignored.
func (s *NativeSet) Add(m HostModule) *NativeSet {
	s.add(m.Name(), engine.ExportsFunc(m.Load))
	return s
}

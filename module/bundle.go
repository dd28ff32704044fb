package module

import (
	"github.com/wippyai/scriptor/engine"
	"github.com/wippyai/scriptor/errors"
)

// Bundle is a script shipped inside the binary.
type Bundle struct {
	Name   string
	Source string
}

// BundleSet serves precompiled bundled scripts by exact name. Compiled
// programs are shared by every engine using the set.
type BundleSet struct {
	units map[string]*engine.Unit
	names []string
}

// NewBundleSet compiles every bundle. A bundle that does not compile fails
// the whole set.
func NewBundleSet(bundles ...Bundle) (*BundleSet, error) {
	s := &BundleSet{units: make(map[string]*engine.Unit, len(bundles))}
	for _, b := range bundles {
		if _, ok := s.units[b.Name]; ok {
			continue
		}
		u, err := engine.Compile(b.Name, b.Source)
		if err != nil {
			return nil, err
		}
		s.units[b.Name] = u
		s.names = append(s.names, b.Name)
	}
	return s, nil
}

// Names returns the bundle names in registration order.
func (s *BundleSet) Names() []string {
	return append([]string(nil), s.names...)
}

// Has implements Source.
func (s *BundleSet) Has(name string) bool {
	_, ok := s.units[name]
	return ok
}

// Load implements Source.
func (s *BundleSet) Load(_ *engine.Context, name string) (*engine.Unit, error) {
	u, ok := s.units[name]
	if !ok {
		return nil, notProvided(name)
	}
	return u, nil
}

func notProvided(name string) error {
	return errors.LoadNotFound(name)
}

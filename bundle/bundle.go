// Package bundle embeds the script modules shipped with scriptor:
//
//	util   - value formatting and type predicates
//	tasks  - a queue of background promises that can be awaited together
//	pipe   - lazy async pipelines over arrays, iterables and promises
package bundle

import (
	"embed"
	"io/fs"
	"path"
	"strings"

	"github.com/wippyai/scriptor/module"
)

//go:embed js/*.js
var files embed.FS

// Bundles returns every embedded module, named by file name without
// extension, in file name order.
func Bundles() []module.Bundle {
	entries, err := fs.ReadDir(files, "js")
	if err != nil {
		panic(err) // embedded directory always exists
	}

	out := make([]module.Bundle, 0, len(entries))
	for _, e := range entries {
		data, err := files.ReadFile(path.Join("js", e.Name()))
		if err != nil {
			panic(err)
		}
		out = append(out, module.Bundle{
			Name:   strings.TrimSuffix(e.Name(), path.Ext(e.Name())),
			Source: string(data),
		})
	}
	return out
}

// Names returns the names of the embedded modules.
func Names() []string {
	b := Bundles()
	names := make([]string, len(b))
	for i := range b {
		names[i] = b[i].Name
	}
	return names
}

// NewSet compiles the embedded modules into a module source.
func NewSet() (*module.BundleSet, error) {
	return module.NewBundleSet(Bundles()...)
}

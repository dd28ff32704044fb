package module

import (
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/wippyai/scriptor/errors"
)

// isPathLike reports whether a specifier names a file: relative, absolute, or
// carrying an extension some loader claims.
func (r *Registry) isPathLike(specifier string) bool {
	if strings.HasPrefix(specifier, ".") || filepath.IsAbs(specifier) {
		return true
	}
	ext := strings.TrimPrefix(filepath.Ext(specifier), ".")
	if ext == "" {
		return false
	}
	for _, e := range r.exts {
		if e == ext {
			return true
		}
	}
	return false
}

func (r *Registry) resolveFile(base, specifier string) (string, error) {
	if !utf8.ValidString(specifier) {
		return "", errors.InvalidPath(errors.PhaseResolve, specifier, "specifier is not valid UTF-8")
	}

	var path string
	switch {
	case filepath.IsAbs(specifier):
		path = filepath.Clean(specifier)
	case filepath.IsAbs(base):
		path = filepath.Join(filepath.Dir(base), specifier)
	default:
		path = filepath.Join(r.cwd, specifier)
	}

	if isFile(path) {
		return path, nil
	}

	// extensionless specifiers may name a file of any loadable type
	if filepath.Ext(specifier) == "" {
		for _, ext := range r.exts {
			candidate := path + "." + ext
			if isFile(candidate) {
				return candidate, nil
			}
		}
	}

	return "", errors.NotFound(base, specifier)
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

package hostmod

import (
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/dop251/goja_nodejs/util"
	"go.uber.org/zap"

	"github.com/wippyai/scriptor/errors"
	"github.com/wippyai/scriptor/module"
)

// Names of the host modules this package provides.
const (
	NameFS   = "fs"
	NameOS   = "os"
	NameHTTP = "http"
	NameUtil = "node:util"
)

// Config is shared by the host modules and globals.
type Config struct {
	Stdout io.Writer
	Stderr io.Writer

	// Client performs http requests. Defaults to http.DefaultClient.
	Client *http.Client

	// Logger receives console output instead of Stdout/Stderr when set.
	Logger *zap.Logger

	// Cwd is the directory relative file paths resolve against.
	Cwd  string
	Args []string
}

func (c Config) withDefaults() Config {
	if c.Stdout == nil {
		c.Stdout = os.Stdout
	}
	if c.Stderr == nil {
		c.Stderr = os.Stderr
	}
	if c.Client == nil {
		c.Client = http.DefaultClient
	}
	if c.Cwd == "" {
		if wd, err := os.Getwd(); err == nil {
			c.Cwd = wd
		}
	}
	return c
}

func (c Config) path(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Cwd, p)
}

// Names returns every host module name in registration order.
func Names() []string {
	return []string{NameFS, NameOS, NameHTTP, NameUtil}
}

// NativeSet builds a native module source with the named host modules. No
// names selects all of them.
func NativeSet(cfg Config, names ...string) (*module.NativeSet, error) {
	cfg = cfg.withDefaults()
	if len(names) == 0 {
		names = Names()
	}

	var (
		mods []module.HostModule
		node bool
	)
	for _, name := range names {
		switch name {
		case NameFS:
			mods = append(mods, &FS{cfg: cfg})
		case NameOS:
			mods = append(mods, &OS{cfg: cfg})
		case NameHTTP:
			mods = append(mods, &HTTP{cfg: cfg})
		case NameUtil:
			node = true
		default:
			return nil, errors.InvalidInput(errors.PhaseConfig, "unknown host module "+name)
		}
	}

	set := module.NewNativeSet(mods...)
	if node {
		set.AddNode(NameUtil, util.Require)
	}
	return set, nil
}

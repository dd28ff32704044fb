// Package config loads scriptor settings from a config file in the
// configuration root, SCRIPTOR_* environment variables and defaults, in
// increasing order of precedence: defaults, file, environment.
package config

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/viper"

	"github.com/wippyai/scriptor/errors"
	"github.com/wippyai/scriptor/hostmod"
	"github.com/wippyai/scriptor/runtime"
)

const (
	AppName        = "scriptor"
	ConfigFileName = "config"
	EnvPrefix      = "SCRIPTOR"
)

// Log output formats.
const (
	FormatAuto    = "auto"
	FormatConsole = "console"
	FormatJSON    = "json"
)

type Config struct {
	Root      string   `mapstructure:"root"`
	Cwd       string   `mapstructure:"cwd"`
	CacheDir  string   `mapstructure:"cache_dir"`
	PluginDir string   `mapstructure:"plugin_dir"`
	Hosts     []string `mapstructure:"hosts"`
	Loaders   []string `mapstructure:"loaders"`
	Bundles   bool     `mapstructure:"bundles"`
	Log       Log      `mapstructure:"log"`
}

type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	// Console routes script console output through the logger.
	Console bool `mapstructure:"console"`
}

// LoadOptions selects where configuration is read from.
type LoadOptions struct {
	// File is an explicit config file. It must exist.
	File string
	// Root overrides the configuration root.
	Root string
}

// DefaultRoot returns the per-user configuration root.
func DefaultRoot() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", errors.Wrap(errors.PhaseConfig, errors.KindIO, err, "user config directory")
	}
	return filepath.Join(dir, AppName), nil
}

// DefaultConfig returns the configuration used when nothing overrides it.
func DefaultConfig() Config {
	return Config{
		Hosts:   hostmod.Names(),
		Loaders: []string{runtime.LoaderScript, runtime.LoaderPlugins, runtime.LoaderTranspile},
		Bundles: true,
		Log: Log{
			Level:  "info",
			Format: FormatAuto,
		},
	}
}

// Load reads the configuration and returns it with the path of the config
// file used, empty when none was found.
func Load(ctx context.Context, opts LoadOptions) (*Config, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", errors.Wrap(errors.PhaseConfig, errors.KindExecutionFailure, err, "load config canceled")
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	root := opts.Root
	if root == "" {
		root = os.Getenv(EnvPrefix + "_ROOT")
	}
	if root == "" {
		var err error
		if root, err = DefaultRoot(); err != nil {
			return nil, "", err
		}
	}

	defaults := DefaultConfig()
	v.SetDefault("root", root)
	v.SetDefault("cwd", "")
	v.SetDefault("cache_dir", "")
	v.SetDefault("plugin_dir", "")
	v.SetDefault("hosts", defaults.Hosts)
	v.SetDefault("loaders", defaults.Loaders)
	v.SetDefault("bundles", defaults.Bundles)
	v.SetDefault("log.level", defaults.Log.Level)
	v.SetDefault("log.format", defaults.Log.Format)
	v.SetDefault("log.console", defaults.Log.Console)

	if opts.File != "" {
		if _, err := os.Stat(opts.File); err != nil {
			return nil, "", errors.New(errors.PhaseConfig, errors.KindNotFound).
				Path(opts.File).
				Cause(err).
				Detail("config file not found").
				Build()
		}
		v.SetConfigFile(opts.File)
	} else {
		v.AddConfigPath(root)
		v.SetConfigName(ConfigFileName)
	}

	used := ""
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if opts.File != "" || !stderrors.As(err, &notFound) {
			path := opts.File
			if path == "" {
				path = v.ConfigFileUsed()
			}
			return nil, "", errors.New(errors.PhaseConfig, errors.KindDecodeFailure).
				Path(path).
				Cause(err).
				Detail("read config").
				Build()
		}
	} else {
		used = v.ConfigFileUsed()
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", errors.New(errors.PhaseConfig, errors.KindDecodeFailure).
			Path(used).
			Cause(err).
			Detail("decode config").
			Build()
	}
	if opts.Root != "" {
		cfg.Root = opts.Root
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	return &cfg, used, nil
}

// Validate checks component names and the log format.
func (c *Config) Validate() error {
	known := []string{runtime.LoaderScript, runtime.LoaderPlugins, runtime.LoaderTranspile}
	for _, l := range c.Loaders {
		if !slices.Contains(known, l) {
			return errors.InvalidInput(errors.PhaseConfig, "unknown loader "+l)
		}
	}
	for _, h := range c.Hosts {
		if !slices.Contains(hostmod.Names(), h) {
			return errors.InvalidInput(errors.PhaseConfig, "unknown host module "+h)
		}
	}
	switch c.Log.Format {
	case FormatAuto, FormatConsole, FormatJSON:
	default:
		return errors.InvalidInput(errors.PhaseConfig, "unknown log format "+c.Log.Format)
	}
	return nil
}

// Options converts the configuration into VM options.
func (c *Config) Options() runtime.Options {
	return runtime.Options{
		Cwd:          c.Cwd,
		Root:         c.Root,
		CacheDir:     c.CacheDir,
		PluginDir:    c.PluginDir,
		Hosts:        slices.Clone(c.Hosts),
		Loaders:      slices.Clone(c.Loaders),
		Bundles:      c.Bundles,
		ConsoleToLog: c.Log.Console,
	}
}

// EnsureRoot creates root with its cache/ and loaders/ subdirectories.
// Existing directories are left alone.
func EnsureRoot(root string) error {
	for _, dir := range []string{filepath.Join(root, "cache"), filepath.Join(root, "loaders")} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(errors.PhaseConfig, errors.KindIO, err, "create "+dir)
		}
	}
	return nil
}

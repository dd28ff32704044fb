package main

import (
	"context"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"

	"github.com/wippyai/scriptor/config"
	"github.com/wippyai/scriptor/engine"
	"github.com/wippyai/scriptor/errors"
	"github.com/wippyai/scriptor/module"
	"github.com/wippyai/scriptor/plugin"
	"github.com/wippyai/scriptor/runtime"
)

// app carries state shared by the subcommands.
type app struct {
	stdout io.Writer
	stderr io.Writer
	cfg    *config.Config
	log    *zap.Logger

	configFile string
	root       string
	cwd        string
	logLevel   string
	logFormat  string
	logConsole bool
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr}

	cmd := &cobra.Command{
		Use:           "scriptor",
		Short:         "Run JavaScript and TypeScript with host modules and wasm loaders",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd.Context())
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	f := cmd.PersistentFlags()
	f.StringVar(&a.configFile, "config", "", "config file (default <root>/config.{yaml,toml,json})")
	f.StringVar(&a.root, "root", "", "configuration root holding loaders/ and cache/")
	f.StringVar(&a.cwd, "cwd", "", "working directory for module resolution")
	f.StringVar(&a.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	f.StringVar(&a.logFormat, "log-format", "", "log format (auto, console, json)")
	f.BoolVar(&a.logConsole, "log-console", false, "route script console output through the logger")

	cmd.AddCommand(
		newRunCmd(a),
		newEvalCmd(a),
		newReplCmd(a),
		newPluginsCmd(a),
		newInitCmd(a),
	)
	return cmd
}

func (a *app) setup(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, used, err := config.Load(ctx, config.LoadOptions{File: a.configFile, Root: a.root})
	if err != nil {
		return err
	}
	if a.cwd != "" {
		cfg.Cwd = a.cwd
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.logFormat != "" {
		cfg.Log.Format = a.logFormat
	}
	if a.logConsole {
		cfg.Log.Console = true
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, err := newLogger(cfg.Log, a.stderr)
	if err != nil {
		return err
	}
	engine.SetLogger(log.Named("engine"))
	module.SetLogger(log.Named("module"))
	plugin.SetLogger(log.Named("plugin"))
	runtime.SetLogger(log.Named("runtime"))

	a.cfg = cfg
	a.log = log
	log.Debug("configuration loaded",
		zap.String("file", used),
		zap.String("root", cfg.Root),
		zap.Strings("loaders", cfg.Loaders))
	return nil
}

// options returns VM options for a script invocation.
func (a *app) options(args []string) runtime.Options {
	opts := a.cfg.Options()
	opts.Stdout = a.stdout
	opts.Stderr = a.stderr
	opts.Logger = a.log
	opts.Args = args
	return opts
}

// worker starts a worker owning a fresh VM.
func (a *app) worker(ctx context.Context, args []string) (*runtime.Worker, error) {
	opts := a.options(args)
	return runtime.NewWorker(func() (*runtime.VM, error) {
		return runtime.New(ctx, opts)
	})
}

// newLogger builds a development console logger on terminals and a JSON
// logger otherwise.
func newLogger(cfg config.Log, out io.Writer) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "log level")
	}

	format := cfg.Format
	if format == config.FormatAuto {
		format = config.FormatJSON
		if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
			format = config.FormatConsole
		}
	}

	var enc zapcore.Encoder
	if format == config.FormatConsole {
		ec := zap.NewDevelopmentEncoderConfig()
		ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
		enc = zapcore.NewConsoleEncoder(ec)
	} else {
		enc = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	}

	core := zapcore.NewCore(enc, zapcore.AddSync(out), level)
	return zap.New(core), nil
}

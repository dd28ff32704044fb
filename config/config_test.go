package config

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/wippyai/scriptor/errors"
	"github.com/wippyai/scriptor/runtime"
)

func write(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoad_Defaults(t *testing.T) {
	root := t.TempDir()
	cfg, used, err := Load(context.Background(), LoadOptions{Root: root})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if used != "" {
		t.Errorf("config file used = %q, want none", used)
	}

	want := DefaultConfig()
	if cfg.Root != root || !cfg.Bundles || cfg.Log.Format != FormatAuto || cfg.Log.Level != "info" {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if !slices.Equal(cfg.Loaders, want.Loaders) || !slices.Equal(cfg.Hosts, want.Hosts) {
		t.Errorf("components = %v / %v", cfg.Loaders, cfg.Hosts)
	}
}

func TestLoad_Files(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"yaml", "config.yaml", "loaders: [script]\nbundles: false\nlog:\n  level: debug\n"},
		{"toml", "config.toml", "loaders = [\"script\"]\nbundles = false\n[log]\nlevel = \"debug\"\n"},
		{"json", "config.json", `{"loaders": ["script"], "bundles": false, "log": {"level": "debug"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			write(t, filepath.Join(root, tt.file), tt.content)

			cfg, used, err := Load(context.Background(), LoadOptions{Root: root})
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if used != filepath.Join(root, tt.file) {
				t.Errorf("used = %q", used)
			}
			if !slices.Equal(cfg.Loaders, []string{"script"}) || cfg.Bundles || cfg.Log.Level != "debug" {
				t.Errorf("file values not applied: %+v", cfg)
			}
			if cfg.Log.Format != FormatAuto {
				t.Errorf("default lost: %+v", cfg.Log)
			}
		})
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	root := t.TempDir()
	write(t, filepath.Join(root, "config.yaml"), "log:\n  level: debug\nplugin_dir: /from/file\n")
	t.Setenv("SCRIPTOR_LOG_LEVEL", "warn")
	t.Setenv("SCRIPTOR_LOADERS", "script,transpile")

	cfg, _, err := Load(context.Background(), LoadOptions{Root: root})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("log level = %q, want env value", cfg.Log.Level)
	}
	if cfg.PluginDir != "/from/file" {
		t.Errorf("plugin dir = %q", cfg.PluginDir)
	}
	if !slices.Equal(cfg.Loaders, []string{"script", "transpile"}) {
		t.Errorf("loaders = %v", cfg.Loaders)
	}
}

func TestLoad_RootFromEnv(t *testing.T) {
	root := t.TempDir()
	t.Setenv("SCRIPTOR_ROOT", root)

	cfg, _, err := Load(context.Background(), LoadOptions{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Root != root {
		t.Errorf("root = %q, want %q", cfg.Root, root)
	}
}

func TestLoad_Errors(t *testing.T) {
	root := t.TempDir()
	bad := filepath.Join(root, "bad.yaml")
	write(t, bad, "loaders: [\n")
	unknown := filepath.Join(root, "unknown.yaml")
	write(t, unknown, "loaders: [cobol]\n")
	format := filepath.Join(root, "format.yaml")
	write(t, format, "log:\n  format: xml\n")

	tests := []struct {
		name string
		file string
		kind errors.Kind
	}{
		{"missing", filepath.Join(root, "absent.yaml"), errors.KindNotFound},
		{"malformed", bad, errors.KindDecodeFailure},
		{"unknown loader", unknown, errors.KindInvalidInput},
		{"unknown format", format, errors.KindInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Load(context.Background(), LoadOptions{Root: root, File: tt.file})
			var se *errors.Error
			if !stderrors.As(err, &se) || se.Kind != tt.kind || se.Phase != errors.PhaseConfig {
				t.Fatalf("error = %v, want %s", err, tt.kind)
			}
		})
	}
}

func TestLoad_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := Load(ctx, LoadOptions{Root: t.TempDir()}); err == nil {
		t.Fatal("expected error for canceled context")
	}
}

func TestEnsureRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "nested", "root")
	for i := 0; i < 2; i++ {
		if err := EnsureRoot(root); err != nil {
			t.Fatalf("EnsureRoot #%d: %v", i, err)
		}
	}
	for _, sub := range []string{"cache", "loaders"} {
		info, err := os.Stat(filepath.Join(root, sub))
		if err != nil || !info.IsDir() {
			t.Errorf("%s missing: %v", sub, err)
		}
	}
}

func TestOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Root = "/r"
	cfg.Cwd = "/w"
	cfg.Log.Console = true

	opts := cfg.Options()
	if opts.Root != "/r" || opts.Cwd != "/w" || !opts.Bundles || !opts.ConsoleToLog {
		t.Errorf("options = %+v", opts)
	}
	if !slices.Equal(opts.Loaders, []string{runtime.LoaderScript, runtime.LoaderPlugins, runtime.LoaderTranspile}) {
		t.Errorf("loaders = %v", opts.Loaders)
	}

	opts.Loaders[0] = "changed"
	if cfg.Loaders[0] != runtime.LoaderScript {
		t.Error("Options shares the loader slice")
	}
}

package plugin

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/wippyai/scriptor/engine"
	"github.com/wippyai/scriptor/errors"
	"github.com/wippyai/scriptor/module"
	"github.com/wippyai/scriptor/plugin/plugintest"
)

func open(t *testing.T, dir string, opts ...Option) *Loader {
	t.Helper()
	opts = append([]Option{WithStdio(io.Discard, io.Discard)}, opts...)
	l, err := Open(context.Background(), dir, opts...)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = l.Close(context.Background()) })
	return l
}

// evaluate runs a unit in a fresh engine and returns its exports.
func evaluate(t *testing.T, u *engine.Unit) any {
	t.Helper()
	e, err := engine.New(nil)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	defer e.Close()

	var out any
	err = e.With(func(c *engine.Context) error {
		v, err := c.Evaluate(u)
		if err != nil {
			return err
		}
		out = v.Export()
		return nil
	})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	return out
}

func TestOpen_ExtensionsInDiscoveryOrder(t *testing.T) {
	dir := t.TempDir()
	plugintest.Write(t, dir, "b.wasm", plugintest.Plugin{Extensions: []string{"ts"}})
	plugintest.Write(t, dir, "a.wasm", plugintest.Plugin{Extensions: []string{"ts", "tsx"}})
	plugintest.Write(t, dir, "c.wasm", plugintest.Plugin{Extensions: []string{"coffee"}})
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("not a plugin"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(dir, "nested.wasm"), 0o755); err != nil {
		t.Fatal(err)
	}

	l := open(t, dir)

	got := l.Extensions()
	want := []string{"ts", "tsx", "ts", "coffee"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("Extensions = %v, want %v", got, want)
	}

	plugins := l.Plugins()
	if len(plugins) != 3 {
		t.Fatalf("Plugins = %d, want 3", len(plugins))
	}
	for i, name := range []string{"a.wasm", "b.wasm", "c.wasm"} {
		if filepath.Base(plugins[i].Path) != name {
			t.Errorf("plugin %d = %s, want %s", i, plugins[i].Path, name)
		}
	}
}

func TestOpen_EmptyDirectory(t *testing.T) {
	l := open(t, t.TempDir())
	if len(l.Extensions()) != 0 || len(l.Plugins()) != 0 {
		t.Error("empty directory should yield no plugins")
	}
}

func TestOpen_FailsAtomically(t *testing.T) {
	tests := []struct {
		name string
		bin  []byte
	}{
		{"garbage", []byte("definitely not wasm")},
		{"missing exports", []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			plugintest.Write(t, dir, "a-good.wasm", plugintest.Plugin{Extensions: []string{"ts"}})
			bad := filepath.Join(dir, "b-bad.wasm")
			if err := os.WriteFile(bad, tt.bin, 0o644); err != nil {
				t.Fatal(err)
			}

			l, err := Open(context.Background(), dir, WithStdio(io.Discard, io.Discard))
			if err == nil {
				_ = l.Close(context.Background())
				t.Fatal("Open should fail when any plugin is invalid")
			}
			if !stderrors.Is(err, errors.ErrPluginInit) {
				t.Fatalf("error = %v, want plugin init", err)
			}
			var se *errors.Error
			stderrors.As(err, &se)
			if se.Path != bad {
				t.Errorf("error path = %q, want %q", se.Path, bad)
			}
		})
	}
}

func TestOpen_MissingDirectory(t *testing.T) {
	_, err := Open(context.Background(), filepath.Join(t.TempDir(), "nope"))
	if !stderrors.Is(err, errors.ErrPluginInit) {
		t.Fatalf("error = %v, want plugin init", err)
	}
}

func TestLoad_FirstSuccessWins(t *testing.T) {
	dir := t.TempDir()
	plugintest.Write(t, dir, "1.wasm", plugintest.Plugin{
		Extensions: []string{"ts"},
		Transform:  plugintest.Fail("first cannot"),
	})
	plugintest.Write(t, dir, "2.wasm", plugintest.Plugin{
		Extensions: []string{"ts"},
		Transform:  plugintest.Constant(`module.exports = "second";`),
	})
	plugintest.Write(t, dir, "3.wasm", plugintest.Plugin{
		Extensions: []string{"ts"},
		Transform:  plugintest.Constant(`module.exports = "third";`),
	})
	plugintest.Write(t, dir, "4.wasm", plugintest.Plugin{
		Extensions: []string{"vue"},
		Transform:  plugintest.Constant(`module.exports = "fourth";`),
	})

	l := open(t, dir)
	u, err := l.Load(nil, "/project/app.ts", []byte("let x: number = 1"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if u.Name() != "/project/app.ts" {
		t.Errorf("unit name = %q", u.Name())
	}
	if got := evaluate(t, u); got != "second" {
		t.Errorf("exports = %v, want second", got)
	}
}

func TestLoad_AllFail(t *testing.T) {
	dir := t.TempDir()
	plugintest.Write(t, dir, "1.wasm", plugintest.Plugin{
		Extensions: []string{"ts"},
		Transform:  plugintest.Fail("first failure"),
	})
	plugintest.Write(t, dir, "2.wasm", plugintest.Plugin{
		Extensions: []string{"ts"},
		Transform:  plugintest.FailOn('!', "app.ts(1,1): error TS1128: Declaration or statement expected."),
	})

	l := open(t, dir)
	_, err := l.Load(nil, "/project/app.ts", []byte("!!! not typescript"))
	if !stderrors.Is(err, errors.ErrTransformFailure) {
		t.Fatalf("error = %v, want transform failure", err)
	}
	var se *errors.Error
	stderrors.As(err, &se)
	if se.Path != "/project/app.ts" {
		t.Errorf("path = %q", se.Path)
	}
	if !strings.Contains(se.Detail, "app.ts(1,1): error TS1128: Declaration or statement expected.") {
		t.Errorf("detail %q does not carry the plugin message", se.Detail)
	}
}

func TestLoad_InvalidUTF8(t *testing.T) {
	dir := t.TempDir()
	plugintest.Write(t, dir, "echo.wasm", plugintest.Plugin{Extensions: []string{"ts"}})

	l := open(t, dir)
	_, err := l.Load(nil, "/x.ts", []byte{'o', 'k', 0xff})
	if !stderrors.Is(err, errors.ErrTransformFailure) {
		t.Fatalf("error = %v, want transform failure", err)
	}
	var se *errors.Error
	stderrors.As(err, &se)
	if !strings.Contains(se.Detail, "index 2") {
		t.Errorf("detail %q should locate the invalid byte", se.Detail)
	}
}

func TestLoad_TriesEveryPlugin(t *testing.T) {
	dir := t.TempDir()
	plugintest.Write(t, dir, "1.wasm", plugintest.Plugin{
		Extensions: []string{"ts"},
		Transform:  plugintest.Fail("ts plugin cannot"),
	})
	plugintest.Write(t, dir, "2.wasm", plugintest.Plugin{
		Extensions: []string{"mts"},
		Transform:  plugintest.Constant(`module.exports = "from mts plugin";`),
	})

	l := open(t, dir)
	u, err := l.Load(nil, "/project/app.ts", []byte("let x = 1"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := evaluate(t, u); got != "from mts plugin" {
		t.Errorf("exports = %v, want from mts plugin", got)
	}
}

func TestLoad_NoPlugins(t *testing.T) {
	l := open(t, t.TempDir())
	if _, err := l.Load(nil, "/x.vue", []byte("x")); !stderrors.Is(err, errors.ErrExtensionUnsupported) {
		t.Fatalf("error = %v, want extension unsupported", err)
	}
}

func TestLoad_EchoRepeated(t *testing.T) {
	dir := t.TempDir()
	plugintest.Write(t, dir, "echo.wasm", plugintest.Plugin{Extensions: []string{"coffee"}})

	l := open(t, dir)
	for i := 0; i < 5; i++ {
		src := fmt.Sprintf("module.exports = %d;", i)
		u, err := l.Load(nil, "/x.coffee", []byte(src))
		if err != nil {
			t.Fatalf("Load %d: %v", i, err)
		}
		if got := evaluate(t, u); got != int64(i) {
			t.Errorf("exports = %v, want %d", got, i)
		}
	}
}

func TestDescriptor_SerializesTransforms(t *testing.T) {
	dir := t.TempDir()
	plugintest.Write(t, dir, "echo.wasm", plugintest.Plugin{Extensions: []string{"txt"}})

	l := open(t, dir)
	d := l.plugins[0]

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			in := strings.Repeat(fmt.Sprint(i), 100+i)
			res, err := d.transform(context.Background(), []byte(in))
			if err != nil {
				errs <- err
				return
			}
			if !res.success || res.text != in {
				errs <- fmt.Errorf("call %d: got %q", i, res.text)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestRegistry_PluginLoader(t *testing.T) {
	plugins := t.TempDir()
	plugintest.Write(t, plugins, "ts.wasm", plugintest.Plugin{
		Extensions: []string{"ts"},
		Transform:  plugintest.FailOn('!', "Unexpected token"),
	})
	l := open(t, plugins)

	project := t.TempDir()
	broken := filepath.Join(project, "broken.ts")
	if err := os.WriteFile(broken, []byte("!broken"), 0o644); err != nil {
		t.Fatal(err)
	}
	main := filepath.Join(project, "main.ts")
	if err := os.WriteFile(main, []byte(`module.exports = () => "from plugin";`), 0o644); err != nil {
		t.Fatal(err)
	}

	r, err := module.NewBuilder(project).
		AddLoader(module.ScriptLoader{}).
		AddLoader(l).
		Build()
	if err != nil {
		t.Fatal(err)
	}

	_, err = r.Load(nil, broken)
	var se *errors.Error
	if !stderrors.As(err, &se) || se.Kind != errors.KindTransformFailure {
		t.Fatalf("Load(broken.ts) error = %v, want transform failure", err)
	}
	if !strings.Contains(se.Detail, "Unexpected token") {
		t.Errorf("detail %q", se.Detail)
	}

	e, err := engine.New(r)
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()
	got, err := e.RunMain(context.Background(), "./main", nil)
	if err != nil {
		t.Fatalf("RunMain: %v", err)
	}
	if got != "from plugin" {
		t.Errorf("RunMain = %v", got)
	}
}

func TestOpen_CompilationCache(t *testing.T) {
	dir := t.TempDir()
	plugintest.Write(t, dir, "echo.wasm", plugintest.Plugin{Extensions: []string{"ts"}})
	cache := t.TempDir()

	for i := 0; i < 2; i++ {
		l := open(t, dir, WithCacheDir(cache), WithMemoryLimitPages(16), WithConcurrency(1))
		if len(l.Plugins()) != 1 {
			t.Fatalf("run %d: plugins = %d", i, len(l.Plugins()))
		}
		if err := l.Close(context.Background()); err != nil {
			t.Fatalf("Close: %v", err)
		}
	}
}

func TestClose_Idempotent(t *testing.T) {
	dir := t.TempDir()
	plugintest.Write(t, dir, "echo.wasm", plugintest.Plugin{Extensions: []string{"ts"}})
	l := open(t, dir)

	if err := l.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := l.Close(context.Background()); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestLayout(t *testing.T) {
	info := layoutOf(compilation)
	if info.size != 12 || info.align != 4 || info.offset != 4 {
		t.Errorf("compilation layout = %+v, want size 12 align 4 payload 4", info)
	}
	if got := elemSize(extensionList); got != 8 {
		t.Errorf("list<string> stride = %d, want 8", got)
	}
}

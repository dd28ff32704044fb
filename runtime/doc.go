// Package runtime assembles engines, module registries and plugins into
// ready-to-use VMs and serves them from dedicated worker goroutines.
//
// # Quick Start
//
//	vm, err := runtime.New(ctx, runtime.DefaultOptions())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer vm.Close()
//
//	result, err := vm.RunMain(ctx, "./main.ts", "World")
//
// # Options
//
// Options enumerates what a VM is built from: host modules by name,
// loaders in priority order (script, plugins, transpile), bundled modules
// and the configuration root holding loaders/ and cache/. Builder adds
// components programmatically:
//
//	vm, err := runtime.NewBuilder(opts).
//	    AddHost(&Greeter{}).
//	    AddBundle(module.Bundle{Name: "consts", Source: "exports.n = 1"}).
//	    Build(ctx)
//
// # Host Functions
//
// Any Go value implementing Host becomes a module named by Namespace. Its
// exported methods are exposed with camelCase names (GetUser -> getUser).
// Methods listed by AsyncFunctions run off the engine goroutine and return
// promises; a leading context.Context parameter receives the engine's
// context.
//
// # Thread Safety
//
// A VM belongs to the goroutine that uses it and is NOT safe for
// concurrent use. Worker owns a VM on a goroutine locked to an OS thread
// and accepts requests from any goroutine:
//
//	w, err := runtime.NewWorker(func() (*runtime.VM, error) {
//	    return runtime.New(context.Background(), opts)
//	})
//	defer w.Close()
//
//	v, err := w.Eval(ctx, "1 + 1")
//
// Requests run in submission order. Close finishes the requests accepted
// before it and then stops the worker; later submissions fail with a
// worker closed error.
package runtime

// Package scriptor runs JavaScript and TypeScript programs on goja with a
// pluggable module system and sandboxed WebAssembly transform plugins.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct responsibilities:
//
//	scriptor/
//	├── runtime/         VM assembly (Options, Builder), Go host bindings, Worker
//	├── engine/          goja context, module cache, host job queue, RunMain
//	├── module/          registry: resolution, sources, extension loaders
//	├── plugin/          wasm transform plugins on wazero
//	├── hostmod/         fs, os, http host modules and script globals
//	├── bundle/          embedded script modules (util, tasks, pipe)
//	├── config/          file, environment and default configuration
//	├── errors/          structured error types for debugging
//	└── cmd/scriptor/    command line interface
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
// # Module Resolution
//
// A specifier starting with "." or "/", or ending in an extension some
// loader claims, names a file resolved against the importing module's
// directory. Extensionless paths are probed with each known extension.
// Any other specifier is a bare name served by the first source that has
// it: host modules, then bundled modules.
//
// # Loaders
//
// Files are turned into modules by extension loaders tried in priority
// order; the first to succeed wins. Built in are the CommonJS script
// loader (.js, .cjs) and an esbuild transpiler for TypeScript, JSX and
// ES modules. Plugins in <root>/loaders/*.wasm declare extensions and
// transform source text inside a wazero sandbox.
//
// # Errors
//
// Every failure is an *errors.Error carrying the phase (resolve, load,
// plugin, engine, worker, config) and kind, so callers can match with
// errors.Is against the sentinels in the errors package.
package scriptor

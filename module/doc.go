// Package module resolves specifiers and loads module units for the engine.
//
// A Registry combines two kinds of providers:
//
//	Source           - bare names ("fs", "util"), matched exactly
//	ExtensionLoader  - files, selected by extension
//
// Both lists are fixed when the Builder builds the registry and are consulted
// in registration order. For files the first loader that succeeds wins; when
// every claiming loader fails the last failure is returned.
//
// Provided implementations:
//
//	NativeSet        - host modules implemented in Go
//	BundleSet        - scripts shipped in the binary, compiled once
//	ScriptLoader     - CommonJS .js/.cjs files
//	TranspileLoader  - TypeScript, JSX and ES modules via esbuild
//
// Plugin-provided transforms (package plugin) are extension loaders as well.
//
// The registry does not cache. The engine evaluates a canonical name once per
// engine; a new engine reads and transforms files again.
package module

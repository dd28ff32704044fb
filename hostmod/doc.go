// Package hostmod provides the host modules and globals scripts see.
//
// Host modules are registered by name in a module.NativeSet:
//
//	fs         readFile, writeFile, readDir, stat, exists, mkdir, remove
//	os         stdout.write, stderr.write, args, env, cwd, platform, arch
//	http       get, request
//	node:util  the goja_nodejs util module
//
// Blocking operations run off the engine goroutine through
// engine.Context.Async and return promises.
//
// Globals installs console, process, print, delay, TextEncoder and
// TextDecoder as an engine setup step.
package hostmod

// Package plugin loads source transforms from sandboxed WebAssembly plugins.
//
// Open scans a directory (non-recursively) for *.wasm files, ordered by file
// name. Each plugin gets its own wazero runtime with WASI preview1 imports
// limited to inherited stdio: no preopened directories, no environment and no
// network. One bad plugin fails the whole directory.
//
// # Plugin ABI
//
// A plugin implements this world using the canonical ABI on a core module:
//
//	extensions: func() -> list<string>
//	transform: func(input: list<u8>) -> compilation
//	variant compilation { success(string), failure(string) }
//
// Required exports:
//
//	memory                 linear memory
//	cabi_realloc           (old, old_size, align, new_size) -> ptr
//	extensions             () -> retptr        retptr: (list_ptr, list_len)
//	transform              (ptr, len) -> retptr  retptr: (disc u8, str_ptr, str_len)
//
// Optional exports: cabi_post_extensions and cabi_post_transform (called with
// the retptr once the host has copied the result) and _initialize (run at
// instantiation).
//
// # Dispatch
//
// Loader is a module.ExtensionLoader claiming the union of the declared
// extensions. For a file it tries every plugin in discovery order; the first
// success is
// compiled under the file's path and when all fail the last failure message
// is returned verbatim as a transform failure. Calls into one plugin are
// serialized; distinct plugins are independent.
package plugin

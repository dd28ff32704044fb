// Package engine owns the script runtime and its single execution context.
//
// An Engine wraps one goja.Runtime. The runtime is not safe for concurrent use,
// so every interaction goes through Engine.With, which is exclusive and refuses
// reentrant calls with ErrReentrant. Code that needs the engine on another
// goroutine should use runtime.Worker instead of sharing the Engine.
//
// # Module Units
//
// A Unit is either a compiled script or a native loader:
//
//	Script unit  - CommonJS-wrapped goja.Program (exports, require, module,
//	               __filename, __dirname)
//	Native unit  - Go function populating the module's exports object
//
// Units are produced by a ModuleSource (usually module.Registry). The engine
// evaluates each canonical name at most once and keeps the resulting exports
// in its module cache, so cyclic requires see partially populated exports the
// way CommonJS does.
//
// # Host Job Queue
//
// Host operations run on their own goroutines. When one finishes, it enqueues
// a Job; only the owning goroutine executes jobs:
//
//	Enqueue            - any goroutine
//	IsJobPending       - owner
//	ExecutePendingJob  - owner, one job per call
//
// Context.Async packages this pattern: it returns a promise and settles it from
// a job once the host work completes.
//
// # Drain Loop
//
// Await interleaves waiting for a promise with pumping the host job queue: each
// iteration runs at most one job and then yields with runtime.Gosched. When no
// job is queued and no host operation is in flight, a still pending promise can
// never settle and Await fails with an execution failure instead of hanging.
//
// RunMain builds on Await:
//
//  1. Resolve, load and evaluate the entry inside one With call, then call
//     its default (or main) export
//  2. Await the returned promise while pumping jobs
//  3. Drain jobs left behind by the settled promise
//  4. Wait for Idle: empty queue and no host operation in flight
package engine

// Package errors provides structured error types for scriptor.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type carries the context needed to report a failure without access to
// engine state: the importing module (Base), the specifier as written, the file path,
// a diagnostic and the cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseResolve, errors.KindNotFound).
//		Base("/project/main.js").
//		Specifier("./util.js").
//		Detail("module not found").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.NotFound("/project/main.js", "./util.js")
//	err := errors.TransformFailure("/project/app.ts", "unexpected token")
//
// All errors implement the standard error interface and support errors.Is/As.
// Matching with errors.Is compares Phase and Kind only, so the exported sentinels
// (ErrNotFound, ErrTransformFailure, ...) can be used as targets.
package errors

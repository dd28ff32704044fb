package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in the module pipeline the error occurred
type Phase string

const (
	PhaseResolve Phase = "resolve" // specifier to canonical name
	PhaseLoad    Phase = "load"    // canonical name to module unit
	PhasePlugin  Phase = "plugin"  // plugin discovery and instantiation
	PhaseEngine  Phase = "engine"  // script execution and job draining
	PhaseWorker  Phase = "worker"  // worker mailbox
	PhaseConfig  Phase = "config"  // configuration loading
)

// Kind categorizes the error
type Kind string

const (
	KindNotFound             Kind = "not_found"
	KindInvalidPath          Kind = "invalid_path"
	KindExtensionUnsupported Kind = "extension_unsupported"
	KindTransformFailure     Kind = "transform_failure"
	KindIO                   Kind = "io"
	KindDecodeFailure        Kind = "decode_failure"
	KindCompileFailure       Kind = "compile_failure"
	KindPluginInit           Kind = "plugin_init"
	KindException            Kind = "exception"
	KindExecutionFailure     Kind = "execution_failure"
	KindReentrant            Kind = "reentrant"
	KindClosed               Kind = "closed"
	KindInvalidInput         Kind = "invalid_input"
)

// Error is the structured error type used throughout scriptor
type Error struct {
	Cause     error
	Phase     Phase
	Kind      Kind
	Base      string
	Specifier string
	Path      string
	Detail    string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	switch {
	case e.Specifier != "" && e.Base != "":
		fmt.Fprintf(&b, " %q from %q", e.Specifier, e.Base)
	case e.Specifier != "":
		fmt.Fprintf(&b, " %q", e.Specifier)
	}

	if e.Path != "" {
		b.WriteString(" at ")
		b.WriteString(e.Path)
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Base sets the importing module's canonical name
func (b *Builder) Base(base string) *Builder {
	b.err.Base = base
	return b
}

// Specifier sets the specifier as written by the importer
func (b *Builder) Specifier(s string) *Builder {
	b.err.Specifier = s
	return b
}

// Path sets the file path involved
func (b *Builder) Path(p string) *Builder {
	b.err.Path = p
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message verbatim
func (b *Builder) Detail(msg string) *Builder {
	b.err.Detail = msg
	return b
}

// Detailf sets a formatted detail message
func (b *Builder) Detailf(format string, args ...any) *Builder {
	b.err.Detail = fmt.Sprintf(format, args...)
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Sentinels for errors.Is checks. Only Phase and Kind take part in matching.
var (
	ErrNotFound             = &Error{Phase: PhaseResolve, Kind: KindNotFound}
	ErrInvalidPath          = &Error{Phase: PhaseResolve, Kind: KindInvalidPath}
	ErrExtensionUnsupported = &Error{Phase: PhaseLoad, Kind: KindExtensionUnsupported}
	ErrTransformFailure     = &Error{Phase: PhaseLoad, Kind: KindTransformFailure}
	ErrIO                   = &Error{Phase: PhaseLoad, Kind: KindIO}
	ErrDecodeFailure        = &Error{Phase: PhaseLoad, Kind: KindDecodeFailure}
	ErrCompileFailure       = &Error{Phase: PhaseLoad, Kind: KindCompileFailure}
	ErrPluginInit           = &Error{Phase: PhasePlugin, Kind: KindPluginInit}
	ErrException            = &Error{Phase: PhaseEngine, Kind: KindException}
	ErrExecutionFailure     = &Error{Phase: PhaseEngine, Kind: KindExecutionFailure}
	ErrReentrant            = &Error{Phase: PhaseEngine, Kind: KindReentrant}
	ErrWorkerClosed         = &Error{Phase: PhaseWorker, Kind: KindClosed}
)

// Resolve errors

// NotFound creates a resolution error for a specifier no source recognizes
func NotFound(base, specifier string) *Error {
	return &Error{
		Phase:     PhaseResolve,
		Kind:      KindNotFound,
		Base:      base,
		Specifier: specifier,
		Detail:    "module not found",
	}
}

// InvalidPath creates an error for a specifier that cannot be represented as a path
func InvalidPath(phase Phase, specifier, detail string) *Error {
	return &Error{
		Phase:     phase,
		Kind:      KindInvalidPath,
		Specifier: specifier,
		Detail:    detail,
	}
}

// Load errors

// LoadNotFound creates a load error for a bare name no source owns
func LoadNotFound(name string) *Error {
	return &Error{
		Phase:     PhaseLoad,
		Kind:      KindNotFound,
		Specifier: name,
		Detail:    "no source provides this module",
	}
}

// ExtensionUnsupported creates an error for a file no loader claims
func ExtensionUnsupported(path string) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindExtensionUnsupported,
		Path:   path,
		Detail: "no loader for file type",
	}
}

// TransformFailure creates an error carrying a loader diagnostic verbatim
func TransformFailure(path, diagnostic string) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindTransformFailure,
		Path:   path,
		Detail: diagnostic,
	}
}

// IO creates a file access error
func IO(path string, cause error) *Error {
	return &Error{
		Phase: PhaseLoad,
		Kind:  KindIO,
		Path:  path,
		Cause: cause,
	}
}

// DecodeFailure creates an error for source that is not valid text
func DecodeFailure(path string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindDecodeFailure,
		Path:   path,
		Detail: "source is not valid UTF-8",
		Cause:  cause,
	}
}

// CompileFailure creates an error for source the engine rejects
func CompileFailure(path string, cause error) *Error {
	return &Error{
		Phase: PhaseLoad,
		Kind:  KindCompileFailure,
		Path:  path,
		Cause: cause,
	}
}

// Plugin errors

// PluginInit creates a plugin discovery/instantiation error
func PluginInit(path, detail string, cause error) *Error {
	return &Error{
		Phase:  PhasePlugin,
		Kind:   KindPluginInit,
		Path:   path,
		Detail: detail,
		Cause:  cause,
	}
}

// Engine errors

// Exception wraps a value thrown by a script
func Exception(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseEngine,
		Kind:   KindException,
		Detail: detail,
		Cause:  cause,
	}
}

// ExecutionFailure creates an error for failures of the drain loop itself
func ExecutionFailure(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseEngine,
		Kind:   KindExecutionFailure,
		Detail: detail,
		Cause:  cause,
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

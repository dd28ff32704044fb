package module

import (
	"bytes"
	"unicode/utf8"

	"github.com/wippyai/scriptor/engine"
	"github.com/wippyai/scriptor/errors"
)

// ScriptLoader compiles CommonJS scripts as they are.
type ScriptLoader struct{}

// Extensions implements ExtensionLoader.
func (ScriptLoader) Extensions() []string {
	return []string{"js", "cjs"}
}

// Load implements ExtensionLoader.
func (ScriptLoader) Load(_ *engine.Context, path string, source []byte) (*engine.Unit, error) {
	if !utf8.Valid(source) {
		return nil, errors.DecodeFailure(path, nil)
	}
	return engine.Compile(path, string(stripShebang(source)))
}

// stripShebang blanks a leading #! line, keeping line numbers intact.
func stripShebang(source []byte) []byte {
	if !bytes.HasPrefix(source, []byte("#!")) {
		return source
	}
	end := bytes.IndexByte(source, '\n')
	if end < 0 {
		return nil
	}
	return source[end:]
}

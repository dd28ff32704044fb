package module

import (
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/wippyai/scriptor/engine"
	"github.com/wippyai/scriptor/errors"
)

var transpileLoaders = map[string]api.Loader{
	"ts":  api.LoaderTS,
	"mts": api.LoaderTS,
	"cts": api.LoaderTS,
	"tsx": api.LoaderTSX,
	"jsx": api.LoaderJSX,
	"mjs": api.LoaderJS,
}

// TranspileLoader converts TypeScript and ES modules to CommonJS with esbuild.
type TranspileLoader struct {
	// Target defaults to ES2017.
	Target api.Target
}

// Extensions implements ExtensionLoader.
func (TranspileLoader) Extensions() []string {
	return []string{"ts", "mts", "cts", "tsx", "jsx", "mjs"}
}

// Load implements ExtensionLoader.
func (t TranspileLoader) Load(_ *engine.Context, path string, source []byte) (*engine.Unit, error) {
	if !utf8.Valid(source) {
		return nil, errors.TransformFailure(path, "source is not valid UTF-8")
	}

	code, err := t.Transform(path, string(source))
	if err != nil {
		return nil, err
	}
	return engine.Compile(path, code)
}

// Transform returns the CommonJS form of source. Diagnostics are reported as
// a transform failure carrying esbuild's formatted messages.
func (t TranspileLoader) Transform(path, source string) (string, error) {
	loader, ok := transpileLoaders[strings.TrimPrefix(filepath.Ext(path), ".")]
	if !ok {
		loader = api.LoaderTS
	}
	target := t.Target
	if target == api.DefaultTarget {
		target = api.ES2017
	}

	result := api.Transform(source, api.TransformOptions{
		Loader:     loader,
		Format:     api.FormatCommonJS,
		Target:     target,
		Sourcefile: path,
	})
	if len(result.Errors) > 0 {
		msgs := api.FormatMessages(result.Errors, api.FormatMessagesOptions{
			Kind: api.ErrorMessage,
		})
		return "", errors.TransformFailure(path, strings.TrimSpace(strings.Join(msgs, "\n")))
	}

	for _, w := range result.Warnings {
		Logger().Sugar().Debugf("transpile %s: %s", path, w.Text)
	}
	return string(result.Code), nil
}

package plugin

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero/api"
)

// Exports a plugin module must provide.
const (
	exportMemory     = "memory"
	exportRealloc    = "cabi_realloc"
	exportExtensions = "extensions"
	exportTransform  = "transform"

	postPrefix = "cabi_post_"
)

// guest wraps the exports of one instantiated plugin.
type guest struct {
	mem            api.Memory
	realloc        api.Function
	extensions     api.Function
	transform      api.Function
	postExtensions api.Function
	postTransform  api.Function
}

func bindGuest(mod api.Module) (*guest, error) {
	g := &guest{mem: mod.ExportedMemory(exportMemory)}
	if g.mem == nil {
		g.mem = mod.Memory()
	}
	if g.mem == nil {
		return nil, fmt.Errorf("missing export %q", exportMemory)
	}

	required := []struct {
		fn   *api.Function
		name string
	}{
		{&g.realloc, exportRealloc},
		{&g.extensions, exportExtensions},
		{&g.transform, exportTransform},
	}
	for _, r := range required {
		*r.fn = mod.ExportedFunction(r.name)
		if *r.fn == nil {
			return nil, fmt.Errorf("missing export %q", r.name)
		}
	}

	g.postExtensions = mod.ExportedFunction(postPrefix + exportExtensions)
	g.postTransform = mod.ExportedFunction(postPrefix + exportTransform)
	return g, nil
}

// alloc reserves size bytes through cabi_realloc(0, 0, align, size).
func (g *guest) alloc(ctx context.Context, align, size uint32) (uint32, error) {
	res, err := g.realloc.Call(ctx, 0, 0, uint64(align), uint64(size))
	if err != nil {
		return 0, fmt.Errorf("cabi_realloc: %w", err)
	}
	if len(res) != 1 {
		return 0, fmt.Errorf("cabi_realloc returned %d values", len(res))
	}
	return uint32(res[0]), nil
}

func (g *guest) readU32(offset uint32) (uint32, error) {
	v, ok := g.mem.ReadUint32Le(offset)
	if !ok {
		return 0, fmt.Errorf("memory read out of bounds: offset=%d", offset)
	}
	return v, nil
}

func (g *guest) readString(ptr, length uint32) (string, error) {
	data, ok := g.mem.Read(ptr, length)
	if !ok {
		return "", fmt.Errorf("memory read out of bounds: offset=%d, length=%d", ptr, length)
	}
	return string(data), nil
}

// readStringAt reads a (ptr, len) string pair stored at offset.
func (g *guest) readStringAt(offset uint32) (string, error) {
	ptr, err := g.readU32(offset)
	if err != nil {
		return "", err
	}
	length, err := g.readU32(offset + 4)
	if err != nil {
		return "", err
	}
	return g.readString(ptr, length)
}

func (g *guest) post(ctx context.Context, fn api.Function, retptr uint32) {
	if fn == nil {
		return
	}
	if _, err := fn.Call(ctx, uint64(retptr)); err != nil {
		Logger().Sugar().Debugf("post-return failed: %v", err)
	}
}

// callExtensions invokes extensions() and lifts the list<string> result.
func (g *guest) callExtensions(ctx context.Context) ([]string, error) {
	res, err := g.extensions.Call(ctx)
	if err != nil {
		return nil, fmt.Errorf("extensions: %w", err)
	}
	if len(res) != 1 {
		return nil, fmt.Errorf("extensions returned %d values", len(res))
	}
	retptr := uint32(res[0])
	defer g.post(ctx, g.postExtensions, retptr)

	listPtr, err := g.readU32(retptr)
	if err != nil {
		return nil, err
	}
	listLen, err := g.readU32(retptr + 4)
	if err != nil {
		return nil, err
	}

	stride := elemSize(extensionList)
	out := make([]string, 0, listLen)
	for i := uint32(0); i < listLen; i++ {
		s, err := g.readStringAt(listPtr + i*stride)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// result is the lifted compilation variant.
type result struct {
	text    string
	success bool
}

// callTransform lowers input as list<u8>, invokes transform and lifts the
// compilation variant.
func (g *guest) callTransform(ctx context.Context, input []byte) (result, error) {
	ptr, err := g.alloc(ctx, 1, uint32(len(input)))
	if err != nil {
		return result{}, err
	}
	if !g.mem.Write(ptr, input) {
		return result{}, fmt.Errorf("memory write out of bounds: offset=%d, length=%d", ptr, len(input))
	}

	res, err := g.transform.Call(ctx, uint64(ptr), uint64(len(input)))
	if err != nil {
		return result{}, fmt.Errorf("transform: %w", err)
	}
	if len(res) != 1 {
		return result{}, fmt.Errorf("transform returned %d values", len(res))
	}
	retptr := uint32(res[0])
	defer g.post(ctx, g.postTransform, retptr)

	disc, ok := g.mem.ReadByte(retptr)
	if !ok {
		return result{}, fmt.Errorf("memory read out of bounds: offset=%d", retptr)
	}
	text, err := g.readStringAt(retptr + layoutOf(compilation).offset)
	if err != nil {
		return result{}, err
	}

	switch disc {
	case caseSuccess:
		return result{success: true, text: text}, nil
	case caseFailure:
		return result{text: text}, nil
	}
	return result{}, fmt.Errorf("invalid compilation discriminant %d", disc)
}

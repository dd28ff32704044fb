package plugin

import "go.bytecodealliance.org/wit"

// Types of the plugin world:
//
//	extensions: func() -> list<string>
//	transform: func(input: list<u8>) -> compilation
//	variant compilation { success(string), failure(string) }
var (
	extensionList = &wit.TypeDef{Kind: &wit.List{Type: wit.String{}}}

	compilation = &wit.TypeDef{Kind: &wit.Variant{Cases: []wit.Case{
		{Name: "success", Type: wit.String{}},
		{Name: "failure", Type: wit.String{}},
	}}}
)

const (
	caseSuccess = 0
	caseFailure = 1
)

// layoutInfo is the canonical ABI size and alignment of a type in linear memory.
type layoutInfo struct {
	size   uint32
	align  uint32
	offset uint32 // payload offset for variants
}

func layoutOf(t wit.Type) layoutInfo {
	switch typ := t.(type) {
	case wit.U8, wit.S8, wit.Bool:
		return layoutInfo{size: 1, align: 1}
	case wit.U16, wit.S16:
		return layoutInfo{size: 2, align: 2}
	case wit.U32, wit.S32, wit.F32, wit.Char:
		return layoutInfo{size: 4, align: 4}
	case wit.U64, wit.S64, wit.F64:
		return layoutInfo{size: 8, align: 8}
	case wit.String:
		return layoutInfo{size: 8, align: 4} // [ptr: u32, len: u32]
	case *wit.TypeDef:
		switch kind := typ.Kind.(type) {
		case *wit.List:
			return layoutInfo{size: 8, align: 4}
		case *wit.Variant:
			return variantLayout(kind)
		case wit.Type:
			return layoutOf(kind)
		}
	}
	return layoutInfo{size: 0, align: 1}
}

func variantLayout(v *wit.Variant) layoutInfo {
	if len(v.Cases) == 0 {
		return layoutInfo{size: 0, align: 1}
	}

	disc := discriminantSize(len(v.Cases))
	maxAlign := disc
	maxSize := uint32(0)
	for _, c := range v.Cases {
		if c.Type == nil {
			continue
		}
		l := layoutOf(c.Type)
		if l.align > maxAlign {
			maxAlign = l.align
		}
		if l.size > maxSize {
			maxSize = l.size
		}
	}

	payload := alignTo(disc, maxAlign)
	return layoutInfo{
		size:   alignTo(payload+maxSize, maxAlign),
		align:  maxAlign,
		offset: payload,
	}
}

// elemSize returns the stride of list elements.
func elemSize(list *wit.TypeDef) uint32 {
	l, ok := list.Kind.(*wit.List)
	if !ok {
		return 0
	}
	info := layoutOf(l.Type)
	return alignTo(info.size, info.align)
}

func discriminantSize(cases int) uint32 {
	switch {
	case cases <= 256:
		return 1
	case cases <= 65536:
		return 2
	}
	return 4
}

func alignTo(offset, align uint32) uint32 {
	if align == 0 {
		return offset
	}
	return (offset + align - 1) &^ (align - 1)
}

// Package plugintest builds transform plugin binaries for tests.
//
// The generated core modules implement the plugin ABI directly (memory,
// cabi_realloc, extensions, transform, post-return functions and
// _initialize) so tests need no external toolchain.
package plugintest

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

// Static memory layout of generated plugins.
const (
	extRetArea    = 16
	extList       = 32
	extStrings    = 256
	transformArea = 1024
	messageArea   = 2048
	heapBase      = 4096
	memoryPages   = 2

	maxExtensions  = (extStrings - extList) / 8
	maxExtBytes    = transformArea - extStrings
	maxMessageSize = heapBase - messageArea
)

type transformKind int

const (
	kindEcho transformKind = iota
	kindConstant
	kindFail
	kindFailOn
)

// Transform selects what a generated plugin's transform export does.
type Transform struct {
	text   string
	kind   transformKind
	marker byte
}

// Echo returns the input unchanged as success.
func Echo() Transform {
	return Transform{kind: kindEcho}
}

// Constant returns text as success regardless of input.
func Constant(text string) Transform {
	return Transform{kind: kindConstant, text: text}
}

// Fail returns msg as failure regardless of input.
func Fail(msg string) Transform {
	return Transform{kind: kindFail, text: msg}
}

// FailOn returns msg as failure when the input starts with marker and
// echoes the input otherwise.
func FailOn(marker byte, msg string) Transform {
	return Transform{kind: kindFailOn, marker: marker, text: msg}
}

// Plugin describes a generated plugin.
type Plugin struct {
	Transform  Transform
	Extensions []string
}

// Binary encodes the plugin as a core WebAssembly module.
func (p Plugin) Binary() []byte {
	if len(p.Extensions) > maxExtensions {
		panic(fmt.Sprintf("plugintest: at most %d extensions", maxExtensions))
	}
	if len(p.Transform.text) > maxMessageSize {
		panic(fmt.Sprintf("plugintest: message longer than %d bytes", maxMessageSize))
	}

	var list, strs bytes.Buffer
	for _, ext := range p.Extensions {
		putU32LE(&list, uint32(extStrings+strs.Len()))
		putU32LE(&list, uint32(len(ext)))
		strs.WriteString(ext)
	}
	if strs.Len() > maxExtBytes {
		panic("plugintest: extension names too long")
	}

	var retArea bytes.Buffer
	putU32LE(&retArea, extList)
	putU32LE(&retArea, uint32(len(p.Extensions)))

	m := module{
		types: [][2][]byte{
			{{i32, i32, i32, i32}, {i32}}, // cabi_realloc
			{{}, {i32}},                   // extensions
			{{i32, i32}, {i32}},           // transform
			{{i32}, {}},                   // cabi_post_*
			{{}, {}},                      // _initialize
		},
		funcs: []uint32{0, 1, 2, 3, 3, 4},
		code: [][]byte{
			reallocBody(),
			constBody(extRetArea),
			p.Transform.body(),
			{opEnd},
			{opEnd},
			initBody(),
		},
		exports: []export{
			{"memory", kindMemory, 0},
			{"cabi_realloc", kindFunc, 0},
			{"extensions", kindFunc, 1},
			{"transform", kindFunc, 2},
			{"cabi_post_extensions", kindFunc, 3},
			{"cabi_post_transform", kindFunc, 4},
			{"_initialize", kindFunc, 5},
		},
		data: []segment{
			{extRetArea, retArea.Bytes()},
			{extList, list.Bytes()},
			{extStrings, strs.Bytes()},
			{messageArea, []byte(p.Transform.text)},
		},
	}
	return m.encode()
}

// Write stores the plugin as dir/name, creating dir if needed, and returns
// the path.
func Write(tb testing.TB, dir, name string, p Plugin) string {
	tb.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		tb.Fatalf("create plugin dir: %v", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, p.Binary(), 0o644); err != nil {
		tb.Fatalf("write plugin: %v", err)
	}
	return path
}

// Function bodies

// reallocBody bumps an 8-byte aligned heap pointer held in global 0.
func reallocBody() []byte {
	var b bytes.Buffer
	b.WriteByte(opGlobalGet)
	putU32(&b, 0)
	b.WriteByte(opGlobalGet)
	putU32(&b, 0)
	b.WriteByte(opLocalGet)
	putU32(&b, 3)
	b.WriteByte(opI32Add)
	i32Const(&b, 7)
	b.WriteByte(opI32Add)
	i32Const(&b, -8)
	b.WriteByte(opI32And)
	b.WriteByte(opGlobalSet)
	putU32(&b, 0)
	b.WriteByte(opEnd)
	return b.Bytes()
}

func initBody() []byte {
	var b bytes.Buffer
	i32Const(&b, heapBase)
	b.WriteByte(opGlobalSet)
	putU32(&b, 0)
	b.WriteByte(opEnd)
	return b.Bytes()
}

func constBody(v int32) []byte {
	var b bytes.Buffer
	i32Const(&b, v)
	b.WriteByte(opEnd)
	return b.Bytes()
}

func (t Transform) body() []byte {
	var b bytes.Buffer
	switch t.kind {
	case kindEcho:
		storeEcho(&b)
	case kindConstant:
		storeStatic(&b, 0, len(t.text))
	case kindFail:
		storeStatic(&b, 1, len(t.text))
	case kindFailOn:
		// if len != 0 && input[0] == marker { fail }
		b.WriteByte(opLocalGet)
		putU32(&b, 1)
		b.WriteByte(opIf)
		b.WriteByte(blockEmpty)
		b.WriteByte(opLocalGet)
		putU32(&b, 0)
		b.WriteByte(opI32Load8U)
		memarg(&b, 0, 0)
		i32Const(&b, int32(t.marker))
		b.WriteByte(opI32Eq)
		b.WriteByte(opIf)
		b.WriteByte(blockEmpty)
		storeStatic(&b, 1, len(t.text))
		i32Const(&b, transformArea)
		b.WriteByte(opReturn)
		b.WriteByte(opEnd)
		b.WriteByte(opEnd)
		storeEcho(&b)
	}
	i32Const(&b, transformArea)
	b.WriteByte(opEnd)
	return b.Bytes()
}

// storeEcho writes success(input) to the transform return area.
func storeEcho(b *bytes.Buffer) {
	storeDisc(b, 0)
	i32Const(b, transformArea)
	b.WriteByte(opLocalGet)
	putU32(b, 0)
	b.WriteByte(opI32Store)
	memarg(b, 2, 4)
	i32Const(b, transformArea)
	b.WriteByte(opLocalGet)
	putU32(b, 1)
	b.WriteByte(opI32Store)
	memarg(b, 2, 8)
}

// storeStatic writes case disc with the message segment as payload.
func storeStatic(b *bytes.Buffer, disc int32, length int) {
	storeDisc(b, disc)
	i32Const(b, transformArea)
	i32Const(b, messageArea)
	b.WriteByte(opI32Store)
	memarg(b, 2, 4)
	i32Const(b, transformArea)
	i32Const(b, int32(length))
	b.WriteByte(opI32Store)
	memarg(b, 2, 8)
}

func storeDisc(b *bytes.Buffer, disc int32) {
	i32Const(b, transformArea)
	i32Const(b, disc)
	b.WriteByte(opI32Store8)
	memarg(b, 0, 0)
}

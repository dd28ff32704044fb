package plugintest

import "bytes"

const (
	magic   = 0x6d736100 // \0asm
	version = 1

	sectionType     = 1
	sectionFunction = 3
	sectionMemory   = 5
	sectionGlobal   = 6
	sectionExport   = 7
	sectionCode     = 10
	sectionData     = 11

	kindFunc   = 0x00
	kindMemory = 0x02

	funcTypeByte = 0x60
	i32          = 0x7f
	blockEmpty   = 0x40

	opIf        = 0x04
	opEnd       = 0x0b
	opReturn    = 0x0f
	opLocalGet  = 0x20
	opGlobalGet = 0x23
	opGlobalSet = 0x24
	opI32Load8U = 0x2d
	opI32Store  = 0x36
	opI32Store8 = 0x3a
	opI32Const  = 0x41
	opI32Eq     = 0x46
	opI32Add    = 0x6a
	opI32And    = 0x71
)

type export struct {
	name  string
	kind  byte
	index uint32
}

type segment struct {
	offset int32
	data   []byte
}

// module is the subset of the binary format generated plugins need: one
// memory, one mutable i32 global and no imports.
type module struct {
	types   [][2][]byte
	funcs   []uint32
	code    [][]byte
	exports []export
	data    []segment
}

func (m *module) encode() []byte {
	var w bytes.Buffer
	putU32LE(&w, magic)
	putU32LE(&w, version)

	var sec bytes.Buffer
	putU32(&sec, uint32(len(m.types)))
	for _, ft := range m.types {
		sec.WriteByte(funcTypeByte)
		putU32(&sec, uint32(len(ft[0])))
		sec.Write(ft[0])
		putU32(&sec, uint32(len(ft[1])))
		sec.Write(ft[1])
	}
	writeSection(&w, sectionType, sec.Bytes())

	sec.Reset()
	putU32(&sec, uint32(len(m.funcs)))
	for _, idx := range m.funcs {
		putU32(&sec, idx)
	}
	writeSection(&w, sectionFunction, sec.Bytes())

	sec.Reset()
	putU32(&sec, 1)
	sec.WriteByte(0x00) // limits: min only
	putU32(&sec, memoryPages)
	writeSection(&w, sectionMemory, sec.Bytes())

	sec.Reset()
	putU32(&sec, 1)
	sec.WriteByte(i32)
	sec.WriteByte(0x01) // mutable
	i32Const(&sec, 0)
	sec.WriteByte(opEnd)
	writeSection(&w, sectionGlobal, sec.Bytes())

	sec.Reset()
	putU32(&sec, uint32(len(m.exports)))
	for _, e := range m.exports {
		putName(&sec, e.name)
		sec.WriteByte(e.kind)
		putU32(&sec, e.index)
	}
	writeSection(&w, sectionExport, sec.Bytes())

	sec.Reset()
	putU32(&sec, uint32(len(m.code)))
	for _, body := range m.code {
		putU32(&sec, uint32(len(body)+1))
		sec.WriteByte(0x00) // no locals
		sec.Write(body)
	}
	writeSection(&w, sectionCode, sec.Bytes())

	sec.Reset()
	putU32(&sec, uint32(len(m.data)))
	for _, d := range m.data {
		sec.WriteByte(0x00) // active, memory 0
		i32Const(&sec, d.offset)
		sec.WriteByte(opEnd)
		putU32(&sec, uint32(len(d.data)))
		sec.Write(d.data)
	}
	writeSection(&w, sectionData, sec.Bytes())

	return w.Bytes()
}

func writeSection(w *bytes.Buffer, id byte, data []byte) {
	w.WriteByte(id)
	putU32(w, uint32(len(data)))
	w.Write(data)
}

func putName(w *bytes.Buffer, s string) {
	putU32(w, uint32(len(s)))
	w.WriteString(s)
}

func i32Const(w *bytes.Buffer, v int32) {
	w.WriteByte(opI32Const)
	putS32(w, v)
}

func memarg(w *bytes.Buffer, align, offset uint32) {
	putU32(w, align)
	putU32(w, offset)
}

// putU32LE writes a fixed-width little-endian value.
func putU32LE(w *bytes.Buffer, v uint32) {
	w.Write([]byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)})
}

// putU32 writes an unsigned LEB128 value.
func putU32(w *bytes.Buffer, v uint32) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		w.WriteByte(b)
		if v == 0 {
			break
		}
	}
}

// putS32 writes a signed LEB128 value.
func putS32(w *bytes.Buffer, v int32) {
	more := true
	for more {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			more = false
		} else {
			b |= 0x80
		}
		w.WriteByte(b)
	}
}

package wasm

// Writer builds an instruction sequence.
type Writer struct {
	buf []byte
}

// Bytes returns the instructions written so far.
func (w *Writer) Bytes() []byte { return w.buf }

// Len returns the number of bytes written.
func (w *Writer) Len() int { return len(w.buf) }

// Op appends raw opcode bytes.
func (w *Writer) Op(ops ...byte) {
	w.buf = append(w.buf, ops...)
}

// U32 appends an unsigned LEB128 immediate.
func (w *Writer) U32(v uint32) {
	w.buf = appendU32(w.buf, v)
}

func (w *Writer) I32Const(v int32) {
	w.buf = AppendSLEB128(append(w.buf, OpI32Const), int64(v))
}

func (w *Writer) I64Const(v int64) {
	w.buf = AppendSLEB128(append(w.buf, OpI64Const), v)
}

func (w *Writer) F32Const(v float32) {
	w.buf = AppendF32(append(w.buf, OpF32Const), v)
}

func (w *Writer) F64Const(v float64) {
	w.buf = AppendF64(append(w.buf, OpF64Const), v)
}

func (w *Writer) LocalGet(i uint32) { w.Op(OpLocalGet); w.U32(i) }
func (w *Writer) LocalSet(i uint32) { w.Op(OpLocalSet); w.U32(i) }
func (w *Writer) LocalTee(i uint32) { w.Op(OpLocalTee); w.U32(i) }

func (w *Writer) GlobalGet(i uint32) { w.Op(OpGlobalGet); w.U32(i) }
func (w *Writer) GlobalSet(i uint32) { w.Op(OpGlobalSet); w.U32(i) }

func (w *Writer) Call(f uint32) { w.Op(OpCall); w.U32(f) }

func (w *Writer) Block(bt BlockType) { w.blockOp(OpBlock, bt) }
func (w *Writer) Loop(bt BlockType)  { w.blockOp(OpLoop, bt) }
func (w *Writer) If(bt BlockType)    { w.blockOp(OpIf, bt) }

func (w *Writer) blockOp(op byte, bt BlockType) {
	w.buf = AppendSLEB128(append(w.buf, op), int64(bt))
}

func (w *Writer) Else() { w.Op(OpElse) }
func (w *Writer) End()  { w.Op(OpEnd) }

func (w *Writer) Br(depth uint32)   { w.Op(OpBr); w.U32(depth) }
func (w *Writer) BrIf(depth uint32) { w.Op(OpBrIf); w.U32(depth) }

// BrTable branches to labels[i] for operand i, or to def when out of range.
func (w *Writer) BrTable(labels []uint32, def uint32) {
	w.Op(OpBrTable)
	w.U32(uint32(len(labels)))
	for _, l := range labels {
		w.U32(l)
	}
	w.U32(def)
}

func (w *Writer) RefNull(t ValType) { w.Op(OpRefNull, byte(t)) }

// TruncSat appends a saturating truncation with the given sub-opcode.
func (w *Writer) TruncSat(sub uint32) {
	w.Op(OpPrefixFC)
	w.U32(sub)
}

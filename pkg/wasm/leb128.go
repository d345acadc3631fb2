package wasm

import (
	"encoding/binary"
	"math"
)

// AppendULEB128 appends v in unsigned LEB128.
func AppendULEB128(b []byte, v uint64) []byte {
	return binary.AppendUvarint(b, v)
}

// AppendSLEB128 appends v in signed LEB128. 32-bit immediates use the same
// encoding after sign extension.
func AppendSLEB128(b []byte, v int64) []byte {
	for {
		c := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && c&0x40 == 0) || (v == -1 && c&0x40 != 0) {
			return append(b, c)
		}
		b = append(b, c|0x80)
	}
}

// AppendF32 appends the little-endian IEEE-754 bits of v.
func AppendF32(b []byte, v float32) []byte {
	return binary.LittleEndian.AppendUint32(b, math.Float32bits(v))
}

// AppendF64 appends the little-endian IEEE-754 bits of v.
func AppendF64(b []byte, v float64) []byte {
	return binary.LittleEndian.AppendUint64(b, math.Float64bits(v))
}

// AppendName appends a length-prefixed UTF-8 name.
func AppendName(b []byte, s string) []byte {
	b = AppendULEB128(b, uint64(len(s)))
	return append(b, s...)
}

func appendU32(b []byte, v uint32) []byte {
	return AppendULEB128(b, uint64(v))
}

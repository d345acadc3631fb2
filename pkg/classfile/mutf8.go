package classfile

import (
	"fmt"
	"unicode/utf16"
	"unicode/utf8"
)

// decodeModifiedUTF8 decodes the JVM's modified UTF-8: NUL is encoded as
// C0 80 and supplementary characters as surrogate pairs of 3-byte units.
func decodeModifiedUTF8(b []byte) (string, error) {
	ascii := true
	for _, c := range b {
		if c == 0 || c >= 0x80 {
			ascii = false
			break
		}
	}
	if ascii {
		return string(b), nil
	}

	units := make([]uint16, 0, len(b))
	for i := 0; i < len(b); {
		c := b[i]
		switch {
		case c < 0x80:
			units = append(units, uint16(c))
			i++
		case c&0xE0 == 0xC0:
			if i+1 >= len(b) || b[i+1]&0xC0 != 0x80 {
				return "", fmt.Errorf("malformed modified UTF-8 at byte %d", i)
			}
			units = append(units, uint16(c&0x1F)<<6|uint16(b[i+1]&0x3F))
			i += 2
		case c&0xF0 == 0xE0:
			if i+2 >= len(b) || b[i+1]&0xC0 != 0x80 || b[i+2]&0xC0 != 0x80 {
				return "", fmt.Errorf("malformed modified UTF-8 at byte %d", i)
			}
			units = append(units, uint16(c&0x0F)<<12|uint16(b[i+1]&0x3F)<<6|uint16(b[i+2]&0x3F))
			i += 3
		default:
			return "", fmt.Errorf("malformed modified UTF-8 at byte %d", i)
		}
	}
	return string(appendUnits(make([]byte, 0, len(b)), units)), nil
}

// appendUnits converts UTF-16 units to UTF-8. A surrogate without its
// partner keeps its 3-byte form, so that it re-encodes to the same bytes.
func appendUnits(out []byte, units []uint16) []byte {
	for i := 0; i < len(units); i++ {
		r := rune(units[i])
		if !utf16.IsSurrogate(r) {
			out = utf8.AppendRune(out, r)
			continue
		}
		if i+1 < len(units) {
			if p := utf16.DecodeRune(r, rune(units[i+1])); p != utf8.RuneError {
				out = utf8.AppendRune(out, p)
				i++
				continue
			}
		}
		out = append(out, 0xED, 0x80|byte(r>>6&0x3F), 0x80|byte(r&0x3F))
	}
	return out
}

// loneSurrogate reports whether s starts with the 3-byte form of a
// surrogate, as kept by appendUnits.
func loneSurrogate(s string) bool {
	return len(s) >= 3 && s[0] == 0xED && s[1] >= 0xA0 && s[1] <= 0xBF && s[2]&0xC0 == 0x80
}

func encodeModifiedUTF8(s string) []byte {
	out := make([]byte, 0, len(s))
	unit := func(u uint16) {
		switch {
		case u != 0 && u < 0x80:
			out = append(out, byte(u))
		case u < 0x800:
			out = append(out, 0xC0|byte(u>>6), 0x80|byte(u&0x3F))
		default:
			out = append(out, 0xE0|byte(u>>12), 0x80|byte(u>>6&0x3F), 0x80|byte(u&0x3F))
		}
	}
	for i := 0; i < len(s); {
		if loneSurrogate(s[i:]) {
			out = append(out, s[i:i+3]...)
			i += 3
			continue
		}
		r, n := utf8.DecodeRuneInString(s[i:])
		i += n
		if r >= 0x10000 {
			hi, lo := utf16.EncodeRune(r)
			unit(uint16(hi))
			unit(uint16(lo))
			continue
		}
		unit(uint16(r))
	}
	return out
}

package split

import (
	"unicode/utf16"
	"unicode/utf8"
)

// maxModifiedUTF8Len is the largest byte length a uint16 prefix can carry.
const maxModifiedUTF8Len = 0xFFFF

// appendModifiedUTF8 appends s in Java's modified UTF-8: NUL becomes C0 80
// and supplementary code points are written as two 3-byte surrogates.
// ok is false if s is not valid UTF-8.
func appendModifiedUTF8(dst []byte, s string) (out []byte, ok bool) {
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size <= 1 {
			return dst, false
		}
		i += size

		switch {
		case r == 0:
			dst = append(dst, 0xC0, 0x80)
		case r < 0x80:
			dst = append(dst, byte(r))
		case r < 0x800:
			dst = append(dst, 0xC0|byte(r>>6), 0x80|byte(r&0x3F))
		case r < 0x10000:
			dst = appendUnit3(dst, uint16(r))
		default:
			hi, lo := utf16.EncodeRune(r)
			dst = appendUnit3(dst, uint16(hi))
			dst = appendUnit3(dst, uint16(lo))
		}
	}
	return dst, true
}

func appendUnit3(dst []byte, u uint16) []byte {
	return append(dst, 0xE0|byte(u>>12), 0x80|byte((u>>6)&0x3F), 0x80|byte(u&0x3F))
}

// modifiedUTF8Len returns the encoded length of s, or -1 if s is not valid UTF-8.
func modifiedUTF8Len(s string) int {
	n := 0
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size <= 1 {
			return -1
		}
		i += size
		switch {
		case r == 0:
			n += 2
		case r < 0x80:
			n++
		case r < 0x800:
			n += 2
		case r < 0x10000:
			n += 3
		default:
			n += 6
		}
	}
	return n
}

// decodeModifiedUTF8 reverses appendModifiedUTF8. Surrogates must come in
// high/low pairs; a lone surrogate cannot be represented and is rejected.
func decodeModifiedUTF8(b []byte) (string, bool) {
	units := make([]uint16, 0, len(b))
	for i := 0; i < len(b); {
		c := b[i]
		switch {
		case c < 0x80:
			units = append(units, uint16(c))
			i++
		case c&0xE0 == 0xC0:
			if i+1 >= len(b) || b[i+1]&0xC0 != 0x80 {
				return "", false
			}
			units = append(units, uint16(c&0x1F)<<6|uint16(b[i+1]&0x3F))
			i += 2
		case c&0xF0 == 0xE0:
			if i+2 >= len(b) || b[i+1]&0xC0 != 0x80 || b[i+2]&0xC0 != 0x80 {
				return "", false
			}
			units = append(units, uint16(c&0x0F)<<12|uint16(b[i+1]&0x3F)<<6|uint16(b[i+2]&0x3F))
			i += 3
		default:
			return "", false
		}
	}

	runes := make([]rune, 0, len(units))
	for i := 0; i < len(units); i++ {
		u := rune(units[i])
		if !utf16.IsSurrogate(u) {
			runes = append(runes, u)
			continue
		}
		if i+1 >= len(units) {
			return "", false
		}
		r := utf16.DecodeRune(u, rune(units[i+1]))
		if r == utf8.RuneError {
			return "", false
		}
		runes = append(runes, r)
		i++
	}
	return string(runes), true
}

package firmware

import (
	"bytes"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// DecodeText converts raw file bytes to a string, tolerating the legacy
// encodings that turn up in vendor-contributed firmware files. Valid
// UTF-8 and BOM-marked UTF-16 decode normally; everything else falls back
// to Windows-1252, which accepts any byte sequence. The second return is
// false when the fallback or a lossy decode was needed, so callers can
// log the file.
func DecodeText(raw []byte) (string, bool) {
	if bytes.HasPrefix(raw, bomUTF8) {
		stripped := raw[len(bomUTF8):]
		if utf8.Valid(stripped) {
			return string(stripped), true
		}
		return decodeWindows1252(stripped)
	}

	if bytes.HasPrefix(raw, bomUTF16LE) {
		return decodeUTF16(raw, unicode.LittleEndian)
	}
	if bytes.HasPrefix(raw, bomUTF16BE) {
		return decodeUTF16(raw, unicode.BigEndian)
	}

	if utf8.Valid(raw) {
		return string(raw), true
	}
	return decodeWindows1252(raw)
}

func decodeUTF16(raw []byte, endianness unicode.Endianness) (string, bool) {
	decoder := unicode.UTF16(endianness, unicode.UseBOM).NewDecoder()
	decoded, err := decoder.Bytes(raw)
	if err != nil {
		return decodeWindows1252(raw)
	}
	return string(decoded), !bytes.ContainsRune(decoded, utf8.RuneError)
}

func decodeWindows1252(raw []byte) (string, bool) {
	decoded, err := charmap.Windows1252.NewDecoder().Bytes(raw)
	if err != nil {
		// The decoder substitutes unknown bytes rather than failing, so
		// this path should not be reachable. Fall back to a raw byte to
		// rune mapping just in case.
		runes := make([]rune, len(raw))
		for i, b := range raw {
			runes[i] = rune(b)
		}
		return string(runes), false
	}
	return string(decoded), false
}

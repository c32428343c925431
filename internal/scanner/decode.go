package scanner

import (
	"bytes"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// decodeText decodes file bytes as UTF-8, falling back to Windows-1252
// (a superset of Latin-1 that never fails to decode a single byte) for
// the rare file that isn't valid UTF-8. This mirrors the "UTF-8 with
// fallback to autodetection" behaviour without pulling in a full
// charset-sniffing dependency for a path that's taken rarely.
func decodeText(data []byte) (string, bool) {
	if utf8.Valid(data) {
		return string(data), true
	}

	decoded, err := charmap.Windows1252.NewDecoder().Bytes(data)
	if err != nil {
		return "", false
	}
	return string(decoded), true
}

// isBinary sniffs the first 512 bytes of a file for a null byte, the
// same heuristic git and most editors use to tell text from binary.
func isBinary(data []byte) bool {
	n := len(data)
	if n > 512 {
		n = 512
	}
	return bytes.IndexByte(data[:n], 0) >= 0
}

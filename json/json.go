// Package json provides JSON helpers for the dispatch server: append-style
// builders for status and audit-log output, and object traversal for
// JSON-valued verb arguments.
package json

import (
	"strconv"

	jsp "github.com/buger/jsonparser"
)

const hextable = "0123456789abcdef"

// Ascii appends src as a JSON string, escaping anything outside printable
// ASCII. Meant for short protocol tokens, not arbitrary text.
func Ascii(dst []byte, src []byte) []byte {
	dst = append(dst, '"')
	for _, v := range src {
		switch {
		case v == '"' || v == '\\':
			dst = append(dst, '\\', v)
		case v >= 0x20 && v < 0x7f:
			dst = append(dst, v)
		default:
			dst = append(dst, '\\', 'u', '0', '0', hextable[v>>4], hextable[v&0x0f])
		}
	}
	return append(dst, '"')
}

func Int(dst []byte, src int64) []byte {
	return strconv.AppendInt(dst, src, 10)
}

func Bool(dst []byte, val bool) []byte {
	if val {
		return append(dst, `true`...)
	} else {
		return append(dst, `false`...)
	}
}

// ObjectEach calls cb for each element in the src object.
// If the callback returns an non-nil error, it breaks immediately and returns it.
func ObjectEach(src []byte, cb func(key, val []byte) error) error {
	return jsp.ObjectEach(src, func(key, val []byte, _ jsp.ValueType, _ int) error {
		return cb(key, val)
	})
}

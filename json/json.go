// Package json provides the zero-copy byte/string conversion the JSON
// instruction family leans on to avoid allocating on every key lookup.
package json

import "unsafe"

// S returns a string backed by buf's own bytes, without copying. Callers
// must not mutate buf (or whatever it aliases) while the returned string
// is in use.
func S(buf []byte) string {
	return *(*string)(unsafe.Pointer(&buf))
}

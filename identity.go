package hxnet

import (
	"encoding/hex"
	"fmt"
	"path/filepath"
	"reflect"
	"runtime"

	"github.com/zeebo/blake3"
)

// CallSite returns a stable identity for a source position.
// skip is the number of stack frames to ascend, 0 being the caller of CallSite.
//
// The identity combines the enclosing function, the base file name and the
// line, so it survives moving the checkout to another directory.
func CallSite(skip int) string {
	pc, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return hashID("unknown")
	}
	fn := ""
	if f := runtime.FuncForPC(pc); f != nil {
		fn = f.Name()
	}
	return hashID(fn, fmt.Sprintf("%s:%d", filepath.Base(file), line))
}

// hashID derives a short hex identity from parts. Parts are separated by a
// zero byte so ("ab", "c") and ("a", "bc") differ.
func hashID(parts ...string) string {
	h := blake3.New()
	for _, p := range parts {
		_, _ = h.Write([]byte(p))
		_, _ = h.Write([]byte{0})
	}
	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:5])
}

// pathSafeID returns id if it can be used as a path element as is, and a
// hash of it otherwise.
func pathSafeID(id string) string {
	if id == "" {
		return id
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
		default:
			return hashID(id)
		}
	}
	return id
}

// contentTag returns a strong ETag for an asset body.
func contentTag(body string) string {
	sum := blake3.Sum256([]byte(body))
	return `"` + hex.EncodeToString(sum[:12]) + `"`
}

// funcName returns the fully qualified name of fn. Closures get a name
// derived from their declaration site, which makes it a stable stand-in for
// "which component declaration produced this".
func funcName(fn any) string {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		return ""
	}
	if f := runtime.FuncForPC(v.Pointer()); f != nil {
		return f.Name()
	}
	return ""
}

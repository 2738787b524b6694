package cache

import (
	"reflect"
	"strings"
)

// DefaultSeparator joins the parts of a composite key.
const DefaultSeparator = "##"

// Key joins parts into a composite key using sep.
// Parts must not contain sep themselves, otherwise different part lists can
// produce the same key.
func Key(sep string, parts ...string) string {
	return strings.Join(parts, sep)
}

// isNil reports whether v holds nothing: a nil interface or a nil
// pointer, map, slice, func or channel.
func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

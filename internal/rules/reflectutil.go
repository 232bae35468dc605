package rules

import (
	"fmt"
	"reflect"

	"github.com/dop251/goja/ast"
)

// tokenString reads a named field of any type (commonly a token.Token) and
// renders it via fmt.Stringer if implemented, else via fmt.Sprintf("%v").
func tokenString(n ast.Node, name string) string {
	v, ok := structValue(n)
	if !ok {
		return ""
	}
	f := v.FieldByName(name)
	if !f.IsValid() {
		return ""
	}
	if !f.CanInterface() {
		return ""
	}
	val := f.Interface()
	if s, ok := val.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%v", val)
}

// structValue returns the addressable struct reflect.Value underlying n,
// dereferencing a pointer receiver if needed.
func structValue(n ast.Node) (reflect.Value, bool) {
	if n == nil {
		return reflect.Value{}, false
	}
	v := reflect.ValueOf(n)
	if v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return reflect.Value{}, false
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return reflect.Value{}, false
	}
	return v, true
}

// nodeField reads a named field and, if it holds (directly or via pointer
// or interface) an ast.Node, returns it.
func nodeField(n ast.Node, name string) (ast.Node, bool) {
	v, ok := structValue(n)
	if !ok {
		return nil, false
	}
	f := v.FieldByName(name)
	if !f.IsValid() {
		return nil, false
	}
	for f.Kind() == reflect.Interface || f.Kind() == reflect.Ptr {
		if f.IsNil() {
			return nil, false
		}
		f = f.Elem()
	}
	if !f.CanAddr() {
		// Value-typed leaf node (e.g. ast.Identifier by value): try as-is.
		if f.CanInterface() {
			if node, ok := f.Interface().(ast.Node); ok {
				return node, true
			}
		}
		return nil, false
	}
	addr := f.Addr()
	if addr.CanInterface() {
		if node, ok := addr.Interface().(ast.Node); ok {
			return node, true
		}
	}
	if f.CanInterface() {
		if node, ok := f.Interface().(ast.Node); ok {
			return node, true
		}
	}
	return nil, false
}

// boolField reads a named bool field, defaulting to false if absent.
func boolField(n ast.Node, name string) bool {
	v, ok := structValue(n)
	if !ok {
		return false
	}
	f := v.FieldByName(name)
	if !f.IsValid() || f.Kind() != reflect.Bool {
		return false
	}
	return f.Bool()
}

// stringField reads a named string field, defaulting to "".
func stringField(n ast.Node, name string) string {
	v, ok := structValue(n)
	if !ok {
		return ""
	}
	f := v.FieldByName(name)
	if !f.IsValid() || f.Kind() != reflect.String {
		return ""
	}
	return f.String()
}

// sliceField reads a named slice field and returns its elements as Nodes
// (used for ArgumentList-shaped fields).
func sliceField(n ast.Node, name string) []ast.Node {
	v, ok := structValue(n)
	if !ok {
		return nil
	}
	f := v.FieldByName(name)
	if !f.IsValid() || (f.Kind() != reflect.Slice && f.Kind() != reflect.Array) {
		return nil
	}
	out := make([]ast.Node, 0, f.Len())
	for i := 0; i < f.Len(); i++ {
		el := f.Index(i)
		for el.Kind() == reflect.Interface || el.Kind() == reflect.Ptr {
			if el.IsNil() {
				break
			}
			el = el.Elem()
		}
		if !el.IsValid() || !el.CanInterface() {
			continue
		}
		if node, ok := el.Interface().(ast.Node); ok {
			out = append(out, node)
		}
	}
	return out
}

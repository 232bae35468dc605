// Package rules implements C3, the pluggable rule engine: a single
// pre-order AST traversal dispatching to visitor functions keyed by node
// kind (spec §4.3).
package rules

import (
	"reflect"
	"strings"

	"github.com/dop251/goja/ast"
)

// nodeKind returns a stable tag for dispatch, e.g. "WhileStatement" for a
// *ast.WhileStatement. This is the key into a rule engine's visitor map.
func nodeKind(n ast.Node) string {
	t := reflect.TypeOf(n)
	if t == nil {
		return ""
	}
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	name := t.Name()
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	return name
}

// Walk performs one generic pre-order traversal of root, invoking visit at
// every node reached. The engine does not prune descent — per spec §4.3,
// only a rule's own visitor may choose not to recurse further within its
// own bounded search (see builtin.go's exit-statement and nested-loop
// searches). This traversal walks every struct field reachable from a
// node that is itself an ast.Node, a pointer to one, or a slice of them,
// which keeps it correct across the AST's full node surface without
// hand-enumerating every statement/expression shape.
func Walk(root ast.Node, visit func(ast.Node)) {
	if root == nil {
		return
	}
	rv := reflect.ValueOf(root)
	if rv.Kind() == reflect.Ptr && rv.IsNil() {
		return
	}
	visit(root)

	if rv.Kind() == reflect.Ptr {
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return
	}
	for i := 0; i < rv.NumField(); i++ {
		walkValue(rv.Field(i), visit)
	}
}

func walkValue(f reflect.Value, visit func(ast.Node)) {
	if !f.IsValid() {
		return
	}
	switch f.Kind() {
	case reflect.Interface:
		if f.IsNil() {
			return
		}
		walkValue(f.Elem(), visit)
	case reflect.Ptr:
		if f.IsNil() {
			return
		}
		if n, ok := f.Interface().(ast.Node); ok {
			Walk(n, visit)
			return
		}
		walkValue(f.Elem(), visit)
	case reflect.Struct:
		if n, ok := tryAsNode(f); ok {
			visit(n)
		}
		for i := 0; i < f.NumField(); i++ {
			walkValue(f.Field(i), visit)
		}
	case reflect.Slice, reflect.Array:
		for i := 0; i < f.Len(); i++ {
			walkValue(f.Index(i), visit)
		}
	}
}

// BoundedWalk is like Walk but halts descent below any node for which
// stopDescend returns true (the node itself is still visited). Builtin
// rules use this for their own bounded searches — e.g. R1's exit-statement
// search, which must not descend into a nested loop or function body — as
// distinct from the engine's own unbounded traversal (spec §4.3).
func BoundedWalk(root ast.Node, stopDescend func(ast.Node) bool, visit func(ast.Node)) {
	if root == nil {
		return
	}
	rv := reflect.ValueOf(root)
	if rv.Kind() == reflect.Ptr && rv.IsNil() {
		return
	}
	visit(root)
	if stopDescend(root) {
		return
	}
	if rv.Kind() == reflect.Ptr {
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return
	}
	for i := 0; i < rv.NumField(); i++ {
		boundedWalkValue(rv.Field(i), stopDescend, visit)
	}
}

func boundedWalkValue(f reflect.Value, stopDescend func(ast.Node) bool, visit func(ast.Node)) {
	if !f.IsValid() {
		return
	}
	switch f.Kind() {
	case reflect.Interface:
		if f.IsNil() {
			return
		}
		boundedWalkValue(f.Elem(), stopDescend, visit)
	case reflect.Ptr:
		if f.IsNil() {
			return
		}
		if n, ok := f.Interface().(ast.Node); ok {
			BoundedWalk(n, stopDescend, visit)
			return
		}
		boundedWalkValue(f.Elem(), stopDescend, visit)
	case reflect.Struct:
		if n, ok := tryAsNode(f); ok {
			visit(n)
			if stopDescend(n) {
				return
			}
		}
		for i := 0; i < f.NumField(); i++ {
			boundedWalkValue(f.Field(i), stopDescend, visit)
		}
	case reflect.Slice, reflect.Array:
		for i := 0; i < f.Len(); i++ {
			boundedWalkValue(f.Index(i), stopDescend, visit)
		}
	}
}

// tryAsNode attempts to view a struct value as an ast.Node. Most AST leaf
// types (Identifier, StringLiteral, ...) implement Node on a value
// receiver, so a plain struct field can itself be a node even though it
// isn't addressable here.
func tryAsNode(f reflect.Value) (ast.Node, bool) {
	if !f.CanInterface() {
		return nil, false
	}
	n, ok := f.Interface().(ast.Node)
	return n, ok
}

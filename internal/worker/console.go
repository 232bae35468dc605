package worker

import (
	"fmt"
	"strings"

	"github.com/dop251/goja"
)

// installConsole binds a console object whose log/warn/error/info methods
// stringify their arguments and append to logs, capped at
// model.MaxLogLinesPerRun by collector.add (spec §4.4, §6).
func installConsole(vm *goja.Runtime, logs *collector) {
	console := vm.NewObject()
	bind := func(level string) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			parts := make([]string, len(call.Arguments))
			for i, a := range call.Arguments {
				parts[i] = stringifyArg(a, make(map[*goja.Object]bool))
			}
			line := strings.Join(parts, " ")
			if level != "log" {
				line = "[" + level + "] " + line
			}
			logs.add(line)
			return goja.Undefined()
		}
	}
	_ = console.Set("log", bind("log"))
	_ = console.Set("info", bind("info"))
	_ = console.Set("warn", bind("warn"))
	_ = console.Set("error", bind("error"))
	_ = vm.Set("console", console)
}

// stringifyArg renders a single console argument, guarding against
// reference cycles (which would otherwise recurse forever over a
// self-referencing object graph) and rendering BigInt values with the
// trailing "n" suffix JS itself uses.
func stringifyArg(v goja.Value, seen map[*goja.Object]bool) string {
	if v == nil || goja.IsUndefined(v) {
		return "undefined"
	}
	if goja.IsNull(v) {
		return "null"
	}
	switch ex := v.Export().(type) {
	case string:
		return ex
	case int64:
		return fmt.Sprintf("%d", ex)
	}
	if obj, ok := v.(*goja.Object); ok {
		if obj.ClassName() == "BigInt" {
			return v.String() + "n"
		}
		if seen[obj] {
			return "[Circular]"
		}
		seen[obj] = true
		defer delete(seen, obj)

		if obj.ClassName() == "Array" {
			length := obj.Get("length")
			n := int64(0)
			if length != nil {
				n = length.ToInteger()
			}
			parts := make([]string, 0, n)
			for i := int64(0); i < n; i++ {
				parts = append(parts, stringifyArg(obj.Get(fmt.Sprintf("%d", i)), seen))
			}
			return "[" + strings.Join(parts, ", ") + "]"
		}

		parts := make([]string, 0)
		for _, key := range obj.Keys() {
			parts = append(parts, fmt.Sprintf("%s: %s", key, stringifyArg(obj.Get(key), seen)))
		}
		return "{" + strings.Join(parts, ", ") + "}"
	}
	return v.String()
}

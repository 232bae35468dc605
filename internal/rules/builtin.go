package rules

import (
	"reflect"
	"regexp"

	"github.com/dop251/goja/ast"

	"github.com/dev-console/agentsandbox/internal/model"
)

var loopKinds = map[string]bool{
	"WhileStatement":   true,
	"ForStatement":     true,
	"ForInStatement":   true,
	"ForOfStatement":   true,
	"DoWhileStatement": true,
}

var functionKinds = map[string]bool{
	"FunctionLiteral":      true,
	"ArrowFunctionLiteral": true,
	"FunctionDeclaration":  true,
}

func isLoopKind(kind string) bool     { return loopKinds[kind] }
func isFunctionKind(kind string) bool { return functionKinds[kind] }

// BuiltinRules returns the five mandatory rules (spec §4.3) plus the
// supplemental R6 (SPEC_FULL.md §5/C3).
func BuiltinRules() []*Rule {
	return []*Rule{
		ruleNoInfiniteLoop(),
		ruleNoNestedLoops(),
		ruleNoAdapterInLoop(),
		ruleNoUnhandledAsync(),
		ruleNoDangerousGlobals(),
		ruleNoAdapterArgSecrets(),
	}
}

// ---------------------------------------------------------------------
// R1 — no-infinite-loop (default: error)
// ---------------------------------------------------------------------

func ruleNoInfiniteLoop() *Rule {
	kinds := []string{"WhileStatement", "DoWhileStatement", "ForStatement"}
	return &Rule{
		Name:            "no-infinite-loop",
		DefaultSeverity: model.SeverityError,
		Description:     "while(true), for(;;), and do...while(true) whose body has no reachable exit statement",
		NodeKinds:       kinds,
		Visit: func(n ast.Node, rc *RunContext, severity model.Severity) {
			if !isUnconditionalLoop(n) {
				return
			}
			body, ok := nodeField(n, "Body")
			if !ok {
				return
			}
			if hasExitStatement(body) {
				return
			}
			rc.Report(n, "no-infinite-loop", severity, "loop has no reachable break, return, or throw")
		},
	}
}

// isUnconditionalLoop reports while(true)/do-while(true)/for(;;).
func isUnconditionalLoop(n ast.Node) bool {
	switch nodeKind(n) {
	case "ForStatement":
		test, ok := nodeField(n, "Test")
		return !ok || test == nil
	case "WhileStatement", "DoWhileStatement":
		test, ok := nodeField(n, "Test")
		if !ok {
			return false
		}
		return isBooleanTrueLiteral(test)
	}
	return false
}

func isBooleanTrueLiteral(n ast.Node) bool {
	if nodeKind(n) != "BooleanLiteral" {
		return false
	}
	v, ok := structValue(n)
	if !ok {
		return false
	}
	f := v.FieldByName("Value")
	return f.IsValid() && f.Kind() == reflect.Bool && f.Bool()
}

// hasExitStatement searches body for a break/return/throw reachable
// without crossing a nested loop/switch (which would bind a break) or a
// nested function boundary (which would bind a return/throw).
func hasExitStatement(body ast.Node) bool {
	found := false
	BoundedWalk(body, func(n ast.Node) bool {
		kind := nodeKind(n)
		return (isLoopKind(kind) && n != body) || kind == "SwitchStatement" || isFunctionKind(kind)
	}, func(n ast.Node) {
		switch nodeKind(n) {
		case "ReturnStatement", "ThrowStatement":
			found = true
		case "BranchStatement":
			// BranchStatement models both break and continue; only break
			// is an exit — continue re-enters the loop rather than
			// leaving it.
			tok := tokenString(n, "Token")
			if tok == "break" || tok == "BREAK" {
				found = true
			}
		}
	})
	return found
}

// ---------------------------------------------------------------------
// R2 — no-nested-loops (default: warn)
// ---------------------------------------------------------------------

func ruleNoNestedLoops() *Rule {
	kinds := []string{"WhileStatement", "DoWhileStatement", "ForStatement", "ForInStatement", "ForOfStatement"}
	return &Rule{
		Name:            "no-nested-loops",
		DefaultSeverity: model.SeverityWarn,
		Description:     "a loop body contains another loop (potential quadratic complexity)",
		NodeKinds:       kinds,
		Visit: func(n ast.Node, rc *RunContext, severity model.Severity) {
			body, ok := nodeField(n, "Body")
			if !ok {
				return
			}
			nested := false
			BoundedWalk(body, func(m ast.Node) bool {
				return isFunctionKind(nodeKind(m))
			}, func(m ast.Node) {
				if m != body && isLoopKind(nodeKind(m)) {
					nested = true
				}
			})
			if nested {
				rc.Report(n, "no-nested-loops", severity, "loop body contains a nested loop")
			}
		},
	}
}

// ---------------------------------------------------------------------
// R3 — no-adapter-in-loop (default: warn)
// ---------------------------------------------------------------------

var iterationMethodsWithLoopContext = map[string]bool{
	"forEach": true, "map": true, "filter": true, "find": true, "findIndex": true,
	"some": true, "every": true, "reduce": true, "reduceRight": true, "flatMap": true,
}

func ruleNoAdapterInLoop() *Rule {
	loopKindsList := []string{"WhileStatement", "DoWhileStatement", "ForStatement", "ForInStatement", "ForOfStatement"}
	kinds := append(loopKindsList, "CallExpression")
	return &Rule{
		Name:            "no-adapter-in-loop",
		DefaultSeverity: model.SeverityWarn,
		Description:     "adapter call inside a loop body or array-iteration callback",
		NodeKinds:       kinds,
		Visit: func(n ast.Node, rc *RunContext, severity model.Severity) {
			switch {
			case isLoopKind(nodeKind(n)):
				if body, ok := nodeField(n, "Body"); ok {
					reportAdapterCallsWithin(body, rc, severity)
				}
			case nodeKind(n) == "CallExpression":
				if callbackBody, ok := iterationCallbackBody(n); ok {
					reportAdapterCallsWithin(callbackBody, rc, severity)
				}
			}
		},
	}
}

// reportAdapterCallsWithin flags adapters.X.Y(...) calls within root,
// stopping descent at nested function boundaries (those are handled, if
// they qualify as iteration callbacks, by the CallExpression-kind trigger
// above when the engine's single full traversal reaches them).
func reportAdapterCallsWithin(root ast.Node, rc *RunContext, severity model.Severity) {
	BoundedWalk(root, func(n ast.Node) bool {
		return n != root && isFunctionKind(nodeKind(n))
	}, func(n ast.Node) {
		if nodeKind(n) == "CallExpression" && isAdapterCall(n) {
			rc.Report(n, "no-adapter-in-loop", severity, "adapter call inside a loop or iteration callback")
		}
	})
}

// iterationCallbackBody reports whether call is `X.method(fn, ...)` for a
// qualifying array-iteration method with fn as a function literal first
// argument, returning fn's body.
func iterationCallbackBody(call ast.Node) (ast.Node, bool) {
	callee, ok := nodeField(call, "Callee")
	if !ok || nodeKind(callee) != "DotExpression" {
		return nil, false
	}
	methodIdent, ok := nodeField(callee, "Identifier")
	if !ok {
		return nil, false
	}
	name := stringField(methodIdent, "Name")
	if !iterationMethodsWithLoopContext[name] {
		return nil, false
	}
	args := sliceField(call, "ArgumentList")
	if len(args) == 0 {
		return nil, false
	}
	first := args[0]
	if !isFunctionKind(nodeKind(first)) {
		return nil, false
	}
	return nodeField(first, "Body")
}

// isAdapterCall reports whether call has the shape adapters.X.Y(...).
func isAdapterCall(call ast.Node) bool {
	callee, ok := nodeField(call, "Callee")
	if !ok || nodeKind(callee) != "DotExpression" {
		return false
	}
	inner, ok := nodeField(callee, "Left")
	if !ok || nodeKind(inner) != "DotExpression" {
		return false
	}
	base, ok := nodeField(inner, "Left")
	if !ok || nodeKind(base) != "Identifier" {
		return false
	}
	return stringField(base, "Name") == "adapters"
}

// ---------------------------------------------------------------------
// R4 — no-unhandled-async (default: warn)
// ---------------------------------------------------------------------

var alwaysBrokenByAsyncCallback = map[string]bool{
	"forEach": true, "filter": true, "find": true, "findIndex": true, "some": true, "every": true,
}

func ruleNoUnhandledAsync() *Rule {
	return &Rule{
		Name:            "no-unhandled-async",
		DefaultSeverity: model.SeverityWarn,
		Description:     "async function passed to an array-iteration method whose result is not awaited",
		NodeKinds:       []string{"CallExpression"},
		Visit: func(n ast.Node, rc *RunContext, severity model.Severity) {
			callee, ok := nodeField(n, "Callee")
			if !ok || nodeKind(callee) != "DotExpression" {
				return
			}
			methodIdent, ok := nodeField(callee, "Identifier")
			if !ok {
				return
			}
			name := stringField(methodIdent, "Name")
			args := sliceField(n, "ArgumentList")
			if len(args) == 0 {
				return
			}
			first := args[0]
			if !isFunctionKind(nodeKind(first)) || !boolField(first, "Async") {
				return
			}
			switch {
			case alwaysBrokenByAsyncCallback[name]:
				rc.Report(n, "no-unhandled-async", severity, "async callback passed to "+name+" breaks its semantics; results are not awaited")
			case name == "map":
				rc.Report(n, "no-unhandled-async", severity, "async callback passed to map produces an array of promises; await all of them under a parallel-join primitive")
			}
		},
	}
}

// ---------------------------------------------------------------------
// R5 — no-dangerous-globals (default: mixed — error for eval/Function/require, warn for process)
// ---------------------------------------------------------------------

var globalObjectNames = map[string]bool{"globalThis": true, "self": true, "window": true}

func ruleNoDangerousGlobals() *Rule {
	return &Rule{
		Name:            "no-dangerous-globals",
		DefaultSeverity: model.SeverityError,
		Description:     "dynamic code evaluation, the Function constructor, require, or a read of process",
		NodeKinds:       []string{"CallExpression", "NewExpression", "Identifier"},
		Visit: func(n ast.Node, rc *RunContext, severity model.Severity) {
			switch nodeKind(n) {
			case "CallExpression", "NewExpression":
				if name, ok := dangerousCallee(n); ok {
					rc.Report(n, "no-dangerous-globals", severity, "use of "+name+" is not permitted in sandboxed code")
				}
			case "Identifier":
				if stringField(n, "Name") == "process" {
					// Warn by default (spec's "mixed" severity for this
					// rule), but an explicit host override for the rule
					// still applies uniformly to every finding it produces,
					// process reads included.
					procSeverity := model.SeverityWarn
					if override, ok := rc.Overrides["no-dangerous-globals"]; ok {
						procSeverity = override
					}
					rc.Report(n, "no-dangerous-globals", procSeverity, "read of the process global")
				}
			}
		},
	}
}

// dangerousCallee classifies call/new targets matching eval, the Function
// constructor (directly, via globalThis/self/window, or via a
// `.constructor` access chain), or require.
func dangerousCallee(call ast.Node) (string, bool) {
	callee, ok := nodeField(call, "Callee")
	if !ok {
		return "", false
	}
	switch nodeKind(callee) {
	case "Identifier":
		switch stringField(callee, "Name") {
		case "eval":
			return "eval", true
		case "Function":
			return "Function", true
		case "require":
			return "require", true
		}
	case "DotExpression":
		methodIdent, ok := nodeField(callee, "Identifier")
		if !ok {
			return "", false
		}
		name := stringField(methodIdent, "Name")
		if name == "constructor" {
			// Covers (fn).constructor(...) and
			// Object.getPrototypeOf(fn).constructor(...).
			return "function-constructor-via-.constructor", true
		}
		if name == "Function" {
			if base, ok := nodeField(callee, "Left"); ok && nodeKind(base) == "Identifier" && globalObjectNames[stringField(base, "Name")] {
				return "Function", true
			}
		}
	}
	return "", false
}

// ---------------------------------------------------------------------
// R6 — no-adapter-arg-secrets (default: warn, supplemental)
// ---------------------------------------------------------------------

var secretShapedPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^sk-[A-Za-z0-9]{10,}`),
	regexp.MustCompile(`(?i)^Bearer\s+\S+`),
	regexp.MustCompile(`^AKIA[A-Z0-9]{12,}`),
	regexp.MustCompile(`^[0-9a-fA-F]{32,}$`),
}

func ruleNoAdapterArgSecrets() *Rule {
	return &Rule{
		Name:            "no-adapter-arg-secrets",
		DefaultSeverity: model.SeverityWarn,
		Description:     "adapter call argument looks like a credential or secret literal",
		NodeKinds:       []string{"CallExpression"},
		Visit: func(n ast.Node, rc *RunContext, severity model.Severity) {
			if !isAdapterCall(n) {
				return
			}
			for _, arg := range sliceField(n, "ArgumentList") {
				if nodeKind(arg) != "StringLiteral" {
					continue
				}
				value := stringField(arg, "Value")
				for _, re := range secretShapedPatterns {
					if re.MatchString(value) {
						rc.Report(n, "no-adapter-arg-secrets", severity, "adapter call argument resembles a secret or credential")
						return
					}
				}
			}
		},
	}
}

// Package normalize implements C2, the code normalizer: it parses a
// snippet under a permissive dialect that tolerates top-level await and
// top-level return, classifies its shape, and — unless auto-return is
// disabled — splices an explicit `return` onto a bare trailing expression
// (spec §4.2).
//
// Rewriting is source-text splicing driven by AST node byte offsets, never
// AST re-emission: whitespace, comments, and formatting survive untouched.
package normalize

import (
	"strings"

	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/file"
	"github.com/dop251/goja/parser"

	"github.com/dev-console/agentsandbox/internal/model"
)

// permissive-dialect wrapper: goja's parser (like standard ECMAScript)
// rejects `return`/`await` outside a function body. Wrapping the snippet
// in a synthetic async-function expression makes both legal to parse while
// changing no byte of the snippet itself; positions inside the wrapped
// parse are translated back to the original source by subtracting the
// wrapper's prefix length.
const wrapPrefix = "(async function(){"
const wrapSuffix = "})"

// Options controls normalizer behavior beyond the fixed shape-classification
// rules. AutoReturn disabled still parses/classifies but never rewrites.
type Options struct {
	AutoReturn bool
}

// DefaultOptions enables auto-return, matching spec §4.2's default behavior.
func DefaultOptions() Options { return Options{AutoReturn: true} }

// Normalize classifies src and, per opts, rewrites a bare trailing
// expression into an explicit return. It never returns an error value
// directly — parse failures are reported as a KindParseError outcome, per
// spec §3's tagged-variant data model.
func Normalize(src string, opts Options) model.NormalizationOutcome {
	trimmed := strings.TrimSpace(src)
	if trimmed == "" {
		return model.NormalizationOutcome{Kind: model.KindUnchangedStatements, Source: trimmed, Modified: false}
	}

	wrapped := wrapPrefix + trimmed + wrapSuffix
	fset := file.NewFileSet()
	prog, err := parser.ParseFile(fset, "snippet.js", wrapped, 0)
	if err != nil {
		return model.NormalizationOutcome{
			Kind:    model.KindParseError,
			Source:  trimmed,
			Message: err.Error(),
		}
	}

	body, ok := unwrapBody(prog)
	if !ok || len(body) == 0 {
		return model.NormalizationOutcome{Kind: model.KindUnchangedStatements, Source: trimmed, Modified: false}
	}

	if containsTopLevelReturn(body) {
		return model.NormalizationOutcome{Kind: model.KindUnchangedAlreadyReturns, Source: trimmed, Modified: false}
	}

	if len(body) == 1 {
		if _, isFunc := body[0].(*ast.FunctionDeclaration); isFunc {
			return model.NormalizationOutcome{Kind: model.KindUnchangedFunctionDeclaration, Source: trimmed, Modified: false}
		}
	}

	last := body[len(body)-1]
	exprStmt, ok := last.(*ast.ExpressionStatement)
	if !ok {
		return model.NormalizationOutcome{Kind: model.KindUnchangedStatements, Source: trimmed, Modified: false}
	}

	if !opts.AutoReturn {
		return model.NormalizationOutcome{Kind: model.KindUnchangedStatements, Source: trimmed, Modified: false}
	}

	localIdx := int(exprStmt.Expression.Idx0()) - 1 - len(wrapPrefix)
	if localIdx < 0 || localIdx > len(trimmed) {
		// Defensive: a malformed offset should never reach here given a
		// successful parse, but refuse to splice out of bounds.
		return model.NormalizationOutcome{Kind: model.KindUnchangedStatements, Source: trimmed, Modified: false}
	}

	rewritten := trimmed[:localIdx] + "return " + trimmed[localIdx:]
	kind := model.KindRewrittenStatements
	if len(body) == 1 {
		kind = model.KindRewrittenExpression
	}
	return model.NormalizationOutcome{Kind: kind, Source: rewritten, Modified: true}
}

// unwrapBody extracts the synthetic wrapper's function body, i.e. the
// original snippet's top-level statement list.
func unwrapBody(prog *ast.Program) ([]ast.Statement, bool) {
	if len(prog.Body) != 1 {
		return nil, false
	}
	exprStmt, ok := prog.Body[0].(*ast.ExpressionStatement)
	if !ok {
		return nil, false
	}
	fn, ok := exprStmt.Expression.(*ast.FunctionLiteral)
	if !ok || fn.Body == nil {
		return nil, false
	}
	return fn.Body.List, true
}

// containsTopLevelReturn reports whether any direct (non-nested-function)
// member of body is itself a return statement, per spec §4.2's
// "already-returns" classification.
func containsTopLevelReturn(body []ast.Statement) bool {
	for _, stmt := range body {
		if _, ok := stmt.(*ast.ReturnStatement); ok {
			return true
		}
	}
	return false
}

// Validate is the pure syntax-validity predicate spec §4.2 calls out as
// available independent of the rewrite path.
func Validate(src string) bool {
	trimmed := strings.TrimSpace(src)
	if trimmed == "" {
		return true
	}
	wrapped := wrapPrefix + trimmed + wrapSuffix
	fset := file.NewFileSet()
	_, err := parser.ParseFile(fset, "snippet.js", wrapped, 0)
	return err == nil
}

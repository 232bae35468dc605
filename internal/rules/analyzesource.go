package rules

import (
	"github.com/dop251/goja/file"
	"github.com/dop251/goja/parser"

	"github.com/dev-console/agentsandbox/internal/model"
)

// wrapPrefix/wrapSuffix mirror internal/normalize's permissive-dialect
// wrapper so the rule engine can walk the same top-level-await/return
// shapes the normalizer accepts, without depending on that package.
const wrapPrefix = "(async function(){"
const wrapSuffix = "})"

// AnalyzeSource parses source under the permissive dialect and runs
// engine.Analyze over it. A parse failure here is reported as an error
// rather than a model.AnalysisResult, since analysis cannot proceed
// without a parse tree (spec §4.6 step 2 treats this the same as a
// normalizer parse-error: it short-circuits the run).
func AnalyzeSource(engine *Engine, source string, cfg model.AnalysisConfig) (model.AnalysisResult, error) {
	wrapped := wrapPrefix + source + wrapSuffix
	fset := file.NewFileSet()
	prog, err := parser.ParseFile(fset, "snippet.js", wrapped, 0)
	if err != nil {
		return model.AnalysisResult{}, err
	}
	return engine.Analyze(fset, prog, source, cfg, nil), nil
}

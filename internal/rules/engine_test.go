package rules

import (
	"testing"

	"github.com/dop251/goja/file"
	"github.com/dop251/goja/parser"

	"github.com/dev-console/agentsandbox/internal/model"
)

func analyze(t *testing.T, src string) model.AnalysisResult {
	t.Helper()
	fset := file.NewFileSet()
	prog, err := parser.ParseFile(fset, "snippet.js", src, 0)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	engine := NewEngine(BuiltinRules())
	return engine.Analyze(fset, prog, src, model.AnalysisConfig{Enabled: true, BlockOnError: true}, nil)
}

func hasFinding(findings []model.Finding, rule string) bool {
	for _, f := range findings {
		if f.Rule == rule {
			return true
		}
	}
	return false
}

func TestNoInfiniteLoop_WhileTrue(t *testing.T) {
	result := analyze(t, "while(true) { console.log('x'); }")
	if !hasFinding(result.Errors, "no-infinite-loop") {
		t.Fatalf("expected no-infinite-loop error, got %+v", result)
	}
}

func TestNoInfiniteLoop_HasBreak(t *testing.T) {
	result := analyze(t, "while(true) { if (x) { break; } }")
	if hasFinding(result.Errors, "no-infinite-loop") {
		t.Fatalf("expected no error when loop has a break, got %+v", result)
	}
}

func TestNoInfiniteLoop_ForEverIsInfinite(t *testing.T) {
	result := analyze(t, "for (;;) { x = 1; }")
	if !hasFinding(result.Errors, "no-infinite-loop") {
		t.Fatalf("expected for(;;) to be flagged, got %+v", result)
	}
}

func TestNoNestedLoops(t *testing.T) {
	result := analyze(t, "for (const x of a) { for (const y of b) { x; } }")
	if !hasFinding(result.Warnings, "no-nested-loops") {
		t.Fatalf("expected no-nested-loops warning, got %+v", result)
	}
}

func TestNoAdapterInLoop(t *testing.T) {
	result := analyze(t, "for (const id of [1,2]) { adapters.api.get(id); }")
	if !hasFinding(result.Warnings, "no-adapter-in-loop") {
		t.Fatalf("expected no-adapter-in-loop warning, got %+v", result)
	}
}

func TestNoAdapterInLoop_Callback(t *testing.T) {
	result := analyze(t, "[1,2].forEach(function(id) { adapters.api.get(id); })")
	if !hasFinding(result.Warnings, "no-adapter-in-loop") {
		t.Fatalf("expected no-adapter-in-loop warning for forEach callback, got %+v", result)
	}
}

func TestNoDangerousGlobals_Eval(t *testing.T) {
	result := analyze(t, "eval('1+1')")
	if !hasFinding(result.Errors, "no-dangerous-globals") {
		t.Fatalf("expected no-dangerous-globals error for eval, got %+v", result)
	}
}

func TestNoDangerousGlobals_Require(t *testing.T) {
	result := analyze(t, "require('fs')")
	if !hasFinding(result.Errors, "no-dangerous-globals") {
		t.Fatalf("expected no-dangerous-globals error for require, got %+v", result)
	}
}

func TestNoDangerousGlobals_Process(t *testing.T) {
	result := analyze(t, "x = process.env.SECRET")
	if !hasFinding(result.Warnings, "no-dangerous-globals") {
		t.Fatalf("expected no-dangerous-globals warning for process, got %+v", result)
	}
}

// TestNoDangerousGlobals_ProcessHonorsOverride proves an explicit
// error-severity override for no-dangerous-globals escalates a bare
// process read too, not just eval/Function/require — the rule's mixed
// default (warn for process) only applies when the host hasn't
// configured an override.
func TestNoDangerousGlobals_ProcessHonorsOverride(t *testing.T) {
	fset := file.NewFileSet()
	src := "x = process.env.SECRET"
	prog, err := parser.ParseFile(fset, "snippet.js", src, 0)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	engine := NewEngine(BuiltinRules())
	cfg := model.AnalysisConfig{
		Enabled:      true,
		BlockOnError: true,
		Rules:        map[string]model.Severity{"no-dangerous-globals": model.SeverityError},
	}
	result := engine.Analyze(fset, prog, src, cfg, nil)
	if !hasFinding(result.Errors, "no-dangerous-globals") {
		t.Fatalf("expected overridden no-dangerous-globals error for process, got %+v", result)
	}
	if hasFinding(result.Warnings, "no-dangerous-globals") {
		t.Fatalf("process finding should have escalated to error, not stayed a warning: %+v", result)
	}
}

func TestNoAdapterArgSecrets(t *testing.T) {
	result := analyze(t, "adapters.api.call('sk-abcdefghijklmnopqrst')")
	if !hasFinding(result.Warnings, "no-adapter-arg-secrets") {
		t.Fatalf("expected no-adapter-arg-secrets warning, got %+v", result)
	}
}

func TestRuleOffRemovesFromVisitorMap(t *testing.T) {
	fset := file.NewFileSet()
	src := "while(true) { console.log('x'); }"
	prog, err := parser.ParseFile(fset, "snippet.js", src, 0)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	engine := NewEngine(BuiltinRules())
	cfg := model.AnalysisConfig{Enabled: true, Rules: map[string]model.Severity{"no-infinite-loop": model.SeverityOff}}
	result := engine.Analyze(fset, prog, src, cfg, nil)
	if hasFinding(result.Errors, "no-infinite-loop") {
		t.Fatalf("expected no-infinite-loop to be suppressed when off, got %+v", result)
	}
}

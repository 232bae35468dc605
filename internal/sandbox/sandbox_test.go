package sandbox

import (
	"context"
	"testing"

	"github.com/dev-console/agentsandbox/internal/model"
	"github.com/dev-console/agentsandbox/internal/rules"
)

type noopInvoker struct{}

func (noopInvoker) Invoke(adapterName, methodName string, args any) (any, error) { return nil, nil }

type staticCatalog map[string][]string

func (c staticCatalog) MethodCatalog() map[string][]string { return c }

func newTestOrchestrator() *Orchestrator {
	return New(rules.NewEngine(rules.BuiltinRules()), staticCatalog{}, noopInvoker{}, nil, nil)
}

func TestExecute_SimpleExpression(t *testing.T) {
	o := newTestOrchestrator()
	cfg := model.DefaultSandboxConfig()
	res := o.Execute(context.Background(), Request{Code: "1 + 1", Config: cfg, Truncate: true})
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
}

func TestExecute_SyntaxErrorShortCircuits(t *testing.T) {
	o := newTestOrchestrator()
	cfg := model.DefaultSandboxConfig()
	res := o.Execute(context.Background(), Request{Code: "function (", Config: cfg})
	if res.Success || res.Error == nil || res.Error.Name != model.ErrKindSyntax {
		t.Fatalf("expected SyntaxError, got %+v", res)
	}
}

func TestExecute_AnalysisErrorBlocksByDefault(t *testing.T) {
	o := newTestOrchestrator()
	cfg := model.DefaultSandboxConfig()
	res := o.Execute(context.Background(), Request{Code: "while (true) {}", Config: cfg})
	if res.Success || res.Error == nil || res.Error.Name != model.ErrKindAnalysis {
		t.Fatalf("expected AnalysisError, got %+v", res)
	}
}

func TestExecute_AnalysisWarningsDoNotBlock(t *testing.T) {
	o := newTestOrchestrator()
	cfg := model.DefaultSandboxConfig()
	res := o.Execute(context.Background(), Request{Code: "for (let i = 0; i < 3; i++) { for (let j = 0; j < 3; j++) {} } return 1;", Config: cfg})
	if !res.Success {
		t.Fatalf("expected success despite nested-loop warning, got %+v", res)
	}
	foundWarning := false
	for _, l := range res.Logs {
		if l != "" {
			foundWarning = true
		}
	}
	if !foundWarning {
		t.Fatalf("expected at least one log line, got %+v", res.Logs)
	}
}

func TestExecute_TruncatesLargeArray(t *testing.T) {
	o := newTestOrchestrator()
	cfg := model.DefaultSandboxConfig()
	res := o.Execute(context.Background(), Request{
		Code:     "return Array.from({length: 50}, (_, i) => i);",
		Config:   cfg,
		Truncate: true,
		MaxItems: 5,
	})
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	if !res.Truncated {
		t.Fatalf("expected truncation to have occurred")
	}
	arr, ok := res.Value.([]any)
	if !ok || len(arr) != 5 { // 4 items + 1 omitted-count marker, capped at MaxItems
		t.Fatalf("expected 5-element truncated array, got %#v", res.Value)
	}
}

func TestExecute_BlockedNetworkThrows(t *testing.T) {
	o := newTestOrchestrator()
	cfg := model.DefaultSandboxConfig()
	res := o.Execute(context.Background(), Request{
		Code:   "try { fetch('http://example.com'); return 'reached'; } catch (e) { return e.message; }",
		Config: cfg,
	})
	if !res.Success {
		t.Fatalf("expected success (caught exception), got %+v", res)
	}
}

package rules

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/file"

	"github.com/dev-console/agentsandbox/internal/model"
)

// Visitor is invoked once per matching node, with the rule's effective
// severity under the current config. It reports findings through report;
// it never mutates shared state (spec §3: "rules are side-effect-free
// w.r.t. shared state").
type Visitor func(node ast.Node, rc *RunContext, severity model.Severity)

// Rule is the spec §3 rule record.
type Rule struct {
	Name            string
	DefaultSeverity model.Severity
	Description     string
	NodeKinds       []string
	Visit           Visitor
}

// RunContext is threaded through one analysis pass: it carries the
// source text (for the line-number oracle), the file set the program was
// parsed with, the finding sink, and the host's severity overrides (so a
// rule whose Visit reports findings at more than one severity, like
// no-dangerous-globals, can tell an explicit override from its own
// unconfigured per-finding default).
type RunContext struct {
	Source    string
	FileSet   *file.FileSet
	Overrides map[string]model.Severity
	report    func(model.Finding)
}

// Report appends a finding at node's start offset.
func (rc *RunContext) Report(node ast.Node, ruleName string, severity model.Severity, message string) {
	line, col := rc.position(node)
	rc.report(model.Finding{Rule: ruleName, Severity: severity, Message: message, Line: line, Column: col})
}

// position computes the line-number oracle on demand from the source
// string and node start offset (spec §4.3).
func (rc *RunContext) position(node ast.Node) (line, col int) {
	if rc.FileSet == nil {
		return 0, 0
	}
	pos := rc.FileSet.Position(node.Idx0())
	return pos.Line, pos.Column
}

// ruleBinding pairs a rule with its effective severity for one visitor map.
type ruleBinding struct {
	rule     *Rule
	severity model.Severity
}

type visitorMap map[string][]ruleBinding

// Engine owns the builtin rule set and memoizes visitor maps per distinct
// severity-override configuration (spec §4.3: LRU, capacity 10, keyed by
// the serialized overrides; mutation is mutex-guarded per spec §5's
// shared-resource policy).
type Engine struct {
	rules []*Rule

	mu    sync.Mutex
	cache *lru.Cache[string, visitorMap]
}

// NewEngine constructs an engine over the given rule set (ordinarily
// BuiltinRules()), with a capacity-10 LRU visitor-map cache.
func NewEngine(rules []*Rule) *Engine {
	cache, err := lru.New[string, visitorMap](10)
	if err != nil {
		// Only returns an error for a non-positive size, which 10 never is.
		panic(fmt.Sprintf("rules: unreachable lru.New failure: %v", err))
	}
	return &Engine{rules: rules, cache: cache}
}

// cacheKey serializes the severity override table into a stable string:
// rule names sorted, "name=severity" pairs joined by ";".
func cacheKey(overrides map[string]model.Severity) string {
	if len(overrides) == 0 {
		return ""
	}
	names := make([]string, 0, len(overrides))
	for name := range overrides {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+"="+string(overrides[name]))
	}
	return strings.Join(parts, ";")
}

// visitorMapFor returns the memoized (or freshly built) visitor map for
// overrides, building it in O(|rules|) only on a cache miss.
func (e *Engine) visitorMapFor(overrides map[string]model.Severity) visitorMap {
	key := cacheKey(overrides)

	e.mu.Lock()
	defer e.mu.Unlock()

	if vm, ok := e.cache.Get(key); ok {
		return vm
	}

	vm := make(visitorMap)
	for _, rule := range e.rules {
		severity := rule.DefaultSeverity
		if override, ok := overrides[rule.Name]; ok {
			severity = override
		}
		if severity == model.SeverityOff {
			continue // off removes the rule from the visitor map entirely
		}
		binding := ruleBinding{rule: rule, severity: severity}
		for _, kind := range rule.NodeKinds {
			vm[kind] = append(vm[kind], binding)
		}
	}
	e.cache.Add(key, vm)
	return vm
}

// Analyze walks program once, dispatching to the effective visitor map,
// and returns the accumulated findings plus elapsed time (spec §3, §4.3).
// analysisConfig.Rules supplies the severity overrides; exceeding the
// 50ms performance budget is reported via slow (nil-safe) for the host to
// log — it never fails the request.
func (e *Engine) Analyze(program *file.FileSet, prog *ast.Program, source string, cfg model.AnalysisConfig, slow func(elapsed time.Duration)) model.AnalysisResult {
	start := time.Now()
	vm := e.visitorMapFor(cfg.Rules)

	var warnings, errors []model.Finding
	rc := &RunContext{Source: source, FileSet: program, Overrides: cfg.Rules, report: func(f model.Finding) {
		if f.Severity == model.SeverityError {
			errors = append(errors, f)
		} else {
			warnings = append(warnings, f)
		}
	}}

	Walk(prog, func(n ast.Node) {
		kind := nodeKind(n)
		for _, binding := range vm[kind] {
			binding.rule.Visit(n, rc, binding.severity)
		}
	})

	elapsed := time.Since(start)
	if slow != nil && elapsed > 50*time.Millisecond {
		slow(elapsed)
	}
	return model.AnalysisResult{Warnings: warnings, Errors: errors, ElapsedMs: float64(elapsed.Microseconds()) / 1000.0}
}

// Package sandbox implements C6, the sandbox orchestrator: it composes the
// network policy generator (C1), normalizer (C2), rule engine (C3), worker
// (C4), and adapter-call bridge (C5) into the seven-step per-request
// sequence of spec §4.6, and owns the five-state run state machine
// (created → analyzed → worker-initializing → worker-ready → executing →
// {resolved|timed-out|errored}).
package sandbox

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dev-console/agentsandbox/internal/model"
	"github.com/dev-console/agentsandbox/internal/netpolicy"
	"github.com/dev-console/agentsandbox/internal/normalize"
	"github.com/dev-console/agentsandbox/internal/rules"
	"github.com/dev-console/agentsandbox/internal/worker"
)

// Request is a snippet request (spec §3): an opaque source string plus
// optional truncation parameters.
type Request struct {
	Code            string
	Config          model.SandboxConfig
	Truncate        bool
	MaxItems        int
	MaxStringLength int
}

// CatalogProvider supplies the {adapter-name -> method-name[]} structure a
// run's adapters.* proxies are built from. Queried fresh on every Execute
// call (not snapshotted at construction) so an adapter registered after the
// orchestrator was built is reachable from sandboxed code as soon as
// list()/search() report it, rather than only after a restart.
type CatalogProvider interface {
	MethodCatalog() map[string][]string
}

// Orchestrator runs requests end to end.
type Orchestrator struct {
	Engine  *rules.Engine
	Catalog CatalogProvider
	Invoker worker.AdapterInvoker
	Fetch   worker.FetchFunc
	Log     *zap.Logger
}

// New builds an Orchestrator. engine may be rules.NewEngine(rules.BuiltinRules()).
func New(engine *rules.Engine, catalog CatalogProvider, invoker worker.AdapterInvoker, fetch worker.FetchFunc, log *zap.Logger) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{Engine: engine, Catalog: catalog, Invoker: invoker, Fetch: fetch, Log: log}
}

// Execute runs req through the full pipeline (spec §4.6 steps 1-7).
func (o *Orchestrator) Execute(ctx context.Context, req Request) model.ExecutionResult {
	start := time.Now()
	cfg := req.Config

	source := req.Code
	var logs []string

	// Step 1: normalize.
	if cfg.Normalize {
		outcome := normalize.Normalize(source, normalize.Options{AutoReturn: true})
		if outcome.Kind == model.KindParseError {
			return model.ExecutionResult{
				Success:         false,
				Error:           &model.ExecutionError{Name: model.ErrKindSyntax, Message: outcome.Message},
				ExecutionTimeMs: elapsedMs(start),
			}
		}
		source = outcome.Source
	}

	// Step 2: analyze.
	if cfg.Analysis.Enabled {
		result, err := rules.AnalyzeSource(o.Engine, source, cfg.Analysis)
		if err != nil {
			return model.ExecutionResult{
				Success:         false,
				Error:           &model.ExecutionError{Name: model.ErrKindSyntax, Message: err.Error()},
				ExecutionTimeMs: elapsedMs(start),
			}
		}
		for _, w := range result.Warnings {
			logs = append(logs, fmt.Sprintf("[analysis:%s] %s", w.Rule, w.Message))
		}
		if result.Blocked(cfg.Analysis) {
			first := result.Errors[0]
			return model.ExecutionResult{
				Success:         false,
				Error:           &model.ExecutionError{Name: model.ErrKindAnalysis, Message: fmt.Sprintf("%s: %s", first.Rule, first.Message)},
				Logs:            logs,
				ExecutionTimeMs: elapsedMs(start),
			}
		}
		for _, e := range result.Errors {
			logs = append(logs, fmt.Sprintf("[analysis:%s] %s", e.Rule, e.Message))
		}
	}

	// Step 3: network preamble.
	preamble := netpolicy.Generate(cfg.NetworkPolicy)

	// Steps 4-6: spawn worker, run to completion or timeout.
	timeoutMs := cfg.TimeoutMs
	if timeoutMs <= 0 {
		timeoutMs = model.DefaultTimeoutMs
	}
	runCtx, cancel := context.WithTimeout(ctx, time.Duration(timeoutMs)*time.Millisecond)
	defer cancel()

	res := worker.Execute(runCtx, cfg, worker.Request{
		Source:          source,
		Preamble:        preamble,
		Catalog:         o.Catalog.MethodCatalog(),
		InjectedGlobals: cfg.InjectedGlobals,
		Invoker:         o.Invoker,
		Fetch:           o.Fetch,
		Log:             o.Log,
	})
	res.Logs = append(logs, res.Logs...)
	res.ExecutionTimeMs = elapsedMs(start)

	// Step 7: result summarization (success values only; errors are
	// already bounded at MaxErrorStackFrames by the worker).
	if res.Success && req.Truncate {
		limits := DefaultExecuteLimits()
		if req.MaxItems > 0 {
			limits.MaxItems = req.MaxItems
		}
		if req.MaxStringLength > 0 {
			limits.MaxStringLength = req.MaxStringLength
		}
		summarized, truncated := Summarize(res.Value, limits)
		res.Value = summarized
		res.Truncated = res.Truncated || truncated
	}

	return res
}

func elapsedMs(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}

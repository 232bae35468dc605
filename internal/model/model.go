// Package model holds the data types shared across the sandboxed execution
// pipeline: the normalizer, the rule engine, the worker, the adapter-call
// bridge, and the orchestrator all exchange values of these shapes rather
// than reaching into each other's internals.
package model

import "encoding/json"

// ParamType is the closed set of semantic types an adapter method parameter
// or named-task input may declare.
type ParamType string

const (
	ParamString  ParamType = "string"
	ParamNumber  ParamType = "number"
	ParamBoolean ParamType = "boolean"
	ParamObject  ParamType = "object"
	ParamArray   ParamType = "array"
)

// Severity is a finding's or rule override's gating level.
type Severity string

const (
	SeverityWarn  Severity = "warn"
	SeverityError Severity = "error"
	SeverityOff   Severity = "off"
)

// NetworkMode selects which of the three network policies C1 generates.
type NetworkMode string

const (
	NetworkBlocked      NetworkMode = "blocked"
	NetworkAllowList    NetworkMode = "allow-list"
	NetworkUnrestricted NetworkMode = "unrestricted"
)

// NetworkPolicy is the variant described in spec §3: blocked | allow-list(D) | unrestricted.
type NetworkPolicy struct {
	Mode    NetworkMode `json:"mode"`
	Domains []string    `json:"domains,omitempty"`
}

// DefaultNetworkPolicy is blocked, per spec §3.
func DefaultNetworkPolicy() NetworkPolicy {
	return NetworkPolicy{Mode: NetworkBlocked}
}

// AnalysisConfig is the per-rule severity override table plus the
// block-on-error gate (spec §3, §6 configuration surface).
type AnalysisConfig struct {
	Enabled      bool                `json:"enabled"`
	BlockOnError bool                `json:"block_on_error"`
	Rules        map[string]Severity `json:"rules,omitempty"`
}

// SandboxConfig is the per-run configuration record (spec §3).
type SandboxConfig struct {
	TimeoutMs       int             `json:"timeout_ms"`
	MemoryHintMB    int             `json:"memory_hint_mb,omitempty"`
	AllowAsync      bool            `json:"allow_async"`
	InjectedGlobals map[string]any  `json:"injected_globals,omitempty"`
	NetworkPolicy   NetworkPolicy   `json:"network_policy"`
	Normalize       bool            `json:"normalize"`
	Analysis        AnalysisConfig  `json:"analysis"`
}

// DefaultTimeoutMs is the spec §3 default sandbox timeout.
const DefaultTimeoutMs = 5000

// DefaultSandboxConfig returns the spec's documented defaults: 5000ms
// timeout, blocked network, normalization and analysis both on,
// block-on-error true.
func DefaultSandboxConfig() SandboxConfig {
	return SandboxConfig{
		TimeoutMs:     DefaultTimeoutMs,
		AllowAsync:    true,
		NetworkPolicy: DefaultNetworkPolicy(),
		Normalize:     true,
		Analysis: AnalysisConfig{
			Enabled:      true,
			BlockOnError: true,
			Rules:        map[string]Severity{},
		},
	}
}

// NormalizationKind tags the shape the normalizer found (spec §3).
type NormalizationKind string

const (
	KindRewrittenExpression         NormalizationKind = "rewritten-expression"
	KindRewrittenStatements         NormalizationKind = "rewritten-statements"
	KindUnchangedAlreadyReturns     NormalizationKind = "unchanged-already-returns"
	KindUnchangedFunctionDeclaration NormalizationKind = "unchanged-function-declaration"
	KindParseError                  NormalizationKind = "parse-error"
	// KindUnchangedStatements covers the spec §4.2 behavior-matrix row
	// "Other statement-terminated program" — a program whose last statement
	// is neither a bare expression nor a function declaration, and which
	// contains no top-level return. Left unchanged like the two named
	// unchanged-* variants above it.
	KindUnchangedStatements NormalizationKind = "unchanged-statements"
)

// NormalizationOutcome is the tagged variant the normalizer returns (spec §3).
type NormalizationOutcome struct {
	Kind     NormalizationKind `json:"kind"`
	Source   string            `json:"source"`
	Modified bool              `json:"modified"`
	Message  string            `json:"message,omitempty"` // populated only for KindParseError
}

// Finding is one analyzer observation (spec §3, §4.3).
type Finding struct {
	Rule     string   `json:"rule"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	Line     int      `json:"line,omitempty"`
	Column   int      `json:"column,omitempty"`
}

// AnalysisResult is the rule engine's verdict for one snippet (spec §3).
type AnalysisResult struct {
	Warnings  []Finding `json:"warnings"`
	Errors    []Finding `json:"errors"`
	ElapsedMs float64   `json:"elapsed_ms"`
}

// Blocked reports whether this result must stop execution under cfg.
func (r AnalysisResult) Blocked(cfg AnalysisConfig) bool {
	return cfg.BlockOnError && len(r.Errors) > 0
}

// ParamSchema describes one adapter-method parameter or named-task input
// (spec §3, §6).
type ParamSchema struct {
	Type        ParamType `json:"type"`
	Required    bool      `json:"required,omitempty"`
	Description string    `json:"description,omitempty"`
	Default     any       `json:"default,omitempty"`
}

// AdapterMethodDescriptor is the published, callable-handle-bearing
// signature of one adapter method (spec §3).
type AdapterMethodDescriptor struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Parameters  map[string]ParamSchema `json:"parameters,omitempty"`
	Execute     AdapterMethodFunc      `json:"-"`
}

// AdapterMethodFunc is the host-side handler an adapter method descriptor
// wraps. It runs synchronously from the bridge's perspective; the bridge
// itself handles the worker-side promise.
type AdapterMethodFunc func(params json.RawMessage) (any, error)

// Adapter is a named collection of methods implemented on the host (spec
// §6 host-facing contract: `{name, description?, version?, tools: {...}}`).
type Adapter struct {
	Name        string                             `json:"name"`
	Description string                             `json:"description,omitempty"`
	Version     string                             `json:"version,omitempty"`
	Methods     map[string]AdapterMethodDescriptor `json:"tools"`
	Dispose     func()                             `json:"-"`
}

// NamedTaskInput mirrors ParamSchema but without the `required`/closed type
// set constraint named tasks get in spec §6 (type is advisory, not enforced).
type NamedTaskInput struct {
	Type        string `json:"type,omitempty"`
	Description string `json:"description,omitempty"`
	Default     any    `json:"default,omitempty"`
}

// TaskRunFunc is the host-supplied body of a named task.
type TaskRunFunc func(ctx TaskContext) (any, error)

// TaskContext exposes inputs and the adapter catalog to a running named task.
type TaskContext struct {
	Inputs   map[string]any
	Adapters AdapterCatalog
}

// AdapterCatalog is the read-only view of registered adapters a named task
// (or the worker's adapter proxies) may call through.
type AdapterCatalog interface {
	Lookup(adapter, method string) (AdapterMethodDescriptor, bool)
}

// NamedTask is a host-registered skill (spec §6).
type NamedTask struct {
	Name        string                    `json:"name"`
	Description string                    `json:"description,omitempty"`
	Inputs      map[string]NamedTaskInput `json:"inputs,omitempty"`
	Run         TaskRunFunc               `json:"-"`
	TimeoutMs   int                       `json:"timeout_ms,omitempty"`
}

// ExecutionError is the failure branch of an ExecutionResult (spec §3).
type ExecutionError struct {
	Name    string   `json:"name"`
	Message string   `json:"message"`
	Stack   []string `json:"stack,omitempty"`
}

// ExecutionResult is what a worker run (or the orchestrator wrapping it)
// produces (spec §3).
type ExecutionResult struct {
	Success         bool            `json:"success"`
	Value           any             `json:"value,omitempty"`
	Error           *ExecutionError `json:"error,omitempty"`
	Logs            []string        `json:"logs"`
	ExecutionTimeMs float64         `json:"execution_time_ms"`
	Truncated       bool            `json:"truncated,omitempty"`
}

// Wire-visible error kinds (spec §7). These are the `name` field on a
// failed ExecutionError and on StructuredError.Error in the MCP surface.
const (
	ErrKindSyntax               = "SyntaxError"
	ErrKindAnalysis             = "AnalysisError"
	ErrKindTimeout              = "TimeoutError"
	ErrKindWorker               = "WorkerError"
	ErrKindRuntime              = "RuntimeError"
	ErrKindAdapterMethodNotFound = "AdapterMethodNotFound"
	ErrKindNetworkBlocked       = "NetworkBlocked"
	ErrKindTaskNotFound         = "TaskNotFound"
)

// MaxErrorStackFrames is the spec §6 ceiling on reported stack frames.
const MaxErrorStackFrames = 5

// MaxLogLinesPerRun is the spec §6 ceiling on console log lines per run.
const MaxLogLinesPerRun = 20

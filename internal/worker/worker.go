// Package worker implements C4, the isolated interpreter worker: one
// goja.Runtime plus one goja_nodejs/eventloop.EventLoop per run, owned by a
// single dedicated goroutine (spec §4.4, §9 Open Question on worker
// isolation — resolved as goroutine-level isolation, see DESIGN.md).
//
// A run's lifecycle matches spec §4.6's state machine: this package covers
// worker-initializing through {resolved|timed-out|errored}; created and
// analyzed happen upstream in the orchestrator before Execute is called.
package worker

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/eventloop"
	"go.uber.org/zap"

	"github.com/dev-console/agentsandbox/internal/bridge"
	"github.com/dev-console/agentsandbox/internal/model"
	"github.com/dev-console/agentsandbox/internal/util"
)

// AdapterInvoker is the host-side entry point a worker's adapter-call
// proxies dispatch through. It is expected to block on real I/O, so every
// call is made from its own goroutine (see installAdapterProxies).
type AdapterInvoker interface {
	Invoke(adapterName, methodName string, args any) (any, error)
}

// Request bundles everything Execute needs for one run.
type Request struct {
	Source          string
	Preamble        string // from netpolicy.Generate, already composed
	Catalog         map[string][]string
	InjectedGlobals map[string]any
	Invoker         AdapterInvoker
	Fetch           FetchFunc // bound as __hostFetch for allow-list network mode; nil when not needed
	Log             *zap.Logger
}

// FetchFunc performs the real outbound HTTP GET that an allow-list-mode
// fetch() delegates to after passing the hostname/domain checks.
type FetchFunc func(ctx context.Context, rawURL string) (status int, body string, err error)

// Execute runs req.Source to completion or until ctx is cancelled,
// returning a populated model.ExecutionResult. It never panics: any goja or
// internal failure is folded into the result's error branch (spec §4.4, §7).
func Execute(ctx context.Context, cfg model.SandboxConfig, req Request) model.ExecutionResult {
	log := req.Log
	if log == nil {
		log = zap.NewNop()
	}

	start := time.Now()
	resultCh := make(chan model.ExecutionResult, 1)
	vmReadyCh := make(chan *goja.Runtime, 1)
	pending := bridge.NewPendingMap()

	util.SafeGo(func() {
		runWorker(cfg, req, start, pending, vmReadyCh, resultCh, log)
	})

	var vm *goja.Runtime
	select {
	case vm = <-vmReadyCh:
	case <-ctx.Done():
		pending.Close()
		// The event loop may not have started yet, so there is no *goja.Runtime
		// to interrupt here. It still will shortly (runWorker always sends on
		// vmReadyCh before running req.Source), so hand interrupting it off to
		// a background goroutine rather than leaving a timed-out snippet to
		// run unbounded on its own goroutine.
		util.SafeGo(func() {
			select {
			case vm := <-vmReadyCh:
				vm.Interrupt("execution timed out")
			case <-time.After(time.Second):
			}
		})
		return timeoutResult(start, nil)
	}

	select {
	case res := <-resultCh:
		return res
	case <-ctx.Done():
		pending.Close()
		if vm != nil {
			vm.Interrupt("execution timed out")
		}
		// Give the interrupted loop a brief window to unwind and deliver
		// its own (interrupted) result before falling back to a synthetic
		// timeout result, so logs collected up to the interrupt point are
		// not discarded.
		select {
		case res := <-resultCh:
			res.Error = &model.ExecutionError{Name: model.ErrKindTimeout, Message: "execution timed out"}
			res.Success = false
			return res
		case <-time.After(200 * time.Millisecond):
			return timeoutResult(start, nil)
		}
	}
}

func timeoutResult(start time.Time, logs []string) model.ExecutionResult {
	return model.ExecutionResult{
		Success:         false,
		Error:           &model.ExecutionError{Name: model.ErrKindTimeout, Message: "execution timed out"},
		Logs:            logs,
		ExecutionTimeMs: elapsedMs(start),
	}
}

func elapsedMs(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}

// collector accumulates console output capped at model.MaxLogLinesPerRun
// (spec §4.4, §6).
type collector struct {
	mu        sync.Mutex
	lines     []string
	truncated bool
}

func (c *collector) add(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.lines) >= model.MaxLogLinesPerRun {
		c.truncated = true
		return
	}
	c.lines = append(c.lines, line)
}

func (c *collector) snapshot() ([]string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.lines))
	copy(out, c.lines)
	return out, c.truncated
}

func runWorker(cfg model.SandboxConfig, req Request, start time.Time, pending *bridge.PendingMap, vmReadyCh chan<- *goja.Runtime, resultCh chan<- model.ExecutionResult, log *zap.Logger) {
	defer pending.Close()

	loop := eventloop.NewEventLoop()
	logs := &collector{}
	var nextCallID int64
	var once sync.Once
	done := make(chan struct{})

	send := func(res model.ExecutionResult) {
		once.Do(func() {
			lines, truncated := logs.snapshot()
			res.Logs = lines
			res.Truncated = res.Truncated || truncated
			res.ExecutionTimeMs = elapsedMs(start)
			resultCh <- res
			close(done)
		})
	}

	loop.Start()
	defer loop.Stop()

	loop.RunOnLoop(func(vm *goja.Runtime) {
		vmReadyCh <- vm

		installConsole(vm, logs)
		if _, err := vm.RunString(helperLibrarySource); err != nil {
			send(model.ExecutionResult{Success: false, Error: &model.ExecutionError{Name: model.ErrKindWorker, Message: "helper library failed to install: " + err.Error()}})
			return
		}
		if req.Preamble != "" {
			if err := installNetPreamble(vm, loop, cfg, req); err != nil {
				send(model.ExecutionResult{Success: false, Error: &model.ExecutionError{Name: model.ErrKindWorker, Message: "network preamble failed to install: " + err.Error()}})
				return
			}
		}
		installInjectedGlobals(vm, req.InjectedGlobals)
		installAdapterProxies(vm, loop, req.Catalog, pending, &nextCallID, req.Invoker, log)

		wrapped := "(async function(){\n" + req.Source + "\n})"
		prog, err := goja.Compile("snippet.js", wrapped, true)
		if err != nil {
			send(model.ExecutionResult{Success: false, Error: &model.ExecutionError{Name: model.ErrKindRuntime, Message: err.Error()}})
			return
		}
		fnVal, err := vm.RunProgram(prog)
		if err != nil {
			send(runtimeErrorResult(err))
			return
		}
		call, ok := goja.AssertFunction(fnVal)
		if !ok {
			send(model.ExecutionResult{Success: false, Error: &model.ExecutionError{Name: model.ErrKindWorker, Message: "compiled snippet is not callable"}})
			return
		}
		retVal, err := call(goja.Undefined())
		if err != nil {
			send(runtimeErrorResult(err))
			return
		}
		settle(vm, retVal, send)
	})

	// Block until send() has fired exactly once. loop.Stop() (deferred
	// above) only returns once all queued/pending loop work has drained,
	// so this keeps the goroutine (and the event loop) alive until a
	// result exists or the caller gives up and interrupts the runtime.
	<-done
}

// settle resolves the outer send() callback from whatever val's async
// wrapper function returned: either a settled/pending Promise (the normal
// case, since the wrapper is always `async function`) or, defensively, a
// bare value.
func settle(vm *goja.Runtime, val goja.Value, send func(model.ExecutionResult)) {
	promise, ok := val.Export().(*goja.Promise)
	if !ok {
		send(model.ExecutionResult{Success: true, Value: val.Export()})
		return
	}
	switch promise.State() {
	case goja.PromiseStateFulfilled:
		send(model.ExecutionResult{Success: true, Value: exportValue(promise.Result())})
		return
	case goja.PromiseStateRejected:
		send(rejectionResult(promise.Result()))
		return
	}

	// Pending: attach a .then handler and wait for the microtask queue
	// (driven by the event loop) to settle it, which may itself be
	// waiting on an in-flight adapter call.
	obj := val.ToObject(vm)
	thenFn, ok := goja.AssertFunction(obj.Get("then"))
	if !ok {
		send(model.ExecutionResult{Success: false, Error: &model.ExecutionError{Name: model.ErrKindWorker, Message: "returned promise has no then()"}})
		return
	}
	onResolve := vm.ToValue(func(call goja.FunctionCall) goja.Value {
		var arg goja.Value = goja.Undefined()
		if len(call.Arguments) > 0 {
			arg = call.Arguments[0]
		}
		send(model.ExecutionResult{Success: true, Value: exportValue(arg)})
		return goja.Undefined()
	})
	onReject := vm.ToValue(func(call goja.FunctionCall) goja.Value {
		var arg goja.Value = goja.Undefined()
		if len(call.Arguments) > 0 {
			arg = call.Arguments[0]
		}
		send(rejectionResult(arg))
		return goja.Undefined()
	})
	if _, err := thenFn(val, onResolve, onReject); err != nil {
		send(model.ExecutionResult{Success: false, Error: &model.ExecutionError{Name: model.ErrKindWorker, Message: "then() attach failed: " + err.Error()}})
	}
}

func exportValue(v goja.Value) any {
	if v == nil {
		return nil
	}
	return v.Export()
}

func rejectionResult(reason goja.Value) model.ExecutionResult {
	name, message, stack := decomposeError(reason)
	return model.ExecutionResult{
		Success: false,
		Error:   &model.ExecutionError{Name: name, Message: message, Stack: stack},
	}
}

func runtimeErrorResult(err error) model.ExecutionResult {
	if exc, ok := err.(*goja.Exception); ok {
		name, message, stack := decomposeError(exc.Value())
		return model.ExecutionResult{Success: false, Error: &model.ExecutionError{Name: name, Message: message, Stack: stack}}
	}
	if _, ok := err.(*goja.InterruptedError); ok {
		return model.ExecutionResult{Success: false, Error: &model.ExecutionError{Name: model.ErrKindTimeout, Message: "execution timed out"}}
	}
	return model.ExecutionResult{Success: false, Error: &model.ExecutionError{Name: model.ErrKindRuntime, Message: err.Error()}}
}

// decomposeError pulls {message, stack} out of a thrown JS value, falling
// back to its string form for non-Error throws, and caps the stack at
// model.MaxErrorStackFrames (spec §6, §7). The returned name is always
// model.ErrKindRuntime: every user-code throw is a RuntimeError on the
// wire regardless of what the thrown value's own `.name` says (a plain
// `throw new Error(...)` has `.name === "Error"`, and `throw new
// SyntaxError(...)`/`TypeError(...)` would otherwise collide with
// model.ErrKindSyntax, a kind reserved for a normalizer parse failure that
// never spawned a worker at all).
func decomposeError(v goja.Value) (name, message string, stack []string) {
	name = model.ErrKindRuntime
	if v == nil {
		return name, "undefined error", nil
	}
	obj, ok := v.(*goja.Object)
	if !ok {
		return name, v.String(), nil
	}
	message = v.String()
	if m := obj.Get("message"); m != nil && m != goja.Undefined() {
		message = m.String()
	}
	if s := obj.Get("stack"); s != nil && s != goja.Undefined() {
		lines := splitLines(s.String())
		if len(lines) > model.MaxErrorStackFrames {
			lines = lines[:model.MaxErrorStackFrames]
		}
		stack = lines
	}
	return name, message, stack
}

func splitLines(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}

// installInjectedGlobals binds cfg-supplied constants as frozen globals
// (spec §3 SandboxConfig.InjectedGlobals), sorted for deterministic
// installation order.
func installInjectedGlobals(vm *goja.Runtime, globals map[string]any) {
	if len(globals) == 0 {
		return
	}
	names := make([]string, 0, len(globals))
	for k := range globals {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, name := range names {
		_ = vm.Set(name, globals[name])
	}
}

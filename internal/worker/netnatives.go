package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/eventloop"

	"github.com/dev-console/agentsandbox/internal/model"
	"github.com/dev-console/agentsandbox/internal/netpolicy"
)

// installNetPreamble evaluates req.Preamble (netpolicy.Generate's output)
// and, when it produced a callable function (blocked and allow-list mode
// both do; unrestricted mode's no-op preamble does not), invokes it with
// the native closures as arguments. fetchFn is only ever real in
// allow-list mode — blocked/unrestricted runs always pass nil, so
// __hostFetch rejects every call regardless of what a preamble does with
// it, closing off the raw-fetch bypass a blocked-mode snippet would
// otherwise have if the native were reachable independent of policy.
func installNetPreamble(vm *goja.Runtime, loop *eventloop.EventLoop, cfg model.SandboxConfig, req Request) error {
	prog, err := goja.Compile("netpreamble.js", req.Preamble, true)
	if err != nil {
		return err
	}
	preambleVal, err := vm.RunProgram(prog)
	if err != nil {
		return err
	}
	preambleFn, ok := goja.AssertFunction(preambleVal)
	if !ok {
		// Unrestricted mode's preamble is comment-only and evaluates to
		// undefined — nothing to call, no natives to pass it.
		return nil
	}

	fetchFn := req.Fetch
	if cfg.NetworkPolicy.Mode != model.NetworkAllowList {
		fetchFn = nil
	}
	classifyHost, domainAllowed, hostFetch := netNatives(vm, loop, fetchFn)
	_, err = preambleFn(goja.Undefined(), classifyHost, domainAllowed, hostFetch)
	return err
}

// netNatives builds the three native closures the generated preamble
// function (netpolicy.Generate) expects as its arguments: hostname
// classification and domain-membership checks run in Go (never
// reimplemented in JS), and the actual outbound request (allow-list mode
// only) goes through fetchFn. These are returned as goja.Value, to be
// passed directly as call arguments to the preamble function — never
// bound as named globals via vm.Set, so no sandboxed snippet can reach
// them outside of the preamble's own closure scope. fetchFn is nil
// whenever the active policy is not allow-list mode (see runWorker), so
// __hostFetch rejects every call in that case regardless of what the
// preamble itself does with it.
func netNatives(vm *goja.Runtime, loop *eventloop.EventLoop, fetchFn FetchFunc) (classifyHost, domainAllowed, hostFetch goja.Value) {
	classifyHost = vm.ToValue(func(host string) bool {
		blocked, _ := netpolicy.ClassifyHost(host)
		return blocked
	})
	domainAllowed = vm.ToValue(func(host string, allowed []string) bool {
		return netpolicy.IsDomainAllowed(host, allowed)
	})
	hostFetch = vm.ToValue(func(call goja.FunctionCall) goja.Value {
		promise, resolve, reject := vm.NewPromise()
		if len(call.Arguments) == 0 {
			reject(vm.NewGoError(adapterError("fetch: missing URL")))
			return vm.ToValue(promise)
		}
		rawURL := call.Arguments[0].String()
		if fetchFn == nil {
			reject(vm.NewGoError(adapterError("fetch: network is not available in this sandbox")))
			return vm.ToValue(promise)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		go func() {
			defer cancel()
			status, body, err := fetchFn(ctx, rawURL)
			loop.RunOnLoop(func(vm *goja.Runtime) {
				if err != nil {
					reject(vm.NewGoError(adapterError("fetch: " + err.Error())))
					return
				}
				resolve(buildFetchResponse(vm, status, body))
			})
		}()
		return vm.ToValue(promise)
	})
	return classifyHost, domainAllowed, hostFetch
}

// buildFetchResponse constructs the minimal Response-shaped object the
// allow-list fetch() wrapper returns (spec §4.1: "fetch resolves with a
// subset of the Response shape"): status, ok, text(), json().
func buildFetchResponse(vm *goja.Runtime, status int, body string) *goja.Object {
	resp := vm.NewObject()
	_ = resp.Set("status", status)
	_ = resp.Set("ok", status >= 200 && status < 300)
	_ = resp.Set("text", func(goja.FunctionCall) goja.Value {
		p, res, _ := vm.NewPromise()
		_ = res(vm.ToValue(body))
		return vm.ToValue(p)
	})
	_ = resp.Set("json", func(goja.FunctionCall) goja.Value {
		p, res, rej := vm.NewPromise()
		var parsed any
		if err := json.Unmarshal([]byte(body), &parsed); err != nil {
			_ = rej(vm.NewGoError(adapterError("fetch: response body is not valid JSON")))
		} else {
			_ = res(vm.ToValue(parsed))
		}
		return vm.ToValue(p)
	})
	return resp
}

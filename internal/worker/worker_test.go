package worker

import (
	"context"
	"testing"
	"time"

	"github.com/dev-console/agentsandbox/internal/model"
	"github.com/dev-console/agentsandbox/internal/netpolicy"
)

type noopInvoker struct{}

func (noopInvoker) Invoke(adapterName, methodName string, args any) (any, error) {
	return nil, nil
}

type echoInvoker struct{}

func (echoInvoker) Invoke(adapterName, methodName string, args any) (any, error) {
	return map[string]any{"adapter": adapterName, "method": methodName, "args": args}, nil
}

func runOnce(t *testing.T, source string, req Request) model.ExecutionResult {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req.Source = source
	if req.Catalog == nil {
		req.Catalog = map[string][]string{}
	}
	if req.Invoker == nil {
		req.Invoker = noopInvoker{}
	}
	return Execute(ctx, model.DefaultSandboxConfig(), req)
}

func TestExecute_SimpleReturn(t *testing.T) {
	res := runOnce(t, "return 1 + 1;", Request{})
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	if n, ok := res.Value.(int64); !ok || n != 2 {
		if f, ok := res.Value.(float64); !ok || f != 2 {
			t.Fatalf("expected value 2, got %#v", res.Value)
		}
	}
}

func TestExecute_ThrowsProducesRuntimeError(t *testing.T) {
	res := runOnce(t, "throw new Error('boom');", Request{})
	if res.Success {
		t.Fatalf("expected failure, got %+v", res)
	}
	if res.Error == nil || res.Error.Message != "boom" {
		t.Fatalf("got %+v", res.Error)
	}
}

func TestExecute_SyntaxErrorIsRuntimeError(t *testing.T) {
	res := runOnce(t, "return (;", Request{})
	if res.Success {
		t.Fatalf("expected failure")
	}
	if res.Error == nil {
		t.Fatalf("expected an error")
	}
}

func TestExecute_ConsoleLogsCollected(t *testing.T) {
	res := runOnce(t, "console.log('hello', 42); return true;", Request{})
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	if len(res.Logs) != 1 || res.Logs[0] != "hello 42" {
		t.Fatalf("got logs %+v", res.Logs)
	}
}

func TestExecute_HelperLibraryAvailable(t *testing.T) {
	res := runOnce(t, "return sum([{n:1},{n:2},{n:3}], 'n');", Request{})
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
}

func TestExecute_AdapterCallResolves(t *testing.T) {
	req := Request{
		Catalog: map[string][]string{"api": {"getData"}},
		Invoker: echoInvoker{},
	}
	res := runOnce(t, "return await adapters.api.getData({id: 7});", req)
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
}

func TestExecute_TimeoutOnInfiniteLoop(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	res := Execute(ctx, model.DefaultSandboxConfig(), Request{
		Source:  "while (true) {}",
		Catalog: map[string][]string{},
		Invoker: noopInvoker{},
	})
	if res.Success {
		t.Fatalf("expected timeout failure")
	}
	if res.Error == nil || res.Error.Name != model.ErrKindTimeout {
		t.Fatalf("expected TimeoutError, got %+v", res.Error)
	}
}

func TestExecute_InjectedGlobals(t *testing.T) {
	req := Request{InjectedGlobals: map[string]any{"TAX_RATE": 0.2}}
	res := runOnce(t, "return TAX_RATE;", req)
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
}

func TestExecute_NetworkBlockedByDefault(t *testing.T) {
	req := Request{Preamble: netpolicy.Generate(model.DefaultNetworkPolicy())}
	res := runOnce(t, "try { fetch('http://example.com'); return 'unreachable'; } catch (e) { return e.message; }", req)
	if !res.Success {
		t.Fatalf("expected success (caught exception), got %+v", res)
	}
}

// TestExecute_NetNativesNotGlobal guards against the natives being
// reachable from user scope: netpolicy.Generate's preamble receives
// __netClassifyHost/__netDomainAllowed/__hostFetch as call arguments, never
// as vm.Set globals, so none of the three names should resolve to anything
// from sandboxed source.
func TestExecute_NetNativesNotGlobal(t *testing.T) {
	req := Request{Preamble: netpolicy.Generate(model.DefaultNetworkPolicy())}
	res := runOnce(t, `return typeof __hostFetch + ',' + typeof __netClassifyHost + ',' + typeof __netDomainAllowed;`, req)
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	if res.Value != "undefined,undefined,undefined" {
		t.Fatalf("expected all three natives unreachable as globals, got %#v", res.Value)
	}
}

// TestExecute_HostFetchNilOutsideAllowList proves a blocked-mode run never
// wires a real FetchFunc through to __hostFetch even if req.Fetch is set:
// runWorker forces it to nil unless NetworkPolicy.Mode is allow-list, so a
// fetch that somehow reached the native would still reject rather than
// perform the real request.
func TestExecute_HostFetchNilOutsideAllowList(t *testing.T) {
	called := false
	req := Request{
		Preamble: netpolicy.Generate(model.DefaultNetworkPolicy()),
		Fetch: func(ctx context.Context, rawURL string) (int, string, error) {
			called = true
			return 200, "should not be reached", nil
		},
	}
	res := runOnce(t, "try { fetch('http://example.com'); return 'unreachable'; } catch (e) { return e.message; }", req)
	if !res.Success {
		t.Fatalf("expected success (caught exception), got %+v", res)
	}
	if called {
		t.Fatalf("blocked-mode fetch must never invoke the real FetchFunc")
	}
}

// TestExecute_AllowListFetchUsesRealFetchFunc proves the inverse: when the
// active policy really is allow-list mode, __hostFetch is wired to the real
// FetchFunc and a fetch() to an allowed domain resolves through it.
func TestExecute_AllowListFetchUsesRealFetchFunc(t *testing.T) {
	cfg := model.SandboxConfig{NetworkPolicy: model.NetworkPolicy{Mode: model.NetworkAllowList, Domains: []string{"example.com"}}}
	req := Request{
		Source:   "return (await fetch('http://example.com/data')).status;",
		Preamble: netpolicy.Generate(cfg.NetworkPolicy),
		Catalog:  map[string][]string{},
		Invoker:  noopInvoker{},
		Fetch: func(ctx context.Context, rawURL string) (int, string, error) {
			return 204, "", nil
		},
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	res := Execute(ctx, cfg, req)
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	if n, ok := res.Value.(int64); !ok || n != 204 {
		if f, ok := res.Value.(float64); !ok || f != 204 {
			t.Fatalf("expected status 204, got %#v", res.Value)
		}
	}
}

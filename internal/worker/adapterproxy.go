package worker

import (
	"sort"
	"sync/atomic"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/eventloop"
	"go.uber.org/zap"

	"github.com/dev-console/agentsandbox/internal/bridge"
)

// installAdapterProxies builds the `adapters.<name>.<method>(args)` surface
// (spec §4.5). Each method call assigns a fresh monotonic id, records a
// pending resolve/reject pair, and dispatches to invoker from a new
// goroutine (since invoker may block on real I/O); the eventual resolve or
// reject is marshalled back onto the loop via loop.RunOnLoop so the
// single-threaded goja.Runtime is never touched concurrently.
func installAdapterProxies(vm *goja.Runtime, loop *eventloop.EventLoop, catalog map[string][]string, pending *bridge.PendingMap, nextCallID *int64, invoker AdapterInvoker, log *zap.Logger) {
	adapters := vm.NewObject()

	names := make([]string, 0, len(catalog))
	for name := range catalog {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, adapterName := range names {
		adapterObj := vm.NewObject()
		methods := append([]string(nil), catalog[adapterName]...)
		sort.Strings(methods)
		for _, methodName := range methods {
			adapterName, methodName := adapterName, methodName
			_ = adapterObj.Set(methodName, func(call goja.FunctionCall) goja.Value {
				var args any
				if len(call.Arguments) > 0 {
					args = call.Arguments[0].Export()
				}

				promise, resolve, reject := vm.NewPromise()
				id := atomic.AddInt64(nextCallID, 1)

				accepted := pending.Add(id, bridge.PendingCall{
					Resolve: func(result any) {
						loop.RunOnLoop(func(vm *goja.Runtime) { resolve(vm.ToValue(result)) })
					},
					Reject: func(errMessage string) {
						loop.RunOnLoop(func(vm *goja.Runtime) { reject(vm.NewGoError(adapterError(errMessage))) })
					},
				})
				if !accepted {
					reject(vm.NewGoError(adapterError("worker is shutting down")))
					return vm.ToValue(promise)
				}

				go func() {
					result, err := invoker.Invoke(adapterName, methodName, args)
					call, ok := pending.Take(id)
					if !ok {
						// Worker already terminated (timeout/error); discard
						// per the stale-message guard (spec §4.5, §4.6).
						return
					}
					if err != nil {
						log.Debug("adapter call failed", zap.String("adapter", adapterName), zap.String("method", methodName), zap.Error(err))
						call.Reject(err.Error())
						return
					}
					call.Resolve(result)
				}()

				return vm.ToValue(promise)
			})
		}
		_ = adapters.Set(adapterName, adapterObj)
	}

	_ = vm.Set("adapters", adapters)
}

type adapterErr struct{ msg string }

func (e adapterErr) Error() string { return e.msg }

func adapterError(msg string) error { return adapterErr{msg} }

// Package registry implements C7, the adapter registry: the set of
// adapters loaded at server startup from host-provided configuration
// (spec §4.7).
package registry

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/dev-console/agentsandbox/internal/model"
)

// Registry holds adapters for the lifetime of the process. Register is
// permitted during serving but must be externally synchronized by the
// host (spec §5 shared-resource policy); Lookup/Enumerate are safe for
// concurrent read access regardless.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]model.Adapter
	log      *zap.Logger
}

// New constructs an empty registry.
func New(log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{adapters: make(map[string]model.Adapter), log: log}
}

// Register adds adapter, idempotently. Re-registering a name already
// present overwrites it and logs a warning rather than erroring (spec
// §4.7: "idempotent; warn on overwrite").
func (r *Registry) Register(adapter model.Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.adapters[adapter.Name]; exists {
		r.log.Warn("adapter registration overwrites an existing adapter", zap.String("adapter", adapter.Name))
	}
	r.adapters[adapter.Name] = adapter
}

// Lookup resolves a method descriptor by (adapter, method) name. It
// implements model.AdapterCatalog so the worker's adapter proxies and
// named-task contexts can share the same interface.
func (r *Registry) Lookup(adapter, method string) (model.AdapterMethodDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[adapter]
	if !ok {
		return model.AdapterMethodDescriptor{}, false
	}
	d, ok := a.Methods[method]
	return d, ok
}

// Get returns the full adapter record by name.
func (r *Registry) Get(name string) (model.Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[name]
	return a, ok
}

// Enumerate returns all registered adapters sorted by name, used by the
// list/search surfaces (spec §4.7, §4.8).
func (r *Registry) Enumerate() []model.Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.Adapter, 0, len(r.adapters))
	for _, a := range r.adapters {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Count reports the number of registered adapters (used in diagnostic
// hints and the health endpoint).
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.adapters)
}

// MethodCatalog builds the {adapter-name -> method-name[]} structure sent
// in the worker's `init` message (spec §4.4 step 2).
func (r *Registry) MethodCatalog() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	catalog := make(map[string][]string, len(r.adapters))
	for name, a := range r.adapters {
		methods := make([]string, 0, len(a.Methods))
		for m := range a.Methods {
			methods = append(methods, m)
		}
		sort.Strings(methods)
		catalog[name] = methods
	}
	return catalog
}

// Signature renders a TypeScript-like method signature for search/list
// presentation (spec §4.8 "emits TypeScript-like signatures for methods").
func Signature(adapterName string, methodName string, d model.AdapterMethodDescriptor) string {
	params := make([]string, 0, len(d.Parameters))
	names := make([]string, 0, len(d.Parameters))
	for name := range d.Parameters {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		p := d.Parameters[name]
		opt := "?"
		if p.Required {
			opt = ""
		}
		params = append(params, fmt.Sprintf("%s%s: %s", name, opt, p.Type))
	}
	joined := ""
	for i, p := range params {
		if i > 0 {
			joined += ", "
		}
		joined += p
	}
	return fmt.Sprintf("%s.%s(%s): Promise<any>", adapterName, methodName, joined)
}

// Invoke dispatches one adapter-call-bridge call (spec §4.5) to the
// registered method's handler. It satisfies worker.AdapterInvoker
// structurally — the worker package never imports registry, keeping the
// dependency direction host-to-sandbox rather than the reverse.
func (r *Registry) Invoke(adapterName, methodName string, args any) (any, error) {
	descriptor, ok := r.Lookup(adapterName, methodName)
	if !ok {
		return nil, fmt.Errorf("%s: %s.%s", model.ErrKindAdapterMethodNotFound, adapterName, methodName)
	}
	payload, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("marshal adapter call arguments: %w", err)
	}
	return descriptor.Execute(payload)
}

// pending.go — monotonic-id pending-call tracking for the adapter-call
// bridge (C5). Adapted from the teacher's internal/queries dispatcher
// (queue-and-poll over a mutex-guarded map keyed by a counter id), here
// driving promise resolve/reject instead of extension-command polling.
package bridge

import "sync"

// PendingCall holds the resolve/reject pair for one in-flight adapter call.
type PendingCall struct {
	Resolve func(result any)
	Reject  func(errMessage string)
}

// PendingMap is a mutex-guarded map from monotonic call id to its pending
// resolver/rejecter pair (spec §3 "Pending adapter call"; spec §4.5 steps
// 1-2). Ids are assigned by the caller (the worker owns the counter, since
// ids are "monotonically-increasing... local to the worker", spec §4.5) —
// this map only tracks what is currently outstanding.
type PendingMap struct {
	mu      sync.Mutex
	pending map[int64]PendingCall
	closed  bool
}

// NewPendingMap returns an empty, open pending map.
func NewPendingMap() *PendingMap {
	return &PendingMap{pending: make(map[int64]PendingCall)}
}

// Add records a pending call under id. Returns false if the map has
// already been closed (the owning worker has terminated) — the caller
// must not emit an adapter-call in that case.
func (p *PendingMap) Add(id int64, call PendingCall) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	p.pending[id] = call
	return true
}

// Resolve looks up id, removes it, and reports the call plus whether it
// was found. The caller invokes Resolve.Resolve/.Reject itself — this
// keeps PendingMap free of any dependency on what "resolve" means for a
// particular runtime value.
//
// Resolution order follows id lookup, not reply order (spec §4.5
// "Ordering": no reliance on FIFO) — callers may arrive in any order and
// each is independently looked up and removed here.
func (p *PendingMap) Take(id int64) (PendingCall, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	call, ok := p.pending[id]
	if ok {
		delete(p.pending, id)
	}
	return call, ok
}

// Close discards every pending call without resolving it (spec §4.5
// "Cancellation": when the worker is terminated, pending calls are
// discarded without resolution on the worker side) and marks the map
// closed so no further call can be added — a stale adapter-result
// arriving after this point has nothing to resolve (spec §4.5
// "Stale-message guard").
func (p *PendingMap) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending = make(map[int64]PendingCall)
	p.closed = true
}

// Len reports the number of currently outstanding calls (diagnostics only).
func (p *PendingMap) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

package reconcile

import "sync"

// reconcileKey identifies one reconciliation unit.
type reconcileKey struct {
	weekID        int64
	participantID int64
}

// inflightGate guarantees at most one in-progress reconciliation per
// (week, participant) key. Colliding triggers are coalesced rather than
// queued: the upstream state they would observe is the same state the
// in-flight run is already persisting.
type inflightGate struct {
	mu   sync.Mutex
	keys map[reconcileKey]struct{}
}

func newInflightGate() *inflightGate {
	return &inflightGate{keys: make(map[reconcileKey]struct{})}
}

// tryAcquire claims the key, returning false when a run is already in
// flight.
func (g *inflightGate) tryAcquire(k reconcileKey) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.keys[k]; busy {
		return false
	}
	g.keys[k] = struct{}{}
	return true
}

func (g *inflightGate) release(k reconcileKey) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.keys, k)
}

package chat

import (
	"slices"
	"sort"
)

// Index maps scopes to their occupant connections and back. Occupants are reported in
// join order. Like Registry it is owned by the Hub goroutine.
type Index struct {
	scopes map[ScopeID]map[ConnID]uint64
	byConn map[ConnID]map[ScopeID]struct{}
	seq    uint64
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{
		scopes: make(map[ScopeID]map[ConnID]uint64),
		byConn: make(map[ConnID]map[ScopeID]struct{}),
	}
}

// Join adds id to scope. Joining twice is a no-op and keeps the original position.
// It reports whether id was added.
func (x *Index) Join(scope ScopeID, id ConnID) bool {
	occupants, ok := x.scopes[scope]
	if !ok {
		occupants = make(map[ConnID]uint64)
		x.scopes[scope] = occupants
	}
	if _, present := occupants[id]; present {
		return false
	}

	x.seq++
	occupants[id] = x.seq

	held, ok := x.byConn[id]
	if !ok {
		held = make(map[ScopeID]struct{})
		x.byConn[id] = held
	}
	held[scope] = struct{}{}
	return true
}

// Leave removes id from scope and reports whether it was there. Empty scopes are dropped.
func (x *Index) Leave(scope ScopeID, id ConnID) bool {
	occupants, ok := x.scopes[scope]
	if !ok {
		return false
	}
	if _, present := occupants[id]; !present {
		return false
	}

	delete(occupants, id)
	if len(occupants) == 0 {
		delete(x.scopes, scope)
	}

	if held, ok := x.byConn[id]; ok {
		delete(held, scope)
		if len(held) == 0 {
			delete(x.byConn, id)
		}
	}
	return true
}

// Occupants returns the connections of scope in join order.
func (x *Index) Occupants(scope ScopeID) []ConnID {
	occupants := x.scopes[scope]
	out := make([]ConnID, 0, len(occupants))
	for id := range occupants {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return occupants[out[i]] < occupants[out[j]] })
	return out
}

// Count returns the number of occupants of scope.
func (x *Index) Count(scope ScopeID) int { return len(x.scopes[scope]) }

// Contains reports whether id occupies scope.
func (x *Index) Contains(scope ScopeID, id ConnID) bool {
	_, ok := x.scopes[scope][id]
	return ok
}

// Scopes returns the scopes id occupies, sorted.
func (x *Index) Scopes(id ConnID) []ScopeID {
	held := x.byConn[id]
	out := make([]ScopeID, 0, len(held))
	for scope := range held {
		out = append(out, scope)
	}
	slices.Sort(out)
	return out
}

// LeaveAll removes id from every scope it occupies and returns those scopes, sorted,
// so each can be notified exactly once.
func (x *Index) LeaveAll(id ConnID) []ScopeID {
	left := x.Scopes(id)
	for _, scope := range left {
		x.Leave(scope, id)
	}
	return left
}

package antichain

import "github.com/timelyprogress/pkg/collections"

// Change describes a single frontier membership transition: Delta is +1 if
// Value entered the frontier, -1 if it left.
type Change[T any] struct {
	Value T
	Delta int64
}

// Delta is one entry of a batch of pending count adjustments.
type Delta[T any] struct {
	Value T
	Count int64
}

// MutableAntichain holds a multiset of T and exposes its minimal antichain
// (the frontier): the set of elements with positive count that are not
// dominated by another such element.
type MutableAntichain[T comparable] struct {
	leq    func(a, b T) bool
	counts map[T]int64
	// scratch amortizes the positives slice frontierSet rebuilds on every
	// call; antichains stay tiny, so a small pooled backing array avoids a
	// fresh allocation per tick without ever growing unbounded.
	scratch *collections.SlicePool[T]
}

// NewMutable builds an empty MutableAntichain ordered by leq.
func NewMutable[T comparable](leq func(a, b T) bool) *MutableAntichain[T] {
	return &MutableAntichain[T]{
		leq:     leq,
		counts:  map[T]int64{},
		scratch: collections.NewSlicePool[T](8),
	}
}

func (m *MutableAntichain[T]) frontierSet() map[T]struct{} {
	positivesPtr := m.scratch.Get()
	defer m.scratch.Put(positivesPtr)

	positives := (*positivesPtr)[:0]
	for t, c := range m.counts {
		if c > 0 {
			positives = append(positives, t)
		}
	}

	frontier := make(map[T]struct{}, len(positives))
	for _, x := range positives {
		dominated := false
		for _, y := range positives {
			if y == x {
				continue
			}
			if m.leq(y, x) {
				dominated = true
				break
			}
		}
		if !dominated {
			frontier[x] = struct{}{}
		}
	}
	*positivesPtr = positives
	return frontier
}

// Elements returns the current frontier, in unspecified order.
func (m *MutableAntichain[T]) Elements() []T {
	out := make([]T, 0, len(m.counts))
	for t := range m.frontierSet() {
		out = append(out, t)
	}
	return out
}

// Update adjusts t's count by delta and returns the resulting frontier
// membership changes (empty if the frontier didn't change).
func (m *MutableAntichain[T]) Update(t T, delta int64) []Change[T] {
	var changes []Change[T]
	m.UpdateIterAnd([]Delta[T]{{Value: t, Count: delta}}, func(v T, d int64) {
		changes = append(changes, Change[T]{Value: v, Delta: d})
	})
	return changes
}

// UpdateIterAnd applies a batch of count adjustments, then invokes cb once
// per element that entered (+1) or left (-1) the frontier as a result.
func (m *MutableAntichain[T]) UpdateIterAnd(deltas []Delta[T], cb func(T, int64)) {
	before := m.frontierSet()
	for _, d := range deltas {
		if d.Count == 0 {
			continue
		}
		m.counts[d.Value] += d.Count
		if m.counts[d.Value] == 0 {
			delete(m.counts, d.Value)
		}
	}
	after := m.frontierSet()
	for t := range after {
		if _, ok := before[t]; !ok {
			cb(t, +1)
		}
	}
	for t := range before {
		if _, ok := after[t]; !ok {
			cb(t, -1)
		}
	}
}

// CountMapSink is the subset of countmap.CountMap[T] that UpdateIntoCM
// writes through; accepting the interface rather than the concrete type
// avoids a package import cycle between antichain and countmap.
type CountMapSink[T any] interface {
	Update(t T, delta int64)
}

// UpdateIntoCM applies deltas and records every frontier change into cm,
// mirroring MutableAntichain::update_into_cm from the data model.
func (m *MutableAntichain[T]) UpdateIntoCM(deltas []Delta[T], cm CountMapSink[T]) {
	m.UpdateIterAnd(deltas, func(t T, d int64) { cm.Update(t, d) })
}

// NegativeCounts returns every element whose raw count is currently
// negative. The frontier computation above tolerates this (it only looks
// at positive counts), but a location is never supposed to carry a
// persistent negative count; callers that maintain that invariant (e.g.
// outstanding message counts) use this to detect a protocol violation.
func (m *MutableAntichain[T]) NegativeCounts() []T {
	var negative []T
	for t, c := range m.counts {
		if c < 0 {
			negative = append(negative, t)
		}
	}
	return negative
}

// RawCount returns t's current raw (possibly negative, possibly zero)
// count, for diagnostics and testing.
func (m *MutableAntichain[T]) RawCount(t T) int64 { return m.counts[t] }

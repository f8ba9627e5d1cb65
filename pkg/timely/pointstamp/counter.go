package pointstamp

import (
	"fmt"

	"github.com/timelyprogress/pkg/collections"
	"github.com/timelyprogress/pkg/timely/countmap"
)

// PointstampCounter holds, for a single subgraph, every per-location bucket
// of pending (T, delta) updates: raw counts accumulated at each source,
// target and graph input, plus the "pushed" buckets that hold the result of
// the most recent propagation pass.
type PointstampCounter[T comparable] struct {
	scopeOutputs []int // output arity of each child scope
	scopeInputs  []int // input arity of each child scope
	numInputs    int
	numOutputs   int

	sourceCounts [][]*countmap.CountMap[T] // [scope][output]
	targetCounts [][]*countmap.CountMap[T] // [scope][input]
	inputCounts  []*countmap.CountMap[T]   // [input]

	targetPushed [][]*countmap.CountMap[T] // [scope][input]
	outputPushed []*countmap.CountMap[T]   // [output]

	// dirty marks which flattened (scope,input) target buckets received an
	// update since the last ClearPushed, so the drain loop in subgraph's
	// propagation pass can skip scopes that stayed untouched since the last
	// tick instead of rescanning the whole child list. ClearPushed clears
	// every pushed bucket and then resets these bits.
	dirtyTargets *collections.Bitset
	scopeInputAt []int // flattened offset of the first input of each scope
}

// New builds a PointstampCounter for a subgraph whose children have the
// given input/output arities (indexed by child/scope index) and which has
// numInputs graph inputs and numOutputs graph outputs.
func New[T comparable](scopeInputs, scopeOutputs []int, numInputs, numOutputs int) *PointstampCounter[T] {
	n := len(scopeInputs)
	pc := &PointstampCounter[T]{
		scopeOutputs: scopeOutputs,
		scopeInputs:  scopeInputs,
		numInputs:    numInputs,
		numOutputs:   numOutputs,
		sourceCounts: make([][]*countmap.CountMap[T], n),
		targetCounts: make([][]*countmap.CountMap[T], n),
		targetPushed: make([][]*countmap.CountMap[T], n),
		inputCounts:  make([]*countmap.CountMap[T], numInputs),
		outputPushed: make([]*countmap.CountMap[T], numOutputs),
		scopeInputAt: make([]int, n),
	}
	flat := 0
	for g := 0; g < n; g++ {
		pc.scopeInputAt[g] = flat
		flat += scopeInputs[g]

		pc.sourceCounts[g] = newCountMapRow[T](scopeOutputs[g])
		pc.targetCounts[g] = newCountMapRow[T](scopeInputs[g])
		pc.targetPushed[g] = newCountMapRow[T](scopeInputs[g])
	}
	pc.dirtyTargets = collections.NewBitset(flat)
	for i := range pc.inputCounts {
		pc.inputCounts[i] = countmap.New[T]()
	}
	for o := range pc.outputPushed {
		pc.outputPushed[o] = countmap.New[T]()
	}
	return pc
}

func newCountMapRow[T comparable](n int) []*countmap.CountMap[T] {
	row := make([]*countmap.CountMap[T], n)
	for i := range row {
		row[i] = countmap.New[T]()
	}
	return row
}

// UpdateSource records a pending (t, delta) at a child's output port. Panics
// if scope/output name a location this counter was never built for, rather
// than silently growing or indexing out of bounds.
func (pc *PointstampCounter[T]) UpdateSource(scope, output int, t T, delta int64) {
	if scope < 0 || scope >= pc.NumScopes() || output < 0 || output >= pc.ScopeOutputs(scope) {
		panic(fmt.Sprintf("pointstamp: UpdateSource(%d,%d) out of range", scope, output))
	}
	pc.sourceCounts[scope][output].Update(t, delta)
}

// UpdateTarget records a pending (t, delta) at a child's input port.
func (pc *PointstampCounter[T]) UpdateTarget(scope, input int, t T, delta int64) {
	if scope < 0 || scope >= pc.NumScopes() || input < 0 || input >= pc.ScopeInputs(scope) {
		panic(fmt.Sprintf("pointstamp: UpdateTarget(%d,%d) out of range", scope, input))
	}
	pc.targetCounts[scope][input].Update(t, delta)
	pc.dirtyTargets.Set(pc.scopeInputAt[scope] + input)
}

// UpdateInput records a pending (t, delta) at one of the subgraph's own
// graph inputs.
func (pc *PointstampCounter[T]) UpdateInput(input int, t T, delta int64) {
	if input < 0 || input >= pc.NumInputs() {
		panic(fmt.Sprintf("pointstamp: UpdateInput(%d) out of range", input))
	}
	pc.inputCounts[input].Update(t, delta)
}

// SourceCounts exposes the raw pending bucket for a child's output port.
func (pc *PointstampCounter[T]) SourceCounts(scope, output int) *countmap.CountMap[T] {
	return pc.sourceCounts[scope][output]
}

// TargetCounts exposes the raw pending bucket for a child's input port.
func (pc *PointstampCounter[T]) TargetCounts(scope, input int) *countmap.CountMap[T] {
	return pc.targetCounts[scope][input]
}

// InputCounts exposes the raw pending bucket for a graph input.
func (pc *PointstampCounter[T]) InputCounts(input int) *countmap.CountMap[T] {
	return pc.inputCounts[input]
}

// TargetPushed exposes the propagated-result bucket for a child's input
// port, populated by the subgraph's propagation pass.
func (pc *PointstampCounter[T]) TargetPushed(scope, input int) *countmap.CountMap[T] {
	return pc.targetPushed[scope][input]
}

// OutputPushed exposes the propagated-result bucket for one of the
// subgraph's own outputs.
func (pc *PointstampCounter[T]) OutputPushed(output int) *countmap.CountMap[T] {
	if output < 0 || output >= pc.NumOutputs() {
		panic(fmt.Sprintf("pointstamp: OutputPushed(%d) out of range", output))
	}
	return pc.outputPushed[output]
}

// DirtyScopes iterates every child scope whose target_counts buckets were
// touched since the last ClearPushed, skipping scopes with nothing pending.
func (pc *PointstampCounter[T]) DirtyScopes(fn func(scope int)) {
	seen := make(map[int]struct{})
	pc.dirtyTargets.Iterate(func(flatIdx int) bool {
		scope := pc.scopeForFlatIndex(flatIdx)
		if _, ok := seen[scope]; !ok {
			seen[scope] = struct{}{}
			fn(scope)
		}
		return true
	})
}

func (pc *PointstampCounter[T]) scopeForFlatIndex(flatIdx int) int {
	scope := 0
	for g := 1; g < pc.NumScopes(); g++ {
		if pc.scopeInputAt[g] > flatIdx {
			break
		}
		scope = g
	}
	return scope
}

// ClearPushed empties every targetPushed and outputPushed bucket, and
// resets the dirty-scope tracking, at the end of a tick.
func (pc *PointstampCounter[T]) ClearPushed() {
	for _, row := range pc.targetPushed {
		for _, cm := range row {
			cm.Clear()
		}
	}
	for _, cm := range pc.outputPushed {
		cm.Clear()
	}
	pc.dirtyTargets.ClearAll()
}

// NumScopes reports how many children this counter was built for.
func (pc *PointstampCounter[T]) NumScopes() int { return len(pc.scopeInputs) }

// NumInputs reports the subgraph's own graph-input count.
func (pc *PointstampCounter[T]) NumInputs() int { return pc.numInputs }

// NumOutputs reports the subgraph's own graph-output count.
func (pc *PointstampCounter[T]) NumOutputs() int { return pc.numOutputs }

// ScopeOutputs reports the output arity of a child scope.
func (pc *PointstampCounter[T]) ScopeOutputs(scope int) int { return pc.scopeOutputs[scope] }

// ScopeInputs reports the input arity of a child scope.
func (pc *PointstampCounter[T]) ScopeInputs(scope int) int { return pc.scopeInputs[scope] }

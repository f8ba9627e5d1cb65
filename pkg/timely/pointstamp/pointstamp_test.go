package pointstamp_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timelyprogress/pkg/timely/pointstamp"
)

func TestSourceAndTargetConstructors(t *testing.T) {
	gi := pointstamp.GraphInput(2)
	assert.Equal(t, pointstamp.SourceGraphInput, gi.Kind)
	assert.Equal(t, 2, gi.Port)

	so := pointstamp.ScopeOutput(1, 3)
	assert.Equal(t, pointstamp.SourceScopeOutput, so.Kind)
	assert.Equal(t, 1, so.Scope)
	assert.Equal(t, 3, so.Port)

	go_ := pointstamp.GraphOutput(0)
	assert.Equal(t, pointstamp.TargetGraphOutput, go_.Kind)

	si := pointstamp.ScopeInput(4, 5)
	assert.Equal(t, pointstamp.TargetScopeInput, si.Kind)
	assert.Equal(t, 4, si.Scope)
	assert.Equal(t, 5, si.Port)
}

func TestCounterUpdateAndDrain(t *testing.T) {
	// One child with 1 input, 1 output; 1 graph input, 1 graph output.
	pc := pointstamp.New[int]([]int{1}, []int{1}, 1, 1)

	pc.UpdateSource(0, 0, 7, +1)
	entries := pc.SourceCounts(0, 0).Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, 7, entries[0].Value)

	pc.UpdateTarget(0, 0, 9, +2)
	assert.Equal(t, 1, pc.TargetCounts(0, 0).Len())

	pc.UpdateInput(0, 3, +1)
	assert.Equal(t, 1, pc.InputCounts(0).Len())
}

func TestCounterClearPushed(t *testing.T) {
	pc := pointstamp.New[int]([]int{1}, []int{1}, 1, 1)
	pc.TargetPushed(0, 0).Update(5, +1)
	pc.OutputPushed(0).Update(5, +1)

	pc.ClearPushed()
	assert.Equal(t, 0, pc.TargetPushed(0, 0).Len())
	assert.Equal(t, 0, pc.OutputPushed(0).Len())
}

func TestCounterDirtyScopes(t *testing.T) {
	pc := pointstamp.New[int]([]int{2, 1}, []int{1, 1}, 1, 1)
	pc.UpdateTarget(1, 0, 4, +1)

	var touched []int
	pc.DirtyScopes(func(scope int) { touched = append(touched, scope) })
	assert.Equal(t, []int{1}, touched)
}

func TestCounterArityAccessors(t *testing.T) {
	pc := pointstamp.New[int]([]int{2, 1}, []int{1, 3}, 4, 2)
	assert.Equal(t, 2, pc.NumScopes())
	assert.Equal(t, 4, pc.NumInputs())
	assert.Equal(t, 2, pc.NumOutputs())
	assert.Equal(t, 1, pc.ScopeOutputs(0))
	assert.Equal(t, 3, pc.ScopeOutputs(1))
	assert.Equal(t, 2, pc.ScopeInputs(0))
	assert.Equal(t, 1, pc.ScopeInputs(1))
}

func TestCounterUpdateOutOfRangeIsFatal(t *testing.T) {
	pc := pointstamp.New[int]([]int{1}, []int{1}, 1, 1)
	assert.Panics(t, func() { pc.UpdateSource(0, 1, 7, +1) }, "output port out of range for scope 0")
	assert.Panics(t, func() { pc.UpdateTarget(1, 0, 7, +1) }, "scope 1 does not exist")
	assert.Panics(t, func() { pc.UpdateInput(5, 7, +1) }, "graph input 5 does not exist")
	assert.Panics(t, func() { pc.OutputPushed(5) }, "graph output 5 does not exist")
}

package antichain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timelyprogress/pkg/timely/antichain"
)

type point struct{ x, y int }

func pointLeq(a, b point) bool { return a.x <= b.x && a.y <= b.y }

func TestAntichainInsertKeepsOnlyIncomparable(t *testing.T) {
	// Scenario 6 from the testable-properties list: (3,5), (4,4), (4,6)
	// under the product order leaves (3,5) and (4,4).
	a := antichain.New[point](pointLeq)

	assert.True(t, a.Insert(point{3, 5}))
	assert.True(t, a.Insert(point{4, 4}))
	assert.False(t, a.Insert(point{4, 6}), "(4,6) is dominated by (3,5)")

	require.Len(t, a.Elements(), 2)
	assert.ElementsMatch(t, []point{{3, 5}, {4, 4}}, a.Elements())
}

func TestAntichainInsertDisplacesDominated(t *testing.T) {
	a := antichain.New[point](pointLeq)
	require.True(t, a.Insert(point{5, 5}))
	require.True(t, a.Insert(point{1, 1}), "(1,1) dominates (5,5) and replaces it")
	assert.Equal(t, []point{{1, 1}}, a.Elements())
}

func TestAntichainInsertNoChangeWhenAlreadyDominated(t *testing.T) {
	a := antichain.New[point](pointLeq)
	require.True(t, a.Insert(point{1, 1}))
	assert.False(t, a.Insert(point{2, 2}))
	assert.Equal(t, []point{{1, 1}}, a.Elements())
}

func TestMutableAntichainUpdateEmitsFrontierChanges(t *testing.T) {
	ma := antichain.NewMutable[point](pointLeq)

	changes := ma.Update(point{5, 5}, +1)
	require.Len(t, changes, 1)
	assert.Equal(t, point{5, 5}, changes[0].Value)
	assert.EqualValues(t, +1, changes[0].Delta)
	assert.Equal(t, []point{{5, 5}}, ma.Elements())

	// A dominating element joins and displaces the old frontier member.
	changes = ma.Update(point{1, 1}, +1)
	assert.Len(t, changes, 2)
	assert.Equal(t, []point{{1, 1}}, ma.Elements())

	// Retracting (5,5) entirely is a no-op on the frontier: it never
	// rejoined the frontier set while (1,1) dominates it.
	changes = ma.Update(point{5, 5}, -1)
	assert.Empty(t, changes)
}

func TestMutableAntichainUpdateIterAndBatches(t *testing.T) {
	ma := antichain.NewMutable[point](pointLeq)

	var seen []antichain.Change[point]
	ma.UpdateIterAnd([]antichain.Delta[point]{
		{Value: point{5, 0}, Count: +1},
		{Value: point{2, 0}, Count: +1},
	}, func(p point, d int64) {
		seen = append(seen, antichain.Change[point]{Value: p, Delta: d})
	})

	// Only (2,0) should surface: it dominates (5,0), which never joins.
	require.Len(t, seen, 1)
	assert.Equal(t, point{2, 0}, seen[0].Value)
	assert.EqualValues(t, +1, seen[0].Delta)
}

func TestMutableAntichainZeroDeltaQuiescence(t *testing.T) {
	ma := antichain.NewMutable[point](pointLeq)
	ma.Update(point{5, 5}, +1)

	changes := ma.Update(point{5, 5}, 0)
	assert.Empty(t, changes, "a zero-delta update must never report a frontier change")
}

func TestMutableAntichainRoundTrip(t *testing.T) {
	ma := antichain.NewMutable[point](pointLeq)
	forward := ma.Update(point{3, 3}, +1)
	require.Len(t, forward, 1)

	back := ma.Update(point{3, 3}, -1)
	require.Len(t, back, 1)
	assert.EqualValues(t, -1, back[0].Delta)
	assert.Empty(t, ma.Elements())
}

package subgraph

import (
	"github.com/timelyprogress/pkg/timely/antichain"
	"github.com/timelyprogress/pkg/timely/countmap"
	"github.com/timelyprogress/pkg/timely/order"
	"github.com/timelyprogress/pkg/timely/pointstamp"
)

// pushPointstampsToTargets drains every pending source_counts, target_counts
// and input_counts entry, and for each, walks the relevant reachability
// table to deposit the resulting pointstamp into target_pushed or
// output_pushed. Propagation is purely additive: the CountMap buckets it
// writes into coalesce, so a delta that nets to zero across multiple paths
// simply disappears.
func (sg *Subgraph) pushPointstampsToTargets() {
	for g, c := range sg.children {
		for o := 0; o < c.scope.Outputs(); o++ {
			cm := sg.pointstamps.SourceCounts(g, o)
			for _, e := range cm.Entries() {
				sg.propagate(sg.sourceSummaries[g][o], e.Value, e.Delta)
			}
			cm.Clear()
		}
	}

	for i := 0; i < sg.numInputs; i++ {
		cm := sg.pointstamps.InputCounts(i)
		for _, e := range cm.Entries() {
			sg.propagate(sg.inputSummaries[i], e.Value, e.Delta)
		}
		cm.Clear()
	}

	sg.pointstamps.DirtyScopes(func(g int) {
		c := sg.children[g]
		for p := 0; p < c.scope.Inputs(); p++ {
			cm := sg.pointstamps.TargetCounts(g, p)
			for _, e := range cm.Entries() {
				sg.propagate(sg.targetSummaries[g][p], e.Value, e.Delta)
			}
			cm.Clear()
		}
	})
}

func (sg *Subgraph) propagate(table targetChains, t order.Timestamp, delta int64) {
	for tgt, chain := range table {
		for _, s := range chain.Elements() {
			result := s.ResultsIn(t)
			switch tgt.Kind {
			case pointstamp.TargetScopeInput:
				sg.pointstamps.TargetPushed(tgt.Scope, tgt.Port).Update(result, delta)
			case pointstamp.TargetGraphOutput:
				sg.pointstamps.OutputPushed(tgt.Port).Update(result, delta)
			}
		}
	}
}

// toDeltas converts a drained CountMap's entries into the Delta batch shape
// MutableAntichain.UpdateIterAnd expects.
func toDeltas(entries []countmap.Entry[order.Timestamp]) []antichain.Delta[order.Timestamp] {
	out := make([]antichain.Delta[order.Timestamp], len(entries))
	for i, e := range entries {
		out[i] = antichain.Delta[order.Timestamp]{Value: e.Value, Count: e.Delta}
	}
	return out
}

package subgraph

import (
	"github.com/timelyprogress/pkg/timely/antichain"
	"github.com/timelyprogress/pkg/timely/countmap"
	"github.com/timelyprogress/pkg/timely/order"
)

// subscopeState is the per-child bookkeeping a subgraph maintains: the
// child's declared internal summaries, the guarantee made to it, the
// capabilities it still holds, and the messages in flight to each input.
type subscopeState struct {
	scope Scope

	summary      SummaryTable                              // [input][output]
	guarantees   []*antichain.MutableAntichain[order.Timestamp] // [input]
	capabilities []*antichain.MutableAntichain[order.Timestamp] // [output]
	outstanding  []*antichain.MutableAntichain[order.Timestamp] // [input], messages in flight
}

func newSubscopeState(scope Scope, summary SummaryTable) *subscopeState {
	s := &subscopeState{scope: scope, summary: summary}
	s.guarantees = make([]*antichain.MutableAntichain[order.Timestamp], scope.Inputs())
	s.outstanding = make([]*antichain.MutableAntichain[order.Timestamp], scope.Inputs())
	for i := range s.guarantees {
		s.guarantees[i] = antichain.NewMutable[order.Timestamp](order.TimestampLessEqual)
		s.outstanding[i] = antichain.NewMutable[order.Timestamp](order.TimestampLessEqual)
	}
	s.capabilities = make([]*antichain.MutableAntichain[order.Timestamp], scope.Outputs())
	for o := range s.capabilities {
		s.capabilities[o] = antichain.NewMutable[order.Timestamp](order.TimestampLessEqual)
	}
	return s
}

// subscopeBuffers are the scratch CountMaps reused across ticks to shuttle
// a child's reported progress/consumed/produced deltas, and the
// parent-filled guarantee changes delivered back to it.
type subscopeBuffers struct {
	progress         Frontier // [output], child's capability deltas
	consumed         Frontier // [input]
	produced         Frontier // [output]
	guaranteeChanges Frontier // [input], filled by parent before PushExternalProgress
}

func newSubscopeBuffers(scope Scope) *subscopeBuffers {
	return &subscopeBuffers{
		progress:         newFrontier(scope.Outputs()),
		consumed:         newFrontier(scope.Inputs()),
		produced:         newFrontier(scope.Outputs()),
		guaranteeChanges: newFrontier(scope.Inputs()),
	}
}

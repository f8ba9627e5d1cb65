// Package subgraph implements the composite operator at the heart of the
// progress-tracking core: a scope that owns child scopes and the edges
// between them, computes static reachability over that internal graph, and
// propagates frontier changes inward to its children and outward to its
// own parent.
package subgraph

import (
	"github.com/timelyprogress/pkg/timely/antichain"
	"github.com/timelyprogress/pkg/timely/countmap"
	"github.com/timelyprogress/pkg/timely/order"
)

// SummaryTable is an antichain of path summaries for every (input, output)
// pair of a scope: the internal routes a message entering at that input may
// take before leaving at that output.
type SummaryTable [][]*antichain.Antichain[order.PathSummary]

// Frontier is one CountMap per port, the wire shape every lifecycle method
// in the Scope contract exchanges.
type Frontier []*countmap.CountMap[order.Timestamp]

// Scope is the contract both subgraphs and leaf operators satisfy, letting
// a subgraph host children of varying concrete type behind one interface.
type Scope interface {
	Inputs() int
	Outputs() int
	Name() string

	// NotifyMe reports whether this child wants frontier deliveries. A
	// child that returns false is excluded from reachability via its
	// inputs and never receives PushExternalProgress.
	NotifyMe() bool

	// GetInternalSummary seals the scope's own topology (called exactly
	// once) and returns its internal input->output summaries plus its
	// initial output capabilities.
	GetInternalSummary() (SummaryTable, Frontier)

	// SetExternalSummary delivers the parent's external feedback summaries
	// (per output, per input) and this scope's initial input frontier.
	// Called exactly once, after GetInternalSummary.
	SetExternalSummary(external SummaryTable, frontier Frontier)

	// PushExternalProgress delivers a frontier delta from the parent.
	PushExternalProgress(frontier Frontier)

	// PullInternalProgress reports capability deltas (progress), messages
	// consumed per input, and messages produced per output, accumulating
	// into the caller-supplied buffers.
	PullInternalProgress(progress, consumed, produced Frontier)
}

// newFrontier allocates n empty CountMaps.
func newFrontier(n int) Frontier {
	f := make(Frontier, n)
	for i := range f {
		f[i] = countmap.New[order.Timestamp]()
	}
	return f
}

func clearFrontier(f Frontier) {
	for _, cm := range f {
		cm.Clear()
	}
}

package subgraph

import (
	"github.com/timelyprogress/pkg/timely/antichain"
	"github.com/timelyprogress/pkg/timely/order"
)

// Leaf is a minimal Scope (§6) with no further internal graph: an
// operator whose input->output summaries are fixed at construction and
// whose progress, consumed and produced counts are queued directly by the
// caller rather than computed from a nested subgraph. It is the leaf node
// every test scenario and the demo driver build subgraphs out of, standing
// in for "operator user logic" (explicitly out of scope for the core per
// spec.md §1).
type Leaf struct {
	name            string
	inputs, outputs int
	notifyMe        bool

	summary SummaryTable // [input][output], fixed at construction

	initialCapabilities Frontier // [output], drained by GetInternalSummary

	guarantees []*antichain.MutableAntichain[order.Timestamp] // [input], mirrors what the parent has promised us

	pendingProgress Frontier // [output]
	pendingConsumed Frontier // [input]
	pendingProduced Frontier // [output]
}

// NewLeaf builds a leaf scope. summary may be nil, meaning no internal
// input->output connectivity (a pure source or sink).
func NewLeaf(name string, inputs, outputs int, summary SummaryTable) *Leaf {
	if summary == nil {
		summary = newEmptySummaryTable(inputs, outputs)
	}
	l := &Leaf{
		name:                name,
		inputs:              inputs,
		outputs:             outputs,
		notifyMe:            true,
		summary:             summary,
		initialCapabilities: newFrontier(outputs),
		pendingProgress:     newFrontier(outputs),
		pendingConsumed:     newFrontier(inputs),
		pendingProduced:     newFrontier(outputs),
	}
	l.guarantees = make([]*antichain.MutableAntichain[order.Timestamp], inputs)
	for i := range l.guarantees {
		l.guarantees[i] = antichain.NewMutable[order.Timestamp](order.TimestampLessEqual)
	}
	return l
}

// SetNotifyMe overrides the default (true); a leaf that returns false from
// NotifyMe is excluded from reachability via its inputs and never
// receives PushExternalProgress (§6, §8 scenario 5).
func (l *Leaf) SetNotifyMe(v bool) { l.notifyMe = v }

// InitialCapability queues an output capability reported by the next
// GetInternalSummary call.
func (l *Leaf) InitialCapability(output int, t order.Timestamp, delta int64) {
	l.initialCapabilities[output].Update(t, delta)
}

// Progress queues a capability delta reported by the next
// PullInternalProgress call.
func (l *Leaf) Progress(output int, t order.Timestamp, delta int64) {
	l.pendingProgress[output].Update(t, delta)
}

// Consume queues a consumed-message delta reported by the next
// PullInternalProgress call.
func (l *Leaf) Consume(input int, t order.Timestamp, delta int64) {
	l.pendingConsumed[input].Update(t, delta)
}

// Produce queues a produced-message delta reported by the next
// PullInternalProgress call.
func (l *Leaf) Produce(output int, t order.Timestamp, delta int64) {
	l.pendingProduced[output].Update(t, delta)
}

// Guarantee exposes the current input frontier this leaf has been
// promised by its parent, for test assertions.
func (l *Leaf) Guarantee(input int) []order.Timestamp {
	return l.guarantees[input].Elements()
}

func (l *Leaf) Inputs() int    { return l.inputs }
func (l *Leaf) Outputs() int   { return l.outputs }
func (l *Leaf) Name() string   { return l.name }
func (l *Leaf) NotifyMe() bool { return l.notifyMe }

func (l *Leaf) GetInternalSummary() (SummaryTable, Frontier) {
	work := l.initialCapabilities
	l.initialCapabilities = newFrontier(l.outputs)
	return l.summary, work
}

func (l *Leaf) SetExternalSummary(_ SummaryTable, frontier Frontier) {
	for i := 0; i < l.inputs; i++ {
		l.guarantees[i].UpdateIterAnd(toDeltas(frontier[i].Entries()), func(order.Timestamp, int64) {})
	}
}

func (l *Leaf) PushExternalProgress(frontier Frontier) {
	for i := 0; i < l.inputs; i++ {
		l.guarantees[i].UpdateIterAnd(toDeltas(frontier[i].Entries()), func(order.Timestamp, int64) {})
	}
}

func (l *Leaf) PullInternalProgress(progress, consumed, produced Frontier) {
	for o := 0; o < l.outputs; o++ {
		for _, e := range l.pendingProgress[o].Entries() {
			progress[o].Update(e.Value, e.Delta)
		}
		l.pendingProgress[o].Clear()
		for _, e := range l.pendingProduced[o].Entries() {
			produced[o].Update(e.Value, e.Delta)
		}
		l.pendingProduced[o].Clear()
	}
	for i := 0; i < l.inputs; i++ {
		for _, e := range l.pendingConsumed[i].Entries() {
			consumed[i].Update(e.Value, e.Delta)
		}
		l.pendingConsumed[i].Clear()
	}
}

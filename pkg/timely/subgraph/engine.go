package subgraph

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/timelyprogress/pkg/timely/antichain"
	"github.com/timelyprogress/pkg/timely/countmap"
	"github.com/timelyprogress/pkg/timely/order"
	"github.com/timelyprogress/pkg/timely/pointstamp"
	"github.com/timelyprogress/pkg/utils"
)

// defaultMaxReachabilityIterations bounds set_summaries's worklist
// saturation loop (§7's "bounded-iteration guard as a safety net"). The
// table is a monotone fixed point over antichains whose elements are
// bounded by path length through a graph of scopeCount nodes, so this is a
// generous polynomial bound: exceeding it can only mean a PathSummary
// implementation that isn't actually monotone.
func defaultMaxReachabilityIterations(scopeCount int) int {
	return 4*(scopeCount+1)*(scopeCount+1) + 16
}

// Edge is a declared Source -> Target connection within a subgraph.
type Edge struct {
	Source pointstamp.Source
	Target pointstamp.Target
}

// Subgraph is the composite operator at the heart of the progress-tracking
// core: it owns a set of child scopes and the edges between them, computes
// static reachability over that internal graph, and propagates frontier
// changes inward to its children and outward to its own parent. Subgraph
// itself satisfies the Scope contract, so it may be nested to arbitrary
// depth (§1, §9 "avoid hard-coding a fixed nesting depth").
//
// A Subgraph's own native timestamp is always an order.Product: the
// coordinate its parent already tracks (Outer) paired with whatever extra
// iteration coordinate this subgraph introduces (Inner). Its own internal
// edges are summarized with order.NestedSummary for the same reason.
type Subgraph struct {
	name   string
	logger utils.Logger
	tracer trace.Tracer

	// innerZero/outerZero are the SInner/SOuter identity elements supplied
	// at construction (ground truth: original's new_subgraph<T,S>(default,
	// summary) takes the SInner identity directly; the SOuter identity is
	// inferred there by Rust's type system and has no dynamic-interface
	// equivalent, so it is passed explicitly here).
	innerZero     order.PathSummary
	outerZero     order.PathSummary
	innerTimeZero order.Timestamp

	defaultSummary order.PathSummary // identity summary for a single declared edge

	numInputs  int
	numOutputs int

	edges []Edge

	externalSummaries SummaryTable // [output][input], antichains of SOuter
	sourceSummaries   [][]targetChains
	targetSummaries   [][]targetChains
	inputSummaries    []targetChains

	externalCapability []*antichain.MutableAntichain[order.Timestamp] // [output]
	externalGuarantee  []*antichain.MutableAntichain[order.Timestamp] // [input]

	children []*subscopeState
	buffers  []*subscopeBuffers

	pointstamps *pointstamp.PointstampCounter[order.Timestamp]

	inputMessages []*countmap.CountMap[order.Timestamp] // [input], shared with upstream writer

	maxReachabilityIterations int

	sealed bool
}

// Builder is the shared, mutable handle used while constructing a
// subgraph: declaring inputs/outputs, adding child scopes, and connecting
// edges. It stands in for the original's Rc<RefCell<Subgraph>> shared
// handle; Go needs no reference counting, but keeping a distinct Builder
// type (rather than exposing every mutator on *Subgraph directly) marks
// the line the original drew between construction-time aliasing and the
// exclusive ownership the parent takes once GetInternalSummary seals the
// topology (DESIGN NOTES §9, SPEC_FULL.md §D.5).
type Builder struct {
	sg *Subgraph
}

// NewBuilder creates an empty subgraph. innerTimeZero/innerSummaryZero are
// the zero timestamp and identity summary for the extra coordinate this
// subgraph introduces relative to its parent; outerSummaryZero is the
// identity summary in the parent's own frame, needed to project purely
// internal ("Local") routes from a graph input to a graph output back into
// the parent's summary type (§4.4's "Local(_) -> default SOuter"). A nil
// logger installs &utils.NullLogger{}.
func NewBuilder(name string, innerTimeZero order.Timestamp, innerSummaryZero, outerSummaryZero order.PathSummary, logger utils.Logger) *Builder {
	if logger == nil {
		logger = &utils.NullLogger{}
	}
	sg := &Subgraph{
		name:          name,
		logger:        logger,
		tracer:        otel.Tracer("timely.subgraph"),
		innerZero:     innerSummaryZero,
		outerZero:     outerSummaryZero,
		innerTimeZero: innerTimeZero,
		defaultSummary: order.LocalSummary(innerSummaryZero),
	}
	return &Builder{sg: sg}
}

// SetMaxReachabilityIterations overrides the default bounded-iteration
// guard (§7) used by set_summaries' worklist saturation loop.
func (b *Builder) SetMaxReachabilityIterations(n int) {
	b.sg.maxReachabilityIterations = n
}

// Subgraph returns the underlying subgraph. Before GetInternalSummary
// seals it, only the Builder's own methods should mutate it; afterward the
// parent holds this pointer directly as a Scope and the Builder may be
// discarded.
func (b *Builder) Subgraph() *Subgraph { return b.sg }

// NewInput declares a new graph input fed by a buffer the upstream writer
// shares by reference; the engine drains and clears it every
// PullInternalProgress (§5's shared-mutability contract).
func (b *Builder) NewInput(shared *countmap.CountMap[order.Timestamp]) int {
	sg := b.sg
	i := sg.numInputs
	sg.numInputs++
	sg.externalGuarantee = append(sg.externalGuarantee, antichain.NewMutable[order.Timestamp](order.TimestampLessEqual))
	sg.inputMessages = append(sg.inputMessages, shared)
	return i
}

// NewOutput declares a new graph output.
func (b *Builder) NewOutput() int {
	sg := b.sg
	o := sg.numOutputs
	sg.numOutputs++
	sg.externalCapability = append(sg.externalCapability, antichain.NewMutable[order.Timestamp](order.TimestampLessEqual))
	return o
}

// AddScope registers a child scope (leaf operator or nested subgraph) and
// returns its index, used to address it in Source/Target values passed to
// Connect. Must be called before GetInternalSummary seals the topology.
func (b *Builder) AddScope(scope Scope) int {
	sg := b.sg
	if sg.sealed {
		fatalMalformedGraph(sg.logger, pointstamp.Location{}, "AddScope called after the subgraph was sealed by GetInternalSummary")
	}
	sg.children = append(sg.children, newSubscopeState(scope, nil))
	sg.buffers = append(sg.buffers, newSubscopeBuffers(scope))
	return len(sg.children) - 1
}

// Connect declares a directed edge from source to target. Multiple edges
// from the same source are allowed. Connecting to a scope/port that was
// never registered is a malformed-graph fatal assertion (§7).
func (b *Builder) Connect(source pointstamp.Source, target pointstamp.Target) {
	sg := b.sg
	sg.validateEdge(source, target)
	sg.edges = append(sg.edges, Edge{Source: source, Target: target})
}

func (sg *Subgraph) validateEdge(source pointstamp.Source, target pointstamp.Target) {
	switch source.Kind {
	case pointstamp.SourceGraphInput:
		if source.Port < 0 || source.Port >= sg.numInputs {
			fatalMalformedGraph(sg.logger, pointstamp.SourceLoc(source), "graph input port out of range")
		}
	case pointstamp.SourceScopeOutput:
		if source.Scope < 0 || source.Scope >= len(sg.children) ||
			source.Port < 0 || source.Port >= sg.children[source.Scope].scope.Outputs() {
			fatalMalformedGraph(sg.logger, pointstamp.SourceLoc(source), "scope output out of range")
		}
	}
	switch target.Kind {
	case pointstamp.TargetGraphOutput:
		if target.Port < 0 || target.Port >= sg.numOutputs {
			fatalMalformedGraph(sg.logger, pointstamp.TargetLoc(target), "graph output port out of range")
		}
	case pointstamp.TargetScopeInput:
		if target.Scope < 0 || target.Scope >= len(sg.children) ||
			target.Port < 0 || target.Port >= sg.children[target.Scope].scope.Inputs() {
			fatalMalformedGraph(sg.logger, pointstamp.TargetLoc(target), "scope input out of range")
		}
	}
}

// Inputs, Outputs, Name and NotifyMe satisfy the Scope contract (§6).
func (sg *Subgraph) Inputs() int    { return sg.numInputs }
func (sg *Subgraph) Outputs() int   { return sg.numOutputs }
func (sg *Subgraph) Name() string   { return sg.name }
func (sg *Subgraph) NotifyMe() bool { return true }

func (sg *Subgraph) startSpan(name string) trace.Span {
	if sg.tracer == nil {
		return nil
	}
	_, span := sg.tracer.Start(context.Background(), "timely.subgraph."+name)
	return span
}

func endSpan(span trace.Span) {
	if span != nil {
		span.End()
	}
}

// outerOf projects a subgraph-native Product timestamp down to its Outer
// (parent-facing) coordinate, dropping the inner coordinate this subgraph
// introduced. Every value flowing through a Subgraph's own pointstamp
// tracking is an order.Product by construction (see type doc).
func outerOf(t order.Timestamp) order.Timestamp {
	return t.(order.Product).Outer
}

// liftToNative lifts a parent-supplied Outer timestamp into this
// subgraph's own native Product coordinate, with the inner coordinate at
// its zero (the counterpart of outerOf).
func (sg *Subgraph) liftToNative(outer order.Timestamp) order.Timestamp {
	return order.NewProduct(outer, sg.innerTimeZero)
}

// projectToOuter implements §4.4's "for each summary u, project to SOuter
// by: Local(_) -> default SOuter, Outer(s,_) -> s".
func (sg *Subgraph) projectToOuter(s order.PathSummary) order.PathSummary {
	ns, ok := s.(order.NestedSummary)
	if !ok {
		return s
	}
	if ns.IsLocal() {
		return sg.outerZero
	}
	return ns.OuterSummaryValue()
}

// wrapExternalSummary turns a parent-supplied SOuter element into this
// subgraph's own Outer(s, innerZero) summary, used when resolving a graph
// output's upstream sources via the parent's external_summaries.
func (sg *Subgraph) wrapExternalSummary(s order.PathSummary) order.PathSummary {
	return order.OuterSummary(s, sg.innerZero)
}

// GetInternalSummary seals the topology (§4.4): it is called exactly once,
// after which the subgraph's child list, input/output counts and edges are
// immutable. It seeds pointstamp storage for every child, installs initial
// capabilities as pointstamps, runs the static reachability pass with an
// empty external_summaries (Open Question (a): outer-feedback cycles
// contribute nothing at this point), and reports the input->output
// summaries and initial output capabilities its own parent needs.
func (sg *Subgraph) GetInternalSummary() (SummaryTable, Frontier) {
	span := sg.startSpan("GetInternalSummary")
	defer endSpan(span)

	sg.sealed = true
	if sg.maxReachabilityIterations == 0 {
		sg.maxReachabilityIterations = defaultMaxReachabilityIterations(len(sg.children))
	}

	n := len(sg.children)
	scopeInputs := make([]int, n)
	scopeOutputs := make([]int, n)
	for i, c := range sg.children {
		scopeInputs[i] = c.scope.Inputs()
		scopeOutputs[i] = c.scope.Outputs()
	}
	sg.pointstamps = pointstamp.New[order.Timestamp](scopeInputs, scopeOutputs, sg.numInputs, sg.numOutputs)

	for index, c := range sg.children {
		summary, work := c.scope.GetInternalSummary()
		c.summary = summary

		for o := 0; o < c.scope.Outputs(); o++ {
			for _, e := range work[o].Entries() {
				c.capabilities[o].Update(e.Value, e.Delta)
			}
			for _, t := range c.capabilities[o].Elements() {
				sg.pointstamps.UpdateSource(index, o, t, 1)
			}
		}
		sg.logger.Debug("subgraph %s: sealed child %d (%s), %d inputs, %d outputs", sg.name, index, c.scope.Name(), c.scope.Inputs(), c.scope.Outputs())
	}

	sg.externalSummaries = newEmptySummaryTable(sg.numOutputs, sg.numInputs)

	sg.setSummaries()
	sg.pushPointstampsToTargets()

	work := make(Frontier, sg.numOutputs)
	for o := 0; o < sg.numOutputs; o++ {
		work[o] = countmap.New[order.Timestamp]()
		for _, e := range sg.pointstamps.OutputPushed(o).Entries() {
			work[o].Update(outerOf(e.Value), e.Delta)
		}
	}

	summaries := newEmptySummaryTable(sg.numInputs, sg.numOutputs)
	for i := 0; i < sg.numInputs; i++ {
		for tgt, chain := range sg.inputSummaries[i] {
			if tgt.Kind != pointstamp.TargetGraphOutput {
				continue
			}
			for _, u := range chain.Elements() {
				summaries[i][tgt.Port].Insert(sg.projectToOuter(u))
			}
		}
	}

	sg.pointstamps.ClearPushed()
	return summaries, work
}

// newEmptySummaryTable allocates a rows x cols SummaryTable of empty
// antichains ordered by order.LessEqual.
func newEmptySummaryTable(rows, cols int) SummaryTable {
	t := make(SummaryTable, rows)
	for r := range t {
		t[r] = make([]*antichain.Antichain[order.PathSummary], cols)
		for c := range t[r] {
			t[r][c] = antichain.New[order.PathSummary](order.LessEqual)
		}
	}
	return t
}

// SetExternalSummary delivers the parent's external feedback summaries and
// this subgraph's initial input frontier (§4.5). Called exactly once,
// after GetInternalSummary. frontier values are in the parent's Outer
// coordinate and are lifted to this subgraph's native Product timestamp
// before being injected as pointstamps.
func (sg *Subgraph) SetExternalSummary(external SummaryTable, frontier Frontier) {
	span := sg.startSpan("SetExternalSummary")
	defer endSpan(span)

	sg.externalSummaries = external
	sg.setSummaries()
	sg.logger.Debug("subgraph %s: reachability rebuilt with external feedback", sg.name)

	for i := 0; i < sg.numInputs; i++ {
		for _, e := range frontier[i].Entries() {
			sg.pointstamps.UpdateInput(i, sg.liftToNative(e.Value), e.Delta)
		}
	}

	for index, c := range sg.children {
		for o := 0; o < c.scope.Outputs(); o++ {
			for _, t := range c.capabilities[o].Elements() {
				sg.pointstamps.UpdateSource(index, o, t, 1)
			}
		}
	}

	sg.pushPointstampsToTargets()

	for index, c := range sg.children {
		buf := sg.buffers[index]
		if c.scope.NotifyMe() {
			for p := 0; p < c.scope.Inputs(); p++ {
				c.guarantees[p].UpdateIntoCM(toDeltas(sg.pointstamps.TargetPushed(index, p).Entries()), buf.guaranteeChanges[p])
			}
		}

		childExternal := newEmptySummaryTable(c.scope.Outputs(), c.scope.Inputs())
		for o := 0; o < c.scope.Outputs(); o++ {
			for tgt, chain := range sg.sourceSummaries[index][o] {
				if tgt.Kind == pointstamp.TargetScopeInput && tgt.Scope == index {
					for _, s := range chain.Elements() {
						childExternal[o][tgt.Port].Insert(s)
					}
				}
			}
		}

		c.scope.SetExternalSummary(childExternal, buf.guaranteeChanges)
		clearFrontier(buf.guaranteeChanges)
	}

	sg.pointstamps.ClearPushed()
}

// PushExternalProgress delivers a frontier delta from the parent (§4.6).
func (sg *Subgraph) PushExternalProgress(frontierProgress Frontier) {
	span := sg.startSpan("PushExternalProgress")
	defer endSpan(span)

	for i := 0; i < sg.numInputs; i++ {
		for _, e := range frontierProgress[i].Entries() {
			sg.pointstamps.UpdateInput(i, sg.liftToNative(e.Value), e.Delta)
		}
	}

	sg.pushPointstampsToTargets()
	sg.notifyChildren()
	sg.pointstamps.ClearPushed()
}

// notifyChildren folds each notifying child's target_pushed bucket into
// its guarantees and forwards any resulting change to it, shared by
// PushExternalProgress and phase C of PullInternalProgress.
func (sg *Subgraph) notifyChildren() {
	for index, c := range sg.children {
		if !c.scope.NotifyMe() {
			continue
		}
		buf := sg.buffers[index]
		any := false
		for p := 0; p < c.scope.Inputs(); p++ {
			c.guarantees[p].UpdateIntoCM(toDeltas(sg.pointstamps.TargetPushed(index, p).Entries()), buf.guaranteeChanges[p])
			if buf.guaranteeChanges[p].Len() > 0 {
				any = true
			}
		}
		if any {
			c.scope.PushExternalProgress(buf.guaranteeChanges)
			clearFrontier(buf.guaranteeChanges)
		}
	}
}

// checkOutstanding asserts §7's "update_iter_and observing a negative
// aggregate count at a location" condition: outstanding_messages[scope][port]
// must never carry a persistent negative raw count (DESIGN NOTES §9(c)
// requires produce-before-consume ordering within a tick, so a child
// reporting more consumed than was ever produced to it is a protocol
// violation, not a transient state this engine tolerates).
func (sg *Subgraph) checkOutstanding(scope, port int) {
	if neg := sg.children[scope].outstanding[port].NegativeCounts(); len(neg) > 0 {
		fatalInvariantViolation(sg.logger, pointstamp.TargetLoc(pointstamp.ScopeInput(scope, port)),
			fmt.Sprintf("outstanding message count went negative at %v", neg))
	}
}

// PullInternalProgress reports capability deltas, messages consumed per
// input, and messages produced per output (§4.7). It runs in the four
// phases the spec fixes within one tick: drain graph-input mailboxes, pull
// every child, propagate, then report outward.
func (sg *Subgraph) PullInternalProgress(progress, consumed, produced Frontier) {
	span := sg.startSpan("PullInternalProgress")
	defer endSpan(span)

	// Phase A: drain graph-input mailboxes.
	for i := 0; i < sg.numInputs; i++ {
		mailbox := sg.inputMessages[i]
		entries := mailbox.Entries()
		if len(entries) == 0 {
			continue
		}
		for _, e := range entries {
			consumed[i].Update(outerOf(e.Value), e.Delta)
		}
		for _, edge := range sg.edges {
			if edge.Source != pointstamp.GraphInput(i) {
				continue
			}
			switch edge.Target.Kind {
			case pointstamp.TargetScopeInput:
				g, p := edge.Target.Scope, edge.Target.Port
				sg.children[g].outstanding[p].UpdateIterAnd(toDeltas(entries), func(t order.Timestamp, d int64) {
					sg.pointstamps.UpdateTarget(g, p, t, d)
				})
				sg.checkOutstanding(g, p)
			case pointstamp.TargetGraphOutput:
				for _, e := range entries {
					produced[edge.Target.Port].Update(outerOf(e.Value), e.Delta)
				}
			}
		}
		mailbox.Clear()
	}

	// Phase B: pull each child in turn.
	for index, c := range sg.children {
		buf := sg.buffers[index]
		c.scope.PullInternalProgress(buf.progress, buf.consumed, buf.produced)

		for o := 0; o < c.scope.Outputs(); o++ {
			if buf.produced[o].Len() > 0 {
				deltas := toDeltas(buf.produced[o].Entries())
				for _, edge := range sg.edges {
					if edge.Source != pointstamp.ScopeOutput(index, o) {
						continue
					}
					switch edge.Target.Kind {
					case pointstamp.TargetScopeInput:
						g, p := edge.Target.Scope, edge.Target.Port
						sg.children[g].outstanding[p].UpdateIterAnd(deltas, func(t order.Timestamp, d int64) {
							sg.pointstamps.UpdateTarget(g, p, t, d)
						})
						sg.checkOutstanding(g, p)
					case pointstamp.TargetGraphOutput:
						for _, d := range deltas {
							produced[edge.Target.Port].Update(outerOf(d.Value), d.Count)
						}
					}
				}
				buf.produced[o].Clear()
			}

			if buf.progress[o].Len() > 0 {
				c.capabilities[o].UpdateIterAnd(toDeltas(buf.progress[o].Entries()), func(t order.Timestamp, d int64) {
					sg.pointstamps.UpdateSource(index, o, t, d)
				})
				buf.progress[o].Clear()
			}
		}

		for p := 0; p < c.scope.Inputs(); p++ {
			if buf.consumed[p].Len() == 0 {
				continue
			}
			negated := toDeltas(buf.consumed[p].Entries())
			for i := range negated {
				negated[i].Count = -negated[i].Count
			}
			c.outstanding[p].UpdateIterAnd(negated, func(t order.Timestamp, d int64) {
				sg.pointstamps.UpdateTarget(index, p, t, d)
			})
			sg.checkOutstanding(index, p)
			buf.consumed[p].Clear()
		}
	}

	// Phase C: propagate, then notify children of new guarantees.
	sg.pushPointstampsToTargets()
	sg.notifyChildren()

	// Phase D: report outward. output_pushed holds native (TOuter,TInner)
	// timestamps; project to TOuter before folding into external_capability,
	// matching the original's `time.val0()` projection at this boundary.
	for o := 0; o < sg.numOutputs; o++ {
		entries := sg.pointstamps.OutputPushed(o).Entries()
		projected := make([]antichain.Delta[order.Timestamp], len(entries))
		for i, e := range entries {
			projected[i] = antichain.Delta[order.Timestamp]{Value: outerOf(e.Value), Count: e.Delta}
		}
		sg.externalCapability[o].UpdateIntoCM(projected, progress[o])
	}

	sg.pointstamps.ClearPushed()
}

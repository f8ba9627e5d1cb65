// Package demo builds the canned topologies spec.md §8 describes and
// scripts them through a handful of ticks, for the timely CLI to drive and
// print. None of it is part of the progress-tracking core itself: it is
// scaffolding that plays the role of the operator user logic the core
// explicitly leaves out (spec.md §1 Non-goals).
package demo

import (
	"github.com/timelyprogress/pkg/timely/antichain"
	"github.com/timelyprogress/pkg/timely/countmap"
	"github.com/timelyprogress/pkg/timely/order"
	"github.com/timelyprogress/pkg/timely/pointstamp"
	"github.com/timelyprogress/pkg/timely/subgraph"
	"github.com/timelyprogress/pkg/utils"
)

// Step is one scripted tick: Inject mutates leaf/mailbox state to simulate
// an operator having done work, then the driver calls PullInternalProgress.
type Step struct {
	Describe string
	Inject   func()
}

// Scenario is a fully built, sealed subgraph plus the script of ticks to
// drive it through.
type Scenario struct {
	Name     string
	Subgraph *subgraph.Subgraph
	Steps    []Step
}

func identitySummaryTable(rows, cols int, inner order.PathSummary) subgraph.SummaryTable {
	t := emptySummaryTable(rows, cols)
	for i := 0; i < rows && i < cols; i++ {
		t[i][i].Insert(order.LocalSummary(inner))
	}
	return t
}

func emptySummaryTable(rows, cols int) subgraph.SummaryTable {
	t := make(subgraph.SummaryTable, rows)
	for r := range t {
		t[r] = make([]*antichain.Antichain[order.PathSummary], cols)
		for c := range t[r] {
			t[r][c] = antichain.New[order.PathSummary](order.LessEqual)
		}
	}
	return t
}

func emptyFrontier(n int) subgraph.Frontier {
	f := make(subgraph.Frontier, n)
	for i := range f {
		f[i] = countmap.New[order.Timestamp]()
	}
	return f
}

func native(outer int64) order.Timestamp {
	return order.NewProduct(order.IntTime(outer), order.IntTime(0))
}

func seal(b *subgraph.Builder) *subgraph.Subgraph {
	sg := b.Subgraph()
	sg.GetInternalSummary()
	sg.SetExternalSummary(emptySummaryTable(sg.Outputs(), sg.Inputs()), seedFrontier(sg.Inputs()))
	return sg
}

func seedFrontier(n int) subgraph.Frontier {
	f := emptyFrontier(n)
	for i := range f {
		f[i].Update(order.IntTime(0), 1)
	}
	return f
}

// StraightLine is spec.md §8 scenario 1: one input, one pass-through
// child, one output.
func StraightLine(logger utils.Logger, maxIterations int) Scenario {
	mailbox := countmap.New[order.Timestamp]()
	b := subgraph.NewBuilder("straight-line", order.IntTime(0), order.IntSummary(0), order.IntSummary(0), logger)
	if maxIterations > 0 {
		b.SetMaxReachabilityIterations(maxIterations)
	}
	in := b.NewInput(mailbox)
	out := b.NewOutput()

	leaf := subgraph.NewLeaf("relay", 1, 1, identitySummaryTable(1, 1, order.IntSummary(0)))
	child := b.AddScope(leaf)
	b.Connect(pointstamp.GraphInput(in), pointstamp.ScopeInput(child, 0))
	b.Connect(pointstamp.ScopeOutput(child, 0), pointstamp.GraphOutput(out))

	sg := seal(b)

	return Scenario{
		Name:     "straight-line",
		Subgraph: sg,
		Steps: []Step{
			{
				Describe: "inject a message at time 5 on the graph input",
				Inject:   func() { mailbox.Update(native(5), +1) },
			},
			{
				Describe: "relay consumes it and produces the matching output message",
				Inject: func() {
					leaf.Consume(0, native(5), 1)
					leaf.Produce(0, native(5), 1)
				},
			},
		},
	}
}

// FeedbackLoop is spec.md §8 scenario 2: a child whose output feeds back
// into its own input (advancing an iteration count) as well as out to the
// graph output.
func FeedbackLoop(logger utils.Logger, maxIterations int) Scenario {
	b := subgraph.NewBuilder("feedback-loop", order.IntTime(0), order.IntSummary(0), order.IntSummary(0), logger)
	if maxIterations > 0 {
		b.SetMaxReachabilityIterations(maxIterations)
	}
	in := b.NewInput(countmap.New[order.Timestamp]())
	out := b.NewOutput()

	loopSummary := emptySummaryTable(1, 1)
	loopSummary[0][0].Insert(order.LocalSummary(order.IntSummary(1)))
	loop := subgraph.NewLeaf("loop-body", 1, 1, loopSummary)
	child := b.AddScope(loop)

	b.Connect(pointstamp.GraphInput(in), pointstamp.ScopeInput(child, 0))
	b.Connect(pointstamp.ScopeOutput(child, 0), pointstamp.ScopeInput(child, 0))
	b.Connect(pointstamp.ScopeOutput(child, 0), pointstamp.GraphOutput(out))

	sg := seal(b)

	return Scenario{
		Name:     "feedback-loop",
		Subgraph: sg,
		Steps: []Step{
			{
				Describe: "loop body claims an initial capability at iteration 0",
				Inject:   func() { loop.Progress(0, native(0), +1) },
			},
			{
				Describe: "loop body advances to iteration 1 and retires iteration 0",
				Inject: func() {
					loop.Progress(0, native(1), +1)
					loop.Progress(0, native(0), -1)
				},
			},
			{
				Describe: "loop body exits, dropping its capability entirely",
				Inject:   func() { loop.Progress(0, native(1), -1) },
			},
		},
	}
}

// NestedScope is spec.md §8 scenario 4: an inner subgraph (itself built
// around a leaf whose internal summary is Local(+1)) hosted as a child scope of an outer
// subgraph, exercising the outer<->inner Product timestamp projection at
// the scope boundary.
func NestedScope(logger utils.Logger, maxIterations int) Scenario {
	outerMailbox := countmap.New[order.Timestamp]()
	outerB := subgraph.NewBuilder("outer", order.IntTime(0), order.IntSummary(0), order.IntSummary(0), logger)
	if maxIterations > 0 {
		outerB.SetMaxReachabilityIterations(maxIterations)
	}
	outerIn := outerB.NewInput(outerMailbox)
	outerOut := outerB.NewOutput()

	innerB := subgraph.NewBuilder("inner", order.IntTime(0), order.IntSummary(0), order.LocalSummary(order.IntSummary(0)), logger)
	innerMailbox := countmap.New[order.Timestamp]()
	innerIn := innerB.NewInput(innerMailbox)
	innerOut := innerB.NewOutput()

	loopSummary := emptySummaryTable(1, 1)
	loopSummary[0][0].Insert(order.LocalSummary(order.IntSummary(1)))
	loop := subgraph.NewLeaf("loop-body", 1, 1, loopSummary)
	loopChild := innerB.AddScope(loop)
	innerB.Connect(pointstamp.GraphInput(innerIn), pointstamp.ScopeInput(loopChild, 0))
	innerB.Connect(pointstamp.ScopeOutput(loopChild, 0), pointstamp.GraphOutput(innerOut))

	innerSg := innerB.Subgraph()
	innerIndex := outerB.AddScope(innerSg)
	outerB.Connect(pointstamp.GraphInput(outerIn), pointstamp.ScopeInput(innerIndex, 0))
	outerB.Connect(pointstamp.ScopeOutput(innerIndex, 0), pointstamp.GraphOutput(outerOut))

	sg := seal(outerB)

	return Scenario{
		Name:     "nested-scope",
		Subgraph: sg,
		Steps: []Step{
			{
				Describe: "inject a message at outer time 5 on the graph input",
				Inject:   func() { outerMailbox.Update(native(5), +1) },
			},
			{
				Describe: "the message enters the inner subgraph's input; the inner loop body consumes it and relays it straight through",
				Inject: func() {
					innerMailbox.Update(order.NewProduct(order.NewProduct(order.IntTime(5), order.IntTime(0)), order.IntTime(0)), +1)
					loop.Consume(0, order.NewProduct(order.NewProduct(order.IntTime(5), order.IntTime(0)), order.IntTime(0)), 1)
					loop.Produce(0, order.NewProduct(order.NewProduct(order.IntTime(5), order.IntTime(0)), order.IntTime(0)), 1)
				},
			},
		},
	}
}

// Pipeline is spec.md §8 scenario 3: two children chained in series,
// exercising message produce/consume accounting across an internal edge.
func Pipeline(logger utils.Logger, maxIterations int) Scenario {
	mailbox := countmap.New[order.Timestamp]()
	b := subgraph.NewBuilder("pipeline", order.IntTime(0), order.IntSummary(0), order.IntSummary(0), logger)
	if maxIterations > 0 {
		b.SetMaxReachabilityIterations(maxIterations)
	}
	in := b.NewInput(mailbox)
	out := b.NewOutput()

	stage1 := subgraph.NewLeaf("stage-1", 1, 1, identitySummaryTable(1, 1, order.IntSummary(0)))
	stage2 := subgraph.NewLeaf("stage-2", 1, 1, identitySummaryTable(1, 1, order.IntSummary(0)))
	c1 := b.AddScope(stage1)
	c2 := b.AddScope(stage2)

	b.Connect(pointstamp.GraphInput(in), pointstamp.ScopeInput(c1, 0))
	b.Connect(pointstamp.ScopeOutput(c1, 0), pointstamp.ScopeInput(c2, 0))
	b.Connect(pointstamp.ScopeOutput(c2, 0), pointstamp.GraphOutput(out))

	sg := seal(b)

	return Scenario{
		Name:     "pipeline",
		Subgraph: sg,
		Steps: []Step{
			{
				Describe: "inject a message at time 3 on the graph input",
				Inject:   func() { mailbox.Update(native(3), +1) },
			},
			{
				Describe: "stage 1 consumes it and forwards it to stage 2",
				Inject: func() {
					stage1.Consume(0, native(3), 1)
					stage1.Produce(0, native(3), 1)
				},
			},
			{
				Describe: "stage 2 consumes it and produces the final output message",
				Inject: func() {
					stage2.Consume(0, native(3), 1)
					stage2.Produce(0, native(3), 1)
				},
			},
		},
	}
}

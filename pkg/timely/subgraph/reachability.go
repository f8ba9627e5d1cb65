package subgraph

import (
	"github.com/timelyprogress/pkg/timely/antichain"
	"github.com/timelyprogress/pkg/timely/order"
	"github.com/timelyprogress/pkg/timely/pointstamp"
)

// targetChains maps a reachable target to the minimal antichain of
// summaries describing the ways to reach it from some fixed source.
type targetChains map[pointstamp.Target]*antichain.Antichain[order.PathSummary]

func newTargetChains() targetChains { return make(targetChains) }

// tryAdd finds or creates tgt's antichain within table and inserts s,
// reporting whether the antichain changed.
func tryAdd(table targetChains, tgt pointstamp.Target, s order.PathSummary) bool {
	chain, ok := table[tgt]
	if !ok {
		chain = antichain.New[order.PathSummary](order.LessEqual)
		table[tgt] = chain
	}
	return chain.Insert(s)
}

// sourceSummary pairs an upstream source with the summary of the single
// hop from it to some fixed target.
type sourceSummary struct {
	Source  pointstamp.Source
	Summary order.PathSummary
}

// targetToSources resolves a target's immediate upstream sources: for a
// graph output, every graph input via the parent-supplied external
// summaries; for a child's input, every output of that same child via its
// declared internal summary.
func (sg *Subgraph) targetToSources(tgt pointstamp.Target) []sourceSummary {
	var out []sourceSummary
	switch tgt.Kind {
	case pointstamp.TargetGraphOutput:
		o := tgt.Port
		for i := 0; i < sg.numInputs; i++ {
			for _, s := range sg.externalSummaries[o][i].Elements() {
				out = append(out, sourceSummary{
					Source:  pointstamp.GraphInput(i),
					Summary: sg.wrapExternalSummary(s),
				})
			}
		}
	case pointstamp.TargetScopeInput:
		g, p := tgt.Scope, tgt.Port
		child := sg.children[g]
		for o := 0; o < child.scope.Outputs(); o++ {
			for _, s := range child.summary[p][o].Elements() {
				out = append(out, sourceSummary{Source: pointstamp.ScopeOutput(g, o), Summary: s})
			}
		}
	}
	return out
}

// sourceTableFor returns the reachability table keyed by the entries
// reachable from src.
func (sg *Subgraph) sourceTableFor(src pointstamp.Source) targetChains {
	if src.Kind == pointstamp.SourceGraphInput {
		return sg.inputSummaries[src.Port]
	}
	return sg.sourceSummaries[src.Scope][src.Port]
}

// notifyFilterOK reports whether tgt should participate in reachability:
// a child with NotifyMe() == false is excluded as a target.
func (sg *Subgraph) notifyFilterOK(tgt pointstamp.Target) bool {
	if tgt.Kind == pointstamp.TargetScopeInput {
		return sg.children[tgt.Scope].scope.NotifyMe()
	}
	return true
}

// setSummaries recomputes source_summaries, input_summaries and
// target_summaries from the declared edges, each child's internal
// summaries, and (if set_external_summary has run) the parent's external
// summaries. It is a worklist-style saturation to a fixed point: running it
// twice in a row yields identical tables.
func (sg *Subgraph) setSummaries() {
	n := len(sg.children)

	sg.sourceSummaries = make([][]targetChains, n)
	for g, c := range sg.children {
		sg.sourceSummaries[g] = make([]targetChains, c.scope.Outputs())
		for o := range sg.sourceSummaries[g] {
			sg.sourceSummaries[g][o] = newTargetChains()
		}
	}
	sg.inputSummaries = make([]targetChains, sg.numInputs)
	for i := range sg.inputSummaries {
		sg.inputSummaries[i] = newTargetChains()
	}

	for _, e := range sg.edges {
		if !sg.notifyFilterOK(e.Target) {
			continue
		}
		tryAdd(sg.sourceTableFor(e.Source), e.Target, sg.defaultSummary)
	}

	changed := true
	iterations := 0
	for changed {
		changed = false
		iterations++
		if iterations > sg.maxReachabilityIterations {
			fatalNonTermination(sg.logger, iterations)
		}
		for _, e := range sg.edges {
			for _, ss := range sg.targetToSources(e.Target) {
				srcTable := sg.sourceTableFor(ss.Source)
				for tgt2, chain := range srcTable {
					for _, u := range chain.Elements() {
						composed := ss.Summary.FollowedBy(u)
						if tryAdd(sg.sourceTableFor(e.Source), tgt2, composed) {
							changed = true
						}
					}
				}
			}
		}
	}

	sg.targetSummaries = make([][]targetChains, n)
	for g, c := range sg.children {
		sg.targetSummaries[g] = make([]targetChains, c.scope.Inputs())
		for p := range sg.targetSummaries[g] {
			table := newTargetChains()
			for _, ss := range sg.targetToSources(pointstamp.ScopeInput(g, p)) {
				srcTable := sg.sourceTableFor(ss.Source)
				for tgt2, chain := range srcTable {
					for _, u := range chain.Elements() {
						tryAdd(table, tgt2, ss.Summary.FollowedBy(u))
					}
				}
			}
			sg.targetSummaries[g][p] = table
		}
	}
}

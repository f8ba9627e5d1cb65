// Package order defines the timestamp and path-summary algebra that the
// rest of pkg/timely is built over: partially ordered values, and static
// bounds ("summaries") on how a path through a graph moves them forward.
package order

// Timestamp is a partially ordered, equatable value with a designated zero
// element. Concrete timestamps (IntTime, Product) are expected to be plain
// comparable Go values so they can key a map directly.
type Timestamp interface {
	// LessEqual reports whether the receiver precedes or equals other in
	// the partial order. Implementations only need to handle comparisons
	// against their own concrete type; a mismatched dynamic type is a
	// programmer error in the caller and may panic.
	LessEqual(other Timestamp) bool
	Equal(other Timestamp) bool
	// Zero returns the default element of the receiver's concrete type.
	Zero() Timestamp
}

// PathSummary bounds how a timestamp advances along a static path through a
// graph. Two summaries compose via FollowedBy, and ResultsIn must be
// monotone in its argument.
type PathSummary interface {
	ResultsIn(t Timestamp) Timestamp
	FollowedBy(next PathSummary) PathSummary
	// LessEqualSummary orders summaries by pointwise ResultsIn dominance:
	// s.LessEqualSummary(o) means s reaches everywhere o reaches, or earlier.
	LessEqualSummary(other PathSummary) bool
	Equal(other PathSummary) bool
	// Zero returns the identity summary for the receiver's concrete type
	// (the summary for which ResultsIn is the identity function).
	Zero() PathSummary
}

// LessEqual is the comparator antichain.Antichain[PathSummary] is built
// with throughout pkg/timely/subgraph.
func LessEqual(a, b PathSummary) bool { return a.LessEqualSummary(b) }

// TimestampLessEqual is the comparator antichain.Antichain[Timestamp] (and
// antichain.MutableAntichain[Timestamp]) are built with.
func TimestampLessEqual(a, b Timestamp) bool { return a.LessEqual(b) }

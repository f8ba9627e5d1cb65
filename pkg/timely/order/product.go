package order

// Product is a nested timestamp (TOuter, TInner), ordered lexicographically:
// when the outer coordinates are equal the inner coordinates decide,
// otherwise p <= q iff p's outer coordinate is <= q's. It is itself a
// Timestamp, so subgraphs can be nested to arbitrary depth by repeatedly
// wrapping Product around a caller-supplied inner Timestamp.
type Product struct {
	Outer Timestamp
	Inner Timestamp
}

// NewProduct pairs an outer and inner timestamp into a Product.
func NewProduct(outer, inner Timestamp) Product {
	return Product{Outer: outer, Inner: inner}
}

func (p Product) LessEqual(other Timestamp) bool {
	o := other.(Product)
	if p.Outer.Equal(o.Outer) {
		return p.Inner.LessEqual(o.Inner)
	}
	return p.Outer.LessEqual(o.Outer)
}

func (p Product) Equal(other Timestamp) bool {
	o, ok := other.(Product)
	return ok && p.Outer.Equal(o.Outer) && p.Inner.Equal(o.Inner)
}

func (p Product) Zero() Timestamp {
	return Product{Outer: p.Outer.Zero(), Inner: p.Inner.Zero()}
}

// summaryKind distinguishes the two constructors of a nested path summary.
type summaryKind int

const (
	summaryLocal summaryKind = iota
	summaryOuter
)

// NestedSummary is Summary<SOuter,SInner> = Local(SInner) | Outer(SOuter,SInner)
// from the data model: a path either stays within the current scope
// (Local, only advancing the inner coordinate) or exits through the outer
// scope and back in (Outer, resetting the inner coordinate on return).
type NestedSummary struct {
	kind  summaryKind
	outer PathSummary // unset (nil) when kind == summaryLocal
	inner PathSummary
}

// LocalSummary builds a summary that never leaves the enclosing scope.
func LocalSummary(inner PathSummary) NestedSummary {
	return NestedSummary{kind: summaryLocal, inner: inner}
}

// OuterSummary builds a summary that exits through the outer scope via s
// before re-entering, resetting the inner coordinate.
func OuterSummary(outer, inner PathSummary) NestedSummary {
	return NestedSummary{kind: summaryOuter, outer: outer, inner: inner}
}

// IsLocal reports whether the summary never leaves the enclosing scope.
func (s NestedSummary) IsLocal() bool { return s.kind == summaryLocal }

// OuterSummaryValue returns the outer-scope summary; only meaningful when !IsLocal().
func (s NestedSummary) OuterSummaryValue() PathSummary { return s.outer }

// InnerSummaryValue returns the inner-scope summary component of either constructor.
func (s NestedSummary) InnerSummaryValue() PathSummary { return s.inner }

func (s NestedSummary) ResultsIn(t Timestamp) Timestamp {
	p := t.(Product)
	if s.kind == summaryLocal {
		return Product{Outer: p.Outer, Inner: s.inner.ResultsIn(p.Inner)}
	}
	return Product{
		Outer: s.outer.ResultsIn(p.Outer),
		Inner: s.inner.ResultsIn(p.Inner.Zero()),
	}
}

func (s NestedSummary) FollowedBy(next PathSummary) PathSummary {
	o := next.(NestedSummary)
	switch {
	case s.kind == summaryLocal && o.kind == summaryLocal:
		return LocalSummary(s.inner.FollowedBy(o.inner))
	case s.kind == summaryLocal && o.kind == summaryOuter:
		// The outer excursion subsumes any prior inner-only iteration.
		return o
	case s.kind == summaryOuter && o.kind == summaryLocal:
		return OuterSummary(s.outer, s.inner.FollowedBy(o.inner))
	default:
		return OuterSummary(s.outer.FollowedBy(o.outer), o.inner)
	}
}

func (s NestedSummary) LessEqualSummary(other PathSummary) bool {
	o := other.(NestedSummary)
	switch {
	case s.kind == summaryLocal && o.kind == summaryLocal:
		return s.inner.LessEqualSummary(o.inner)
	case s.kind == summaryLocal && o.kind == summaryOuter:
		return true // Local < Outer always.
	case s.kind == summaryOuter && o.kind == summaryLocal:
		return false
	default:
		return s.outer.LessEqualSummary(o.outer) && s.inner.LessEqualSummary(o.inner)
	}
}

func (s NestedSummary) Equal(other PathSummary) bool {
	o, ok := other.(NestedSummary)
	if !ok || s.kind != o.kind {
		return false
	}
	if s.kind == summaryLocal {
		return s.inner.Equal(o.inner)
	}
	return s.outer.Equal(o.outer) && s.inner.Equal(o.inner)
}

// Zero is Local(innerZero), the identity summary: it neither advances the
// inner coordinate nor leaves the scope.
func (s NestedSummary) Zero() PathSummary {
	return LocalSummary(s.inner.Zero())
}

// Package pointstamp defines the graph-entity vocabulary a subgraph
// reasons about (sources, targets, locations) and the per-location delta
// buckets that accumulate pending pointstamp updates between propagation
// passes.
package pointstamp

import "fmt"

// SourceKind distinguishes the two constructors of Source.
type SourceKind int

const (
	// SourceGraphInput is a message entering the subgraph from its parent.
	SourceGraphInput SourceKind = iota
	// SourceScopeOutput is a message produced by a child scope's output port.
	SourceScopeOutput
)

// Source is a producer of messages inside a subgraph: either one of the
// subgraph's own graph inputs, or an output port of one of its children.
type Source struct {
	Kind  SourceKind
	Scope int // valid when Kind == SourceScopeOutput
	Port  int // graph-input index, or child output index
}

// GraphInput builds a Source naming one of the subgraph's own inputs.
func GraphInput(i int) Source { return Source{Kind: SourceGraphInput, Port: i} }

// ScopeOutput builds a Source naming output port of child scope.
func ScopeOutput(scope, port int) Source {
	return Source{Kind: SourceScopeOutput, Scope: scope, Port: port}
}

func (s Source) String() string {
	if s.Kind == SourceGraphInput {
		return fmt.Sprintf("GraphInput(%d)", s.Port)
	}
	return fmt.Sprintf("ScopeOutput(%d,%d)", s.Scope, s.Port)
}

// TargetKind distinguishes the two constructors of Target.
type TargetKind int

const (
	// TargetGraphOutput is one of the subgraph's own outputs.
	TargetGraphOutput TargetKind = iota
	// TargetScopeInput is an input port of one of the subgraph's children.
	TargetScopeInput
)

// Target is a consumer of messages inside a subgraph: either one of the
// subgraph's own graph outputs, or an input port of one of its children.
type Target struct {
	Kind  TargetKind
	Scope int // valid when Kind == TargetScopeInput
	Port  int // graph-output index, or child input index
}

// GraphOutput builds a Target naming one of the subgraph's own outputs.
func GraphOutput(o int) Target { return Target{Kind: TargetGraphOutput, Port: o} }

// ScopeInput builds a Target naming an input port of a child scope.
func ScopeInput(scope, port int) Target {
	return Target{Kind: TargetScopeInput, Scope: scope, Port: port}
}

func (t Target) String() string {
	if t.Kind == TargetGraphOutput {
		return fmt.Sprintf("GraphOutput(%d)", t.Port)
	}
	return fmt.Sprintf("ScopeInput(%d,%d)", t.Scope, t.Port)
}

// LocationKind distinguishes the two constructors of Location.
type LocationKind int

const (
	LocationSource LocationKind = iota
	LocationTarget
)

// Location is either a Source or a Target, used to identify the offending
// site in diagnostics and as the unit pointstamp updates are addressed to.
type Location struct {
	Kind   LocationKind
	Source Source
	Target Target
}

// SourceLoc wraps a Source as a Location.
func SourceLoc(s Source) Location { return Location{Kind: LocationSource, Source: s} }

// TargetLoc wraps a Target as a Location.
func TargetLoc(t Target) Location { return Location{Kind: LocationTarget, Target: t} }

func (l Location) String() string {
	if l.Kind == LocationSource {
		return l.Source.String()
	}
	return l.Target.String()
}

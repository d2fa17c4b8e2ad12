// Package diagram renders the engage and handover graph of a script, with an
// optional overlay of what a recorded run actually visited.
package diagram

// NodeKind classifies a diagram node.
type NodeKind string

const (
	NodeKindOrigin    NodeKind = "origin"
	NodeKindFlow      NodeKind = "flow"
	NodeKindMissing   NodeKind = "missing" // engaged but never defined
	NodeKindTributary NodeKind = "tributary"
	NodeKindEnd       NodeKind = "end"
)

// Edge labels.
const (
	EdgeEngage   = "engage"
	EdgeHandover = "handover"
	EdgeEnd      = "end"
)

// Overlay statuses.
const (
	StatusVisited = "visited"
	StatusFailed  = "failed"
)

// DiagramModel is the intermediate representation used by all renderers.
type DiagramModel struct {
	Title  string
	Nodes  []*Node
	Edges  []Edge
	Levels [][]string
}

// Node is a flow, a tributary or the end of the run.
type Node struct {
	ID     string
	Label  string
	Kind   NodeKind
	Status *StatusOverlay
}

// StatusOverlay carries what a recorded run did at a node.
type StatusOverlay struct {
	Status string
	Visits int
	Error  string
}

// Edge is an engage, handover or end reachable from a flow.
type Edge struct {
	From  string
	To    string
	Label string
}

package diagram

import (
	"fmt"

	"github.com/rendis/chatflow/internal/store"
	"github.com/rendis/chatflow/pkg/ast"
	"github.com/rendis/chatflow/pkg/runtime"
	"github.com/rendis/chatflow/pkg/schema"
)

// EndID is the ID of the virtual node every `end` statement points to.
const EndID = "__end__"

// FlowID returns the node ID of a flow.
func FlowID(name string) string { return "flow_" + name }

// TributaryID returns the node ID of a tributary.
func TributaryID(name string) string { return "trib_" + name }

// flowCalls is what one flow body refers to, in source order.
type flowCalls struct {
	engages   []string
	handovers []string
	ends      bool
}

// Build constructs a DiagramModel from a parsed script. When transcript is
// non-nil, nodes the run went through carry a status overlay.
func Build(script *ast.Script, transcript *store.Transcript) (*DiagramModel, error) {
	if script == nil {
		return nil, fmt.Errorf("diagram: script is nil")
	}

	calls := make(map[string]*flowCalls, len(script.Flows))
	var order []string
	for _, fl := range script.Flows {
		if _, dup := calls[fl.Name]; dup {
			continue
		}
		calls[fl.Name] = collectCalls(fl.Body)
		order = append(order, fl.Name)
	}

	nodeIndex := make(map[string]*Node)
	var nodes []*Node
	addNode := func(n *Node) *Node {
		if existing, ok := nodeIndex[n.ID]; ok {
			return existing
		}
		nodeIndex[n.ID] = n
		nodes = append(nodes, n)
		return n
	}

	for _, name := range order {
		kind := NodeKindFlow
		if name == runtime.Origin {
			kind = NodeKindOrigin
		}
		addNode(&Node{ID: FlowID(name), Label: name, Kind: kind})
	}

	var edges []Edge
	usesEnd := false
	var tributaries []string
	for _, name := range order {
		c := calls[name]
		for _, target := range c.engages {
			if _, defined := calls[target]; !defined {
				addNode(&Node{ID: FlowID(target), Label: target + " (undefined)", Kind: NodeKindMissing})
			}
			edges = append(edges, Edge{From: FlowID(name), To: FlowID(target), Label: EdgeEngage})
		}
		for _, trib := range c.handovers {
			if _, seen := nodeIndex[TributaryID(trib)]; !seen {
				tributaries = append(tributaries, TributaryID(trib))
			}
			addNode(&Node{ID: TributaryID(trib), Label: trib, Kind: NodeKindTributary})
			edges = append(edges, Edge{From: FlowID(name), To: TributaryID(trib), Label: EdgeHandover})
		}
		if c.ends {
			usesEnd = true
			edges = append(edges, Edge{From: FlowID(name), To: EndID, Label: EdgeEnd})
		}
	}
	if usesEnd {
		addNode(&Node{ID: EndID, Label: "End", Kind: NodeKindEnd})
	}

	model := &DiagramModel{
		Title:  "Script",
		Nodes:  nodes,
		Edges:  edges,
		Levels: buildLevels(order, calls, tributaries, usesEnd),
	}
	if transcript != nil {
		overlay(model, nodeIndex, transcript)
	}
	return model, nil
}

func collectCalls(body *ast.Block) *flowCalls {
	c := &flowCalls{}
	seenEngage := make(map[string]bool)
	seenHandover := make(map[string]bool)
	ast.Inspect(body, func(s ast.Statement) bool {
		switch st := s.(type) {
		case *ast.Engage:
			if !seenEngage[st.Flow] {
				seenEngage[st.Flow] = true
				c.engages = append(c.engages, st.Flow)
			}
		case *ast.Handover:
			if !seenHandover[st.Tributary] {
				seenHandover[st.Tributary] = true
				c.handovers = append(c.handovers, st.Tributary)
			}
		case *ast.End:
			c.ends = true
		}
		return true
	})
	return c
}

// buildLevels lays flows out by engage distance from origin. Unreached flows
// share one level after that, then tributaries, then the end node.
func buildLevels(order []string, calls map[string]*flowCalls, tributaries []string, usesEnd bool) [][]string {
	var levels [][]string
	placed := make(map[string]bool)

	if _, ok := calls[runtime.Origin]; ok {
		frontier := []string{runtime.Origin}
		placed[runtime.Origin] = true
		for len(frontier) > 0 {
			level := make([]string, 0, len(frontier))
			var next []string
			for _, name := range frontier {
				level = append(level, FlowID(name))
				c, defined := calls[name]
				if !defined {
					continue
				}
				for _, target := range c.engages {
					if !placed[target] {
						placed[target] = true
						next = append(next, target)
					}
				}
			}
			levels = append(levels, level)
			frontier = next
		}
	}

	var unreached []string
	for _, name := range order {
		if !placed[name] {
			placed[name] = true
			unreached = append(unreached, FlowID(name))
		}
	}
	for _, name := range order {
		for _, target := range calls[name].engages {
			if !placed[target] {
				placed[target] = true
				unreached = append(unreached, FlowID(target))
			}
		}
	}
	if len(unreached) > 0 {
		levels = append(levels, unreached)
	}
	if len(tributaries) > 0 {
		levels = append(levels, tributaries)
	}
	if usesEnd {
		levels = append(levels, []string{EndID})
	}
	return levels
}

// overlay marks the flows, tributaries and end a recorded run went through.
func overlay(model *DiagramModel, index map[string]*Node, t *store.Transcript) {
	model.Title = "Run " + t.RunID
	mark := func(id string) *StatusOverlay {
		n, ok := index[id]
		if !ok {
			return nil
		}
		if n.Status == nil {
			n.Status = &StatusOverlay{Status: StatusVisited}
		}
		n.Status.Visits++
		return n.Status
	}

	var last *StatusOverlay
	for _, name := range t.Flows {
		if s := mark(FlowID(name)); s != nil {
			last = s
		}
	}
	for _, name := range t.Handovers {
		mark(TributaryID(name))
	}

	switch t.Status {
	case schema.RunStatusTerminated:
		mark(EndID)
	case schema.RunStatusFailed:
		if last != nil {
			last.Status = StatusFailed
			last.Error = t.Error
		}
	}
}

package hierarchy

import (
	"strconv"

	"github.com/bits-and-blooms/bitset"
)

// Node is one class in a built Graph.
type Node struct {
	ID       TypeID
	Name     string
	Bases    []TypeID // direct bases, registration order
	Derived  []TypeID // direct derived classes
	Abstract bool
	Slot     int // dense topological index
}

// Graph is the immutable result of Builder.Build.
// It's safe for concurrent reads.
type Graph struct {
	nodes     []Node         // by slot
	slots     map[TypeID]int // id -> slot
	ancestors []*bitset.BitSet
}

// Len returns the number of classes.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Node returns the class at a slot.
func (g *Graph) Node(slot int) *Node {
	return &g.nodes[slot]
}

// Lookup finds a class by id.
func (g *Graph) Lookup(id TypeID) (*Node, bool) {
	slot, ok := g.slots[id]
	if !ok {
		return nil, false
	}
	return &g.nodes[slot], true
}

// Has reports whether id is part of the graph.
func (g *Graph) Has(id TypeID) bool {
	_, ok := g.slots[id]
	return ok
}

// Slot returns the dense index of a class, or -1 if it is unknown.
func (g *Graph) Slot(id TypeID) int {
	if slot, ok := g.slots[id]; ok {
		return slot
	}
	return -1
}

// Name returns the class name, falling back to "#id" for anonymous or
// unknown classes.
func (g *Graph) Name(id TypeID) string {
	if n, ok := g.Lookup(id); ok && n.Name != "" {
		return n.Name
	}
	return "#" + strconv.FormatUint(uint64(id), 10)
}

// IsSubtype reports whether a is b or derives from b, directly or not.
// Unknown ids are never subtypes of anything.
func (g *Graph) IsSubtype(a, b TypeID) bool {
	sa, ok := g.slots[a]
	if !ok {
		return false
	}
	sb, ok := g.slots[b]
	if !ok {
		return false
	}
	return g.SlotIsSubtype(sa, sb)
}

// SlotIsSubtype is IsSubtype over slot indices.
func (g *Graph) SlotIsSubtype(a, b int) bool {
	return g.ancestors[a].Test(uint(b))
}

// Ancestors returns a and all of its bases, transitively, in slot order.
func (g *Graph) Ancestors(id TypeID) []TypeID {
	slot, ok := g.slots[id]
	if !ok {
		return nil
	}
	anc := g.ancestors[slot]
	result := make([]TypeID, 0, anc.Count())
	for i, ok := anc.NextSet(0); ok; i, ok = anc.NextSet(i + 1) {
		result = append(result, g.nodes[i].ID)
	}
	return result
}

// Subtypes returns base and every class deriving from it, in slot order.
func (g *Graph) Subtypes(base TypeID) []TypeID {
	sb, ok := g.slots[base]
	if !ok {
		return nil
	}
	var result []TypeID
	for slot := sb; slot < len(g.nodes); slot++ {
		if g.SlotIsSubtype(slot, sb) {
			result = append(result, g.nodes[slot].ID)
		}
	}
	return result
}

// Concrete returns every non-abstract class in slot order.
func (g *Graph) Concrete() []TypeID {
	var result []TypeID
	for i := range g.nodes {
		if !g.nodes[i].Abstract {
			result = append(result, g.nodes[i].ID)
		}
	}
	return result
}

// IDs returns every class id in slot order.
func (g *Graph) IDs() []TypeID {
	result := make([]TypeID, len(g.nodes))
	for i := range g.nodes {
		result[i] = g.nodes[i].ID
	}
	return result
}

package dispatch

import (
	"iter"
	"slices"

	"github.com/chazu/multimethod/hierarchy"
	"github.com/chazu/multimethod/phash"
)

// Outcome is the precomputed result of a dispatch cell.
type Outcome uint8

const (
	NotImplemented Outcome = iota // no applicable override
	Selected                      // a unique most specific override
	Ambiguous                     // several undominated overrides
)

func (o Outcome) String() string {
	switch o {
	case Selected:
		return "selected"
	case Ambiguous:
		return "ambiguous"
	default:
		return "not-implemented"
	}
}

// Cell is the resolution of one combination of argument classes.
// Cells are shared between combinations with the same applicable set.
type Cell struct {
	Outcome  Outcome
	Selected *Override // set when Outcome is Selected
	// Maxima are the undominated overrides; more than one when ambiguous.
	Maxima []*Override
	// Chain lists every applicable override, most specific first.
	Chain []*Override
}

// ---------------------------------------------------------------------------
// Axis
// ---------------------------------------------------------------------------

// Axis maps the runtime types of one virtual parameter to a group index.
type Axis struct {
	Position int // argument position
	hash     *phash.Function
	groupOf  []int32 // hash slot -> group
	domain   []hierarchy.TypeID
	domainG  []int32            // domain entry -> group
	groups   [][]hierarchy.TypeID // group -> member classes
}

// Domain returns the concrete classes dispatched on, in slot order.
func (a *Axis) Domain() []hierarchy.TypeID {
	return slices.Clone(a.domain)
}

// Groups returns the number of distinct applicable-override sets.
func (a *Axis) Groups() int {
	return len(a.groups)
}

// Group returns the classes sharing group g.
func (a *Axis) Group(g int) []hierarchy.TypeID {
	return slices.Clone(a.groups[g])
}

// Hash returns the axis perfect hash.
func (a *Axis) Hash() *phash.Function {
	return a.hash
}

func (a *Axis) group(id hierarchy.TypeID) (int, bool) {
	slot, ok := a.hash.Index(uint64(id))
	if !ok {
		return 0, false
	}
	return int(a.groupOf[slot]), true
}

// ---------------------------------------------------------------------------
// Table
// ---------------------------------------------------------------------------

// Table is the compiled dispatch structure of one generic function.
// It's immutable and safe for concurrent reads.
type Table struct {
	fn        *Function
	graph     *hierarchy.Graph
	overrides []*Override // as of compile time
	axes      []Axis
	strides   []int
	cells     []*Cell
	report    FunctionReport
}

// Function returns the generic function this table dispatches.
func (t *Table) Function() *Function {
	return t.fn
}

// Overrides returns the overrides compiled into the table.
func (t *Table) Overrides() []*Override {
	return slices.Clone(t.overrides)
}

// Axes returns the number of axes.
func (t *Table) Axes() int {
	return len(t.axes)
}

// Axis returns axis i.
func (t *Table) Axis(i int) *Axis {
	return &t.axes[i]
}

// Len returns the number of table cells after grouping.
func (t *Table) Len() int {
	return len(t.cells)
}

// Report returns the compile statistics of this table.
func (t *Table) Report() FunctionReport {
	return t.report
}

// Lookup finds the cell for the given virtual argument types. When a type
// is outside an axis domain it returns nil and that axis.
func (t *Table) Lookup(types []hierarchy.TypeID) (*Cell, int) {
	idx := 0
	for i := range t.axes {
		g, ok := t.axes[i].group(types[i])
		if !ok {
			return nil, i
		}
		idx += g * t.strides[i]
	}
	return t.cells[idx], -1
}

// Combinations yields every combination of concrete argument classes with
// its cell, the last axis varying fastest. Each yielded slice is fresh.
func (t *Table) Combinations() iter.Seq2[[]hierarchy.TypeID, *Cell] {
	return func(yield func([]hierarchy.TypeID, *Cell) bool) {
		n := len(t.axes)
		for i := range t.axes {
			if len(t.axes[i].domain) == 0 {
				return
			}
		}
		pos := make([]int, n)
		for {
			types := make([]hierarchy.TypeID, n)
			idx := 0
			for i := range t.axes {
				ax := &t.axes[i]
				types[i] = ax.domain[pos[i]]
				idx += int(ax.domainG[pos[i]]) * t.strides[i]
			}
			if !yield(types, t.cells[idx]) {
				return
			}

			i := n - 1
			for ; i >= 0; i-- {
				pos[i]++
				if pos[i] < len(t.axes[i].domain) {
					break
				}
				pos[i] = 0
			}
			if i < 0 {
				return
			}
		}
	}
}

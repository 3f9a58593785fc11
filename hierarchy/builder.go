package hierarchy

import (
	"strconv"
	"sync"

	"github.com/bits-and-blooms/bitset"
)

// TypeID is the stable identifier of a runtime type, supplied by the host.
// Distinct classes must never share an id.
type TypeID uint64

// Descriptor is the registration record for one class.
type Descriptor struct {
	ID       TypeID
	Name     string
	Bases    []TypeID
	Abstract bool
}

// ---------------------------------------------------------------------------
// Builder: mutable registration side
// ---------------------------------------------------------------------------

// Builder collects class descriptors until Build is called.
// It's safe for concurrent registration.
type Builder struct {
	mu    sync.RWMutex
	order []TypeID
	byID  map[TypeID]*Descriptor
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{
		byID: make(map[TypeID]*Descriptor),
	}
}

// Register records a class. Bases may name classes that are registered
// later; they are only checked by Build.
func (b *Builder) Register(d Descriptor) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.byID[d.ID]; ok {
		return &ClassError{Kind: ErrDuplicateClass, ID: d.ID, Name: d.Name}
	}

	// Own the base slice, dropping repeats.
	var bases []TypeID
	seen := make(map[TypeID]bool, len(d.Bases))
	for _, base := range d.Bases {
		if !seen[base] {
			seen[base] = true
			bases = append(bases, base)
		}
	}
	d.Bases = bases

	b.byID[d.ID] = &d
	b.order = append(b.order, d.ID)
	return nil
}

// Has reports whether id has been registered.
func (b *Builder) Has(id TypeID) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.byID[id]
	return ok
}

// Len returns the number of registered classes.
func (b *Builder) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.order)
}

// Descriptor returns a copy of the registration record for id.
func (b *Builder) Descriptor(id TypeID) (Descriptor, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	d, ok := b.byID[id]
	if !ok {
		return Descriptor{}, false
	}
	out := *d
	out.Bases = append([]TypeID(nil), d.Bases...)
	return out, true
}

// Build validates the registered classes and produces an immutable Graph.
// The builder stays usable: more classes can be registered and built again.
func (b *Builder) Build() (*Graph, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := len(b.order)
	index := make(map[TypeID]int, n)
	for i, id := range b.order {
		index[id] = i
	}

	for _, id := range b.order {
		d := b.byID[id]
		for _, base := range d.Bases {
			if _, ok := index[base]; !ok {
				return nil, &ClassError{Kind: ErrUnknownBase, ID: id, Name: d.Name, Base: base}
			}
		}
	}

	// Kahn ordering, bases before derived. The queue starts in
	// registration order, so ties are broken deterministically.
	pending := make([]int, n)
	derived := make([][]int, n)
	for i, id := range b.order {
		d := b.byID[id]
		pending[i] = len(d.Bases)
		for _, base := range d.Bases {
			bi := index[base]
			derived[bi] = append(derived[bi], i)
		}
	}

	queue := make([]int, 0, n)
	for i := range b.order {
		if pending[i] == 0 {
			queue = append(queue, i)
		}
	}
	topo := make([]int, 0, n)
	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]
		topo = append(topo, i)
		for _, di := range derived[i] {
			pending[di]--
			if pending[di] == 0 {
				queue = append(queue, di)
			}
		}
	}

	if len(topo) != n {
		return nil, b.cycleError(index, pending)
	}

	g := &Graph{
		nodes:     make([]Node, n),
		slots:     make(map[TypeID]int, n),
		ancestors: make([]*bitset.BitSet, n),
	}
	for slot, i := range topo {
		id := b.order[i]
		g.slots[id] = slot
	}
	for slot, i := range topo {
		d := b.byID[b.order[i]]
		node := Node{
			ID:       d.ID,
			Name:     d.Name,
			Abstract: d.Abstract,
			Slot:     slot,
			Bases:    append([]TypeID(nil), d.Bases...),
		}
		for _, di := range derived[i] {
			node.Derived = append(node.Derived, b.order[di])
		}
		g.nodes[slot] = node

		// Every base has a smaller slot, so its closure is already final.
		anc := bitset.New(uint(n))
		anc.Set(uint(slot))
		for _, base := range d.Bases {
			anc.InPlaceUnion(g.ancestors[g.slots[base]])
		}
		g.ancestors[slot] = anc
	}

	return g, nil
}

// cycleError walks base links among the classes Kahn ordering could not
// place until it revisits one, and reports that loop.
func (b *Builder) cycleError(index map[TypeID]int, pending []int) error {
	start := -1
	for i := range b.order {
		if pending[i] > 0 {
			start = i
			break
		}
	}

	var path []int
	at := make(map[int]int)
	for cur := start; ; {
		if pos, ok := at[cur]; ok {
			path = path[pos:]
			break
		}
		at[cur] = len(path)
		path = append(path, cur)

		next := -1
		for _, base := range b.byID[b.order[cur]].Bases {
			if bi := index[base]; pending[bi] > 0 {
				next = bi
				break
			}
		}
		if next < 0 {
			// Unreachable for a consistent pending count.
			break
		}
		cur = next
	}

	cycle := make([]string, 0, len(path)+1)
	for _, i := range path {
		cycle = append(cycle, b.label(b.order[i]))
	}
	if len(path) > 0 {
		cycle = append(cycle, b.label(b.order[path[0]]))
	}

	first := b.byID[b.order[start]]
	if len(path) > 0 {
		first = b.byID[b.order[path[0]]]
	}
	return &ClassError{Kind: ErrCyclicHierarchy, ID: first.ID, Name: first.Name, Cycle: cycle}
}

func (b *Builder) label(id TypeID) string {
	if d := b.byID[id]; d != nil && d.Name != "" {
		return d.Name
	}
	return "#" + strconv.FormatUint(uint64(id), 10)
}

package dispatch

import (
	"fmt"
	"time"

	"github.com/bits-and-blooms/bitset"
	"github.com/google/uuid"
	"github.com/tliron/commonlog"

	"github.com/chazu/multimethod/hierarchy"
	"github.com/chazu/multimethod/phash"
)

var log = commonlog.GetLogger("multimethod.dispatch")

// Compile builds a table for every function in reg over graph g.
// Ambiguous and unimplemented cells are recorded, not treated as errors;
// the only failure past validation is an axis hash that cannot be built.
func Compile(g *hierarchy.Graph, reg *Registry, opts Options) (*Snapshot, error) {
	fns := reg.Functions()
	snap := &Snapshot{
		Generation: uuid.New(),
		CompiledAt: time.Now(),
		graph:      g,
		tables:     make([]*Table, len(fns)),
		byName:     make(map[string]*Table, len(fns)),
		report:     &Report{},
	}

	for _, fn := range fns {
		t, err := compileFunction(g, fn, opts)
		if err != nil {
			return nil, err
		}
		snap.tables[fn.id] = t
		snap.byName[fn.Name] = t
		snap.report.add(t.report)
		log.Debugf("compiled %s: %d overrides, %d cells in %d stored, %d ambiguous, %d not implemented",
			fn.Name, t.report.Overrides, t.report.Cells, t.report.TableCells,
			t.report.AmbiguousCells, t.report.NotImplementedCells)
	}
	return snap, nil
}

// compileFunction groups each axis domain by applicable overrides, hashes
// the domain, and ranks the applicable set of every group combination.
func compileFunction(g *hierarchy.Graph, fn *Function, opts Options) (*Table, error) {
	overrides := fn.Overrides()
	k := fn.Axes()

	slots := make([][]int, len(overrides))
	for i, o := range overrides {
		slots[i] = make([]int, k)
		for a, id := range o.Classes {
			s := g.Slot(id)
			if s < 0 {
				return nil, &RegistrationError{Kind: ErrUnknownClass, Function: fn.Name, Detail: fmt.Sprintf("%s: #%d not in hierarchy", o, id)}
			}
			slots[i][a] = s
		}
	}

	t := &Table{
		fn:        fn,
		graph:     g,
		overrides: overrides,
		axes:      make([]Axis, k),
		strides:   make([]int, k),
	}
	t.report = FunctionReport{Function: fn.Name, Overrides: len(overrides), Axes: make([]AxisReport, k)}

	sets := make([][]*bitset.BitSet, k)
	for a := 0; a < k; a++ {
		domain, err := axisDomain(g, fn, a)
		if err != nil {
			return nil, err
		}

		ax := &t.axes[a]
		ax.Position = fn.Virtual[a]
		ax.domain = domain
		ax.domainG = make([]int32, len(domain))

		byKey := make(map[string]int)
		for j, c := range domain {
			cs := g.Slot(c)
			applicable := bitset.New(uint(len(overrides)))
			for i := range overrides {
				if g.SlotIsSubtype(cs, slots[i][a]) {
					applicable.Set(uint(i))
				}
			}
			key := applicable.String()
			gi, ok := byKey[key]
			if !ok {
				gi = len(ax.groups)
				byKey[key] = gi
				ax.groups = append(ax.groups, nil)
				sets[a] = append(sets[a], applicable)
			}
			ax.groups[gi] = append(ax.groups[gi], c)
			ax.domainG[j] = int32(gi)
		}

		keys := make([]uint64, len(domain))
		for j, c := range domain {
			keys[j] = uint64(c)
		}
		h, err := phash.Build(keys, opts.hashOptions())
		if err != nil {
			return nil, fmt.Errorf("%w: %s axis %d: %w", ErrHashConstructionFailed, fn.Name, a, err)
		}
		ax.hash = h
		ax.groupOf = make([]int32, h.Size())
		for j, c := range domain {
			slot, _ := h.Index(uint64(c))
			ax.groupOf[slot] = ax.domainG[j]
		}

		t.report.Axes[a] = AxisReport{
			Position:     ax.Position,
			Domain:       len(domain),
			Groups:       len(ax.groups),
			HashBits:     h.Bits(),
			HashAttempts: h.Attempts(),
		}
		if h.Attempts() > 1 {
			log.Debugf("%s axis %d: hash over %d classes took %d attempts, %d bits",
				fn.Name, a, len(domain), h.Attempts(), h.Bits())
		}
	}

	total := 1
	for a := k - 1; a >= 0; a-- {
		t.strides[a] = total
		total *= len(t.axes[a].groups)
	}
	t.cells = make([]*Cell, total)

	r := ranker{graph: g, overrides: overrides, slots: slots}
	cache := make(map[string]*Cell)
	pos := make([]int, k)
	for idx := 0; idx < total; idx++ {
		rem := idx
		for a := 0; a < k; a++ {
			pos[a] = rem / t.strides[a]
			rem %= t.strides[a]
		}

		applicable := sets[0][pos[0]].Clone()
		weight := len(t.axes[0].groups[pos[0]])
		for a := 1; a < k; a++ {
			applicable.InPlaceIntersection(sets[a][pos[a]])
			weight *= len(t.axes[a].groups[pos[a]])
		}

		key := applicable.String()
		cell, ok := cache[key]
		if !ok {
			cell = r.rank(applicable)
			cache[key] = cell
		}
		t.cells[idx] = cell

		t.report.Cells += weight
		switch cell.Outcome {
		case Ambiguous:
			t.report.AmbiguousCells += weight
		case NotImplemented:
			t.report.NotImplementedCells += weight
		}
	}
	t.report.TableCells = total
	t.report.DistinctCells = len(cache)

	return t, nil
}

// axisDomain returns the concrete classes an axis dispatches on.
func axisDomain(g *hierarchy.Graph, fn *Function, a int) ([]hierarchy.TypeID, error) {
	if fn.Bounds == nil {
		return g.Concrete(), nil
	}
	bound := fn.Bounds[a]
	if !g.Has(bound) {
		return nil, &RegistrationError{Kind: ErrUnknownClass, Function: fn.Name, Detail: fmt.Sprintf("bound #%d not in hierarchy", bound)}
	}
	var domain []hierarchy.TypeID
	for _, id := range g.Subtypes(bound) {
		if n, _ := g.Lookup(id); !n.Abstract {
			domain = append(domain, id)
		}
	}
	return domain, nil
}

// ---------------------------------------------------------------------------
// Specificity ranking
// ---------------------------------------------------------------------------

type ranker struct {
	graph     *hierarchy.Graph
	overrides []*Override
	slots     [][]int // override -> axis -> class slot
}

// moreSpecific reports whether override p is at least as derived as q on
// every axis. Signatures are unique, so for p != q this is strict on at
// least one axis.
func (r *ranker) moreSpecific(p, q int) bool {
	if p == q {
		return false
	}
	for a := range r.slots[p] {
		if !r.graph.SlotIsSubtype(r.slots[p][a], r.slots[q][a]) {
			return false
		}
	}
	return true
}

// undominated reports whether no candidate in set is more specific than p.
func (r *ranker) undominated(p int, set []int) bool {
	for _, q := range set {
		if r.moreSpecific(q, p) {
			return false
		}
	}
	return true
}

// rank decides the outcome of an applicable set and orders its chain: a
// linear extension of specificity that picks the earliest declared
// undominated override at each step.
func (r *ranker) rank(applicable *bitset.BitSet) *Cell {
	var cand []int
	for i, ok := applicable.NextSet(0); ok; i, ok = applicable.NextSet(i + 1) {
		cand = append(cand, int(i))
	}

	cell := &Cell{}
	for _, p := range cand {
		if r.undominated(p, cand) {
			cell.Maxima = append(cell.Maxima, r.overrides[p])
		}
	}
	switch len(cell.Maxima) {
	case 0:
		cell.Outcome = NotImplemented
	case 1:
		cell.Outcome = Selected
		cell.Selected = cell.Maxima[0]
	default:
		cell.Outcome = Ambiguous
	}

	remaining := cand
	for len(remaining) > 0 {
		for i, p := range remaining {
			if r.undominated(p, remaining) {
				cell.Chain = append(cell.Chain, r.overrides[p])
				remaining = append(remaining[:i:i], remaining[i+1:]...)
				break
			}
		}
	}
	return cell
}

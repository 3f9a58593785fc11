package dispatch

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/chazu/multimethod/hierarchy"
)

// Snapshot is one complete, immutable compile: the class graph and a
// table per generic function.
type Snapshot struct {
	Generation uuid.UUID
	CompiledAt time.Time

	graph  *hierarchy.Graph
	tables []*Table // by function declaration index
	byName map[string]*Table
	report *Report
}

// Graph returns the class graph the snapshot was compiled against.
func (s *Snapshot) Graph() *hierarchy.Graph {
	return s.graph
}

// Report returns the compile statistics.
func (s *Snapshot) Report() *Report {
	return s.report
}

// Table returns the table of a function.
func (s *Snapshot) Table(name string) (*Table, bool) {
	t, ok := s.byName[name]
	return t, ok
}

// Tables returns every table in function declaration order.
func (s *Snapshot) Tables() []*Table {
	result := make([]*Table, len(s.tables))
	copy(result, s.tables)
	return result
}

// Resolve finds the selected override of a function for the given
// virtual argument types.
func (s *Snapshot) Resolve(name string, types ...hierarchy.TypeID) (*Resolution, error) {
	t, ok := s.byName[name]
	if !ok {
		return nil, &RegistrationError{Kind: ErrUnknownFunction, Function: name}
	}
	return t.resolve(types)
}

func (s *Snapshot) tableAt(id int) *Table {
	if id < 0 || id >= len(s.tables) {
		return nil
	}
	return s.tables[id]
}

// Explain renders the full applicable list of one cell, for auditing.
func (s *Snapshot) Explain(name string, types ...hierarchy.TypeID) (string, error) {
	t, ok := s.byName[name]
	if !ok {
		return "", &RegistrationError{Kind: ErrUnknownFunction, Function: name}
	}
	if len(types) != t.Axes() {
		return "", &RegistrationError{Kind: ErrArityMismatch, Function: name, Detail: fmt.Sprintf("%d types for %d axes", len(types), t.Axes())}
	}
	cell, axis := t.Lookup(types)
	if cell == nil {
		ce := newCallError(ErrUnknownRuntimeType, t.fn, s.graph, types)
		ce.Axis = axis
		return "", ce
	}
	return DescribeCell(s.graph, name, types, cell), nil
}

// DescribeCell formats a cell as one header line followed by its chain.
func DescribeCell(g *hierarchy.Graph, name string, types []hierarchy.TypeID, cell *Cell) string {
	names := make([]string, len(types))
	for i, id := range types {
		names[i] = g.Name(id)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s(%s): %s", name, strings.Join(names, ", "), cell.Outcome)
	switch cell.Outcome {
	case Selected:
		fmt.Fprintf(&b, " %s", cell.Selected)
	case Ambiguous:
		labels := make([]string, len(cell.Maxima))
		for i, o := range cell.Maxima {
			labels[i] = o.String()
		}
		fmt.Fprintf(&b, " between %s", strings.Join(labels, " and "))
	}
	for i, o := range cell.Chain {
		fmt.Fprintf(&b, "\n  %d. %s", i+1, o)
	}
	return b.String()
}

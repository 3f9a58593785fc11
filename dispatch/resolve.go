package dispatch

import (
	"fmt"
	"slices"

	"github.com/chazu/multimethod/hierarchy"
)

// Resolution is a successfully resolved call site: the function, the
// argument classes and the cell they address.
type Resolution struct {
	Function *Function
	Types    []hierarchy.TypeID
	Cell     *Cell
	graph    *hierarchy.Graph
	// fail applies the runtime's error policy to errors raised by Next.
	// Nil for resolutions made directly on a Snapshot.
	fail func(error) error
}

// Override returns the selected override.
func (r *Resolution) Override() *Override {
	return r.Cell.Selected
}

// Chain returns the applicable overrides, most specific first.
func (r *Resolution) Chain() []*Override {
	return r.Cell.Chain
}

// Invoke runs the selected override with args.
func (r *Resolution) Invoke(args ...any) (any, error) {
	c := &Call{Args: args, Types: r.Types, res: r}
	return r.Cell.Chain[0].Impl(c)
}

// resolve maps types through the axis hashes and checks the outcome.
func (t *Table) resolve(types []hierarchy.TypeID) (*Resolution, error) {
	if len(types) != len(t.axes) {
		return nil, &RegistrationError{
			Kind:     ErrArityMismatch,
			Function: t.fn.Name,
			Detail:   fmt.Sprintf("%d types for %d virtual parameters", len(types), len(t.axes)),
		}
	}

	cell, axis := t.Lookup(types)
	if cell == nil {
		ce := newCallError(ErrUnknownRuntimeType, t.fn, t.graph, types)
		ce.Axis = axis
		return nil, ce
	}

	switch cell.Outcome {
	case Ambiguous:
		ce := newCallError(ErrAmbiguousCall, t.fn, t.graph, types)
		ce.Candidates = cell.Maxima
		return nil, ce
	case NotImplemented:
		return nil, newCallError(ErrNotImplementedCall, t.fn, t.graph, types)
	}

	return &Resolution{Function: t.fn, Types: slices.Clone(types), Cell: cell, graph: t.graph}, nil
}

// ---------------------------------------------------------------------------
// Call: the handle passed to override bodies
// ---------------------------------------------------------------------------

// Call is an override's view of the call in progress.
type Call struct {
	// Args holds all arguments, virtual or not, in position order.
	Args []any
	// Types holds the classes of the virtual arguments in axis order.
	Types []hierarchy.TypeID

	res *Resolution
	pos int // index of the running override in the chain
}

// Override returns the override being run.
func (c *Call) Override() *Override {
	return c.res.Cell.Chain[c.pos]
}

// Function returns the generic function being called.
func (c *Call) Function() *Function {
	return c.res.Function
}

// HasNext reports whether a less specific applicable override follows.
func (c *Call) HasNext() bool {
	return c.pos+1 < len(c.res.Cell.Chain)
}

// Next runs the next-most-specific applicable override with the same
// arguments. Past the end of the chain it fails with ErrNotImplementedCall,
// after the runtime's error policy has seen the error.
func (c *Call) Next() (any, error) {
	return c.NextWith(c.Args...)
}

// NextWith is Next with replacement arguments. The cell is not
// re-resolved: the next override is the one applicable to the original
// argument classes.
func (c *Call) NextWith(args ...any) (any, error) {
	if !c.HasNext() {
		err := error(newCallError(ErrNotImplementedCall, c.res.Function, c.res.graph, c.Types))
		if c.res.fail != nil {
			err = c.res.fail(err)
		}
		return nil, err
	}
	next := &Call{Args: args, Types: c.Types, res: c.res, pos: c.pos + 1}
	return c.res.Cell.Chain[next.pos].Impl(next)
}

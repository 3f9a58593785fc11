package dispatch

import (
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/chazu/multimethod/hierarchy"
)

// ClassSet is what the registry needs to validate override classes.
// hierarchy.Builder satisfies it.
type ClassSet interface {
	Descriptor(id hierarchy.TypeID) (hierarchy.Descriptor, bool)
}

// Registry holds generic functions and their overrides.
// It's safe for concurrent use.
type Registry struct {
	classes ClassSet

	mu     sync.RWMutex
	byName map[string]*Function
	order  []*Function
}

// NewRegistry creates an empty registry validating classes against cs.
func NewRegistry(cs ClassSet) *Registry {
	return &Registry{
		classes: cs,
		byName:  make(map[string]*Function),
	}
}

// Declare creates a generic function dispatching on the given argument
// positions. Redeclaring with the same signature returns the existing
// function.
func (r *Registry) Declare(name string, arity int, virtual ...int) (*Function, error) {
	return r.DeclareBounded(name, arity, virtual, nil)
}

// DeclareBounded is Declare with a bound class per virtual position, in
// the order the positions are given. Only concrete subtypes of a bound
// are dispatched on for that axis.
func (r *Registry) DeclareBounded(name string, arity int, virtual []int, bounds []hierarchy.TypeID) (*Function, error) {
	positions, sortedBounds, err := normalizeSignature(name, arity, virtual, bounds)
	if err != nil {
		return nil, err
	}
	for _, b := range sortedBounds {
		if _, ok := r.classes.Descriptor(b); !ok {
			return nil, &RegistrationError{Kind: ErrUnknownClass, Function: name, Detail: fmt.Sprintf("bound #%d", b)}
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if fn, ok := r.byName[name]; ok {
		if fn.sameSignature(arity, positions, sortedBounds) {
			return fn, nil
		}
		return nil, &RegistrationError{
			Kind:     ErrSignatureConflict,
			Function: name,
			Detail:   fmt.Sprintf("declared as %s, redeclared with arity %d on %v", fn, arity, positions),
		}
	}

	fn := &Function{
		Name:    name,
		Arity:   arity,
		Virtual: positions,
		Bounds:  sortedBounds,
		id:      len(r.order),
	}
	r.byName[name] = fn
	r.order = append(r.order, fn)
	return fn, nil
}

// normalizeSignature validates positions and sorts them, carrying the
// bounds along.
func normalizeSignature(name string, arity int, virtual []int, bounds []hierarchy.TypeID) ([]int, []hierarchy.TypeID, error) {
	if arity < 1 {
		return nil, nil, &RegistrationError{Kind: ErrArityMismatch, Function: name, Detail: fmt.Sprintf("arity %d", arity)}
	}
	if len(virtual) == 0 {
		return nil, nil, &RegistrationError{Kind: ErrArityMismatch, Function: name, Detail: "no virtual parameters"}
	}
	if bounds != nil && len(bounds) != len(virtual) {
		return nil, nil, &RegistrationError{
			Kind:     ErrArityMismatch,
			Function: name,
			Detail:   fmt.Sprintf("%d bounds for %d virtual parameters", len(bounds), len(virtual)),
		}
	}

	idx := make([]int, len(virtual))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return virtual[idx[a]] < virtual[idx[b]] })

	positions := make([]int, len(virtual))
	var sortedBounds []hierarchy.TypeID
	if bounds != nil {
		sortedBounds = make([]hierarchy.TypeID, len(bounds))
	}
	for i, j := range idx {
		p := virtual[j]
		if p < 0 || p >= arity {
			return nil, nil, &RegistrationError{Kind: ErrArityMismatch, Function: name, Detail: fmt.Sprintf("position %d outside arity %d", p, arity)}
		}
		if i > 0 && positions[i-1] == p {
			return nil, nil, &RegistrationError{Kind: ErrArityMismatch, Function: name, Detail: fmt.Sprintf("position %d repeated", p)}
		}
		positions[i] = p
		if bounds != nil {
			sortedBounds[i] = bounds[j]
		}
	}
	return positions, sortedBounds, nil
}

// AddOverride specializes a function on one class per virtual position,
// in ascending position order. Registering the same classes again
// replaces the implementation and keeps the original declaration index.
func (r *Registry) AddOverride(name string, classes []hierarchy.TypeID, impl Impl) (*Override, error) {
	fn, ok := r.Lookup(name)
	if !ok {
		return nil, &RegistrationError{Kind: ErrUnknownFunction, Function: name}
	}
	if impl == nil {
		return nil, &RegistrationError{Kind: ErrNilImpl, Function: name}
	}
	if len(classes) != fn.Axes() {
		return nil, &RegistrationError{
			Kind:     ErrArityMismatch,
			Function: name,
			Detail:   fmt.Sprintf("%d classes for %d virtual parameters", len(classes), fn.Axes()),
		}
	}

	names := make([]string, len(classes))
	for i, id := range classes {
		d, ok := r.classes.Descriptor(id)
		if !ok {
			return nil, &RegistrationError{Kind: ErrUnknownClass, Function: name, Detail: fmt.Sprintf("#%d", id)}
		}
		names[i] = d.Name
		if names[i] == "" {
			names[i] = fmt.Sprintf("#%d", id)
		}
	}

	fn.mu.Lock()
	defer fn.mu.Unlock()

	o := &Override{
		Function: fn,
		Classes:  slices.Clone(classes),
		Impl:     impl,
		Index:    len(fn.overrides),
		label:    overrideLabel(name, names),
	}
	for i, prev := range fn.overrides {
		if slices.Equal(prev.Classes, classes) {
			o.Index = prev.Index
			fn.overrides[i] = o
			return o, nil
		}
	}
	fn.overrides = append(fn.overrides, o)
	return o, nil
}

// Lookup finds a function by name.
func (r *Registry) Lookup(name string) (*Function, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.byName[name]
	return fn, ok
}

// Functions returns every function in declaration order.
func (r *Registry) Functions() []*Function {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.order)
}

// Len returns the number of declared functions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

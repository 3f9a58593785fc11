package dispatch

import (
	"errors"
	"fmt"
	"strings"

	"github.com/chazu/multimethod/hierarchy"
)

// Registration errors.
var (
	ErrSignatureConflict = errors.New("signature conflict")
	ErrUnknownFunction   = errors.New("unknown generic function")
	ErrUnknownClass      = errors.New("unknown class")
	ErrArityMismatch     = errors.New("arity mismatch")
	ErrNilImpl           = errors.New("nil override implementation")
)

// Build errors. Hierarchy problems surface as hierarchy.ErrCyclicHierarchy
// and hierarchy.ErrUnknownBase.
var (
	ErrHashConstructionFailed = errors.New("hash construction failed")
)

// Resolution errors.
var (
	ErrAmbiguousCall      = errors.New("ambiguous call")
	ErrNotImplementedCall = errors.New("not implemented")
	ErrUnknownRuntimeType = errors.New("unknown runtime type")
	ErrNotCompiled        = errors.New("dispatch tables not compiled")
)

// RegistrationError reports a rejected Declare or AddOverride.
type RegistrationError struct {
	Kind     error
	Function string
	Detail   string
}

func (e *RegistrationError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: %v", e.Function, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %s", e.Function, e.Kind, e.Detail)
}

// Unwrap exposes the sentinel kind.
func (e *RegistrationError) Unwrap() error {
	return e.Kind
}

// CallError is the structured outcome of a failed resolution. Types and
// Names hold the classes of the virtual arguments, in axis order. An
// argument the type identifier could not classify has id 0 and is named
// by its Go type; later axes are omitted.
type CallError struct {
	Kind     error
	Function string
	Types    []hierarchy.TypeID
	Names    []string
	// Axis is the offending axis for ErrUnknownRuntimeType, otherwise -1.
	Axis int
	// Candidates lists the undominated overrides of an ambiguous cell.
	Candidates []*Override
}

func (e *CallError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%v: %s(%s)", e.Kind, e.Function, strings.Join(e.Names, ", "))
	if e.Axis >= 0 && e.Axis < len(e.Names) {
		fmt.Fprintf(&b, ": argument %d has unregistered type %s", e.Axis, e.Names[e.Axis])
	}
	if len(e.Candidates) > 0 {
		labels := make([]string, len(e.Candidates))
		for i, o := range e.Candidates {
			labels[i] = o.String()
		}
		fmt.Fprintf(&b, ": candidates %s", strings.Join(labels, ", "))
	}
	return b.String()
}

// Unwrap exposes the sentinel kind.
func (e *CallError) Unwrap() error {
	return e.Kind
}

func newCallError(kind error, fn *Function, g *hierarchy.Graph, types []hierarchy.TypeID) *CallError {
	names := make([]string, len(types))
	for i, id := range types {
		if g != nil {
			names[i] = g.Name(id)
		} else {
			names[i] = fmt.Sprintf("#%d", id)
		}
	}
	name := ""
	if fn != nil {
		name = fn.Name
	}
	return &CallError{
		Kind:     kind,
		Function: name,
		Types:    append([]hierarchy.TypeID(nil), types...),
		Names:    names,
		Axis:     -1,
	}
}

package hierarchy

import (
	"errors"
	"fmt"
	"strings"
)

// Registration and build errors. Test with errors.Is.
var (
	ErrDuplicateClass  = errors.New("duplicate class")
	ErrUnknownBase     = errors.New("unknown base class")
	ErrCyclicHierarchy = errors.New("cyclic class hierarchy")
)

// ClassError carries the class a registration or build error is about.
// For ErrUnknownBase, Base is the missing id. For ErrCyclicHierarchy,
// Cycle lists the classes on one offending cycle.
type ClassError struct {
	Kind  error
	ID    TypeID
	Name  string
	Base  TypeID
	Cycle []string
}

func (e *ClassError) Error() string {
	switch e.Kind {
	case ErrUnknownBase:
		return fmt.Sprintf("%v: class %s references base %d which was never registered", e.Kind, e.label(), e.Base)
	case ErrCyclicHierarchy:
		return fmt.Sprintf("%v: %s", e.Kind, strings.Join(e.Cycle, " -> "))
	default:
		return fmt.Sprintf("%v: %s", e.Kind, e.label())
	}
}

// Unwrap exposes the sentinel kind.
func (e *ClassError) Unwrap() error {
	return e.Kind
}

func (e *ClassError) label() string {
	if e.Name != "" {
		return fmt.Sprintf("%s (#%d)", e.Name, e.ID)
	}
	return fmt.Sprintf("#%d", e.ID)
}

package dispatch

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/chazu/multimethod/hierarchy"
)

// Impl is the body of an override. It receives the call handle, which
// carries the arguments and the position in the cell's next-chain.
type Impl func(c *Call) (any, error)

// ---------------------------------------------------------------------------
// Function: a declared generic function
// ---------------------------------------------------------------------------

// Function is a generic function. Name, Arity, Virtual and Bounds never
// change after Declare; overrides are added through the Registry.
type Function struct {
	Name  string
	Arity int
	// Virtual holds the dispatch positions in ascending order. Override
	// classes line up with it.
	Virtual []int
	// Bounds optionally restricts each axis to subtypes of a class.
	// Nil when the function was declared without bounds.
	Bounds []hierarchy.TypeID

	id int // declaration index, also the snapshot table index

	mu        sync.RWMutex
	overrides []*Override
}

// Axes returns the number of virtual parameters.
func (f *Function) Axes() int {
	return len(f.Virtual)
}

// Overrides returns the current overrides in declaration order.
func (f *Function) Overrides() []*Override {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return slices.Clone(f.overrides)
}

// sameSignature reports whether a redeclaration matches f.
func (f *Function) sameSignature(arity int, virtual []int, bounds []hierarchy.TypeID) bool {
	return f.Arity == arity && slices.Equal(f.Virtual, virtual) && slices.Equal(f.Bounds, bounds)
}

func (f *Function) String() string {
	return fmt.Sprintf("%s/%d%v", f.Name, f.Arity, f.Virtual)
}

// ---------------------------------------------------------------------------
// Override
// ---------------------------------------------------------------------------

// Override is one specialization of a generic function.
// Records are immutable; redefining a signature installs a new record
// at the same declaration index.
type Override struct {
	Function *Function
	Classes  []hierarchy.TypeID // one per virtual position
	Impl     Impl
	// Index is the declaration order within the function. It breaks ties
	// between overrides that specificity leaves unordered.
	Index int
	label string
}

// String returns the signature, e.g. "collide(Asteroid, Ship)".
func (o *Override) String() string {
	return o.label
}

func overrideLabel(fn string, names []string) string {
	return fn + "(" + strings.Join(names, ", ") + ")"
}

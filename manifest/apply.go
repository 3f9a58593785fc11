package manifest

import (
	"errors"
	"fmt"
	"slices"

	"github.com/tliron/commonlog"

	"github.com/chazu/multimethod/dispatch"
	"github.com/chazu/multimethod/hierarchy"
)

var log = commonlog.GetLogger("multimethod.manifest")

var (
	ErrUnknownName   = errors.New("unknown name")
	ErrDuplicateName = errors.New("duplicate name")
	ErrUnboundImpl   = errors.New("no implementation bound")
)

// EntryError reports a manifest entry that could not be applied.
type EntryError struct {
	Section string // "class", "function" or "override"
	Index   int
	Name    string
	Err     error
}

func (e *EntryError) Error() string {
	return fmt.Sprintf("%s[%d] %s: %v", e.Section, e.Index, e.Name, e.Err)
}

func (e *EntryError) Unwrap() error {
	return e.Err
}

// ---------------------------------------------------------------------------
// Binders
// ---------------------------------------------------------------------------

// Binder supplies the implementation of an override entry.
type Binder interface {
	Bind(o *Override, fn *dispatch.Function) (dispatch.Impl, error)
}

// BinderFunc adapts a function to Binder.
type BinderFunc func(o *Override, fn *dispatch.Function) (dispatch.Impl, error)

// Bind calls f.
func (f BinderFunc) Bind(o *Override, fn *dispatch.Function) (dispatch.Impl, error) {
	return f(o, fn)
}

// Constant binds every override to an impl returning its result, or its
// signature when it has none. With next set, the impl returns a list: its
// own value followed by the flattened result of the next override.
var Constant Binder = BinderFunc(func(o *Override, _ *dispatch.Function) (dispatch.Impl, error) {
	return constantImpl(o), nil
})

func constantImpl(o *Override) dispatch.Impl {
	value := o.Result
	if value == nil {
		value = o.Signature()
	}
	if !o.Next {
		return func(*dispatch.Call) (any, error) { return value, nil }
	}
	return func(c *dispatch.Call) (any, error) {
		rest, err := c.Next()
		if err != nil {
			return nil, err
		}
		out := []any{value}
		if more, ok := rest.([]any); ok {
			return append(out, more...), nil
		}
		return append(out, rest), nil
	}
}

// Impls binds overrides by their impl key. Entries without a key get the
// Constant binding.
type Impls map[string]dispatch.Impl

// Bind looks up o.Impl.
func (m Impls) Bind(o *Override, fn *dispatch.Function) (dispatch.Impl, error) {
	if o.Impl == "" {
		return Constant.Bind(o, fn)
	}
	impl, ok := m[o.Impl]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnboundImpl, o.Impl)
	}
	return impl, nil
}

// ---------------------------------------------------------------------------
// Apply
// ---------------------------------------------------------------------------

// Bindings maps the manifest's qualified class names to type ids.
type Bindings struct {
	Classes map[string]hierarchy.TypeID
	order   []string
}

// Class returns the id of a qualified class name.
func (b *Bindings) Class(name string) (hierarchy.TypeID, bool) {
	id, ok := b.Classes[name]
	return id, ok
}

// Names returns the qualified class names in declaration order.
func (b *Bindings) Names() []string {
	return slices.Clone(b.order)
}

func (b *Bindings) resolve(scope, ref string) (hierarchy.TypeID, error) {
	for _, name := range candidates(scope, ref) {
		if id, ok := b.Classes[name]; ok {
			return id, nil
		}
	}
	return 0, fmt.Errorf("%w: class %q", ErrUnknownName, ref)
}

func (b *Bindings) resolveAll(scope string, refs []string) ([]hierarchy.TypeID, error) {
	ids := make([]hierarchy.TypeID, len(refs))
	for i, ref := range refs {
		id, err := b.resolve(scope, ref)
		if err != nil {
			return nil, err
		}
		ids[i] = id
	}
	return ids, nil
}

// Apply registers the manifest's classes, functions and overrides with rt
// and sets rt's compile options. It does not compile. Entries that fail
// are skipped; their errors are joined into the returned error, which
// unwraps to *EntryError values.
func Apply(rt *dispatch.Runtime, m *Manifest, binder Binder) (*Bindings, error) {
	if binder == nil {
		binder = Constant
	}
	var errs []error
	fail := func(section string, i int, name string, err error) {
		errs = append(errs, &EntryError{Section: section, Index: i, Name: name, Err: err})
	}

	b := &Bindings{Classes: make(map[string]hierarchy.TypeID, len(m.Classes))}

	// Pinned ids first, so assigned ones can skip them.
	used := make(map[hierarchy.TypeID]bool)
	for _, c := range m.Classes {
		if c.ID != 0 {
			used[hierarchy.TypeID(c.ID)] = true
		}
	}
	next := hierarchy.TypeID(1)
	assign := func() hierarchy.TypeID {
		for used[next] || rt.Classes().Has(next) {
			next++
		}
		used[next] = true
		return next
	}

	ids := make([]hierarchy.TypeID, len(m.Classes))
	for i := range m.Classes {
		c := &m.Classes[i]
		name := c.QualifiedName()
		if _, dup := b.Classes[name]; dup {
			fail("class", i, name, ErrDuplicateName)
			continue
		}
		id := hierarchy.TypeID(c.ID)
		if id == 0 {
			id = assign()
		}
		ids[i] = id
		b.Classes[name] = id
		b.order = append(b.order, name)
	}

	for i := range m.Classes {
		c := &m.Classes[i]
		if ids[i] == 0 {
			continue
		}
		bases, err := b.resolveAll(c.scope, c.Bases)
		if err != nil {
			fail("class", i, c.QualifiedName(), err)
			continue
		}
		d := hierarchy.Descriptor{ID: ids[i], Name: c.QualifiedName(), Bases: bases, Abstract: c.Abstract}
		if err := rt.RegisterClass(d); err != nil {
			fail("class", i, c.QualifiedName(), err)
		}
	}

	for i := range m.Functions {
		f := &m.Functions[i]
		var err error
		if len(f.Bounds) > 0 {
			var bounds []hierarchy.TypeID
			bounds, err = b.resolveAll(f.scope, f.Bounds)
			if err == nil {
				_, err = rt.DeclareBounded(f.Name, f.Arity, f.Virtual, bounds)
			}
		} else {
			_, err = rt.Declare(f.Name, f.Arity, f.Virtual...)
		}
		if err != nil {
			fail("function", i, f.Name, err)
		}
	}

	for i := range m.Overrides {
		o := &m.Overrides[i]
		fn, ok := rt.Registry().Lookup(o.Function)
		if !ok {
			fail("override", i, o.Signature(), fmt.Errorf("%w: function %q", ErrUnknownName, o.Function))
			continue
		}
		classes, err := b.resolveAll(o.scope, o.Classes)
		if err != nil {
			fail("override", i, o.Signature(), err)
			continue
		}
		impl, err := binder.Bind(o, fn)
		if err != nil {
			fail("override", i, o.Signature(), err)
			continue
		}
		if _, err := rt.AddOverride(o.Function, classes, impl); err != nil {
			fail("override", i, o.Signature(), err)
		}
	}

	rt.SetOptions(m.Compile.Options())

	log.Infof("applied %s: %d classes, %d functions, %d overrides, %d errors",
		m.Path, len(m.Classes), len(m.Functions), len(m.Overrides), len(errs))
	return b, errors.Join(errs...)
}

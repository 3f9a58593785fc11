package dispatch

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/chazu/multimethod/hierarchy"
)

// Runtime ties the class builder, the function registry and the
// currently published snapshot together.
//
// Registration and Compile take a mutex. Resolution loads the published
// snapshot once per call and never blocks; a concurrent Compile swaps in
// a new snapshot without disturbing calls already running on the old one.
type Runtime struct {
	mu       sync.Mutex
	classes  *hierarchy.Builder
	registry *Registry
	opts     Options
	sink     Sink

	policy   atomic.Pointer[policyBox]
	identity atomic.Pointer[identityBox]
	current  atomic.Pointer[Snapshot]
}

type policyBox struct{ p ErrorPolicy }

type identityBox struct{ ti TypeIdentifier }

// NewRuntime creates a runtime with default options.
func NewRuntime() *Runtime {
	return NewRuntimeWithOptions(DefaultOptions())
}

// NewRuntimeWithOptions creates a runtime with the given compile options.
func NewRuntimeWithOptions(opts Options) *Runtime {
	classes := hierarchy.NewBuilder()
	r := &Runtime{
		classes:  classes,
		registry: NewRegistry(classes),
		opts:     opts,
	}
	r.policy.Store(&policyBox{Propagate})
	return r
}

// SetOptions replaces the compile options used by the next Compile.
func (r *Runtime) SetOptions(opts Options) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.opts = opts
}

// SetSink sets the diagnostic sink notified after each successful compile.
func (r *Runtime) SetSink(s Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sink = s
}

// SetErrorPolicy sets the policy applied to resolution errors.
func (r *Runtime) SetErrorPolicy(p ErrorPolicy) {
	if p == nil {
		p = Propagate
	}
	r.policy.Store(&policyBox{p})
}

// SetTypeIdentifier sets the provider Call uses to classify arguments.
func (r *Runtime) SetTypeIdentifier(ti TypeIdentifier) {
	r.identity.Store(&identityBox{ti})
}

// Classes exposes the class builder.
func (r *Runtime) Classes() *hierarchy.Builder {
	return r.classes
}

// Registry exposes the function registry.
func (r *Runtime) Registry() *Registry {
	return r.registry
}

// ---------------------------------------------------------------------------
// Registration
// ---------------------------------------------------------------------------

// RegisterClass records a class descriptor.
func (r *Runtime) RegisterClass(d hierarchy.Descriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.classes.Register(d)
}

// RegisterClasses records several descriptors. Failures do not stop the
// remaining registrations; they are joined into the returned error.
func (r *Runtime) RegisterClasses(ds ...hierarchy.Descriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs []error
	for _, d := range ds {
		if err := r.classes.Register(d); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Declare declares a generic function. See Registry.Declare.
func (r *Runtime) Declare(name string, arity int, virtual ...int) (*Function, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.registry.Declare(name, arity, virtual...)
}

// DeclareBounded declares a generic function with axis bounds.
// See Registry.DeclareBounded.
func (r *Runtime) DeclareBounded(name string, arity int, virtual []int, bounds []hierarchy.TypeID) (*Function, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.registry.DeclareBounded(name, arity, virtual, bounds)
}

// AddOverride adds or replaces an override. See Registry.AddOverride.
// It takes effect at the next Compile.
func (r *Runtime) AddOverride(name string, classes []hierarchy.TypeID, impl Impl) (*Override, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.registry.AddOverride(name, classes, impl)
}

// ---------------------------------------------------------------------------
// Compilation
// ---------------------------------------------------------------------------

// Compile builds the class graph and every dispatch table, then publishes
// the result. On failure nothing is published and the previous snapshot,
// if any, stays in effect.
func (r *Runtime) Compile() (*Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, err := r.classes.Build()
	if err != nil {
		log.Errorf("compile aborted: %s", err)
		return nil, err
	}
	snap, err := Compile(g, r.registry, r.opts)
	if err != nil {
		log.Errorf("compile aborted: %s", err)
		return nil, err
	}

	prev := r.current.Swap(snap)
	rep := snap.report
	if prev == nil {
		log.Infof("compiled %d classes, %s", g.Len(), rep)
	} else {
		log.Infof("recompiled %d classes (replacing %s), %s", g.Len(), prev.Generation, rep)
	}

	if r.sink != nil {
		r.sink.Compiled(snap)
	}
	return rep, nil
}

// Snapshot returns the published snapshot, or nil before the first
// successful compile.
func (r *Runtime) Snapshot() *Snapshot {
	return r.current.Load()
}

// ---------------------------------------------------------------------------
// Resolution
// ---------------------------------------------------------------------------

func (r *Runtime) fail(err error) error {
	return r.policy.Load().p.Handle(err)
}

func (r *Runtime) snapshot() (*Snapshot, error) {
	s := r.current.Load()
	if s == nil {
		return nil, ErrNotCompiled
	}
	return s, nil
}

// Resolve finds the selected override for the given virtual argument
// types in the published snapshot.
func (r *Runtime) Resolve(name string, types ...hierarchy.TypeID) (*Resolution, error) {
	s, err := r.snapshot()
	if err != nil {
		return nil, r.fail(err)
	}
	res, err := s.Resolve(name, types...)
	if err != nil {
		return nil, r.fail(err)
	}
	res.fail = r.fail
	return res, nil
}

// Invoke resolves on the given virtual argument types and runs the
// selected override with args, which must contain all arguments.
func (r *Runtime) Invoke(name string, types []hierarchy.TypeID, args ...any) (any, error) {
	res, err := r.Resolve(name, types...)
	if err != nil || res == nil {
		return nil, err
	}
	return res.Invoke(args...)
}

// Call classifies the virtual arguments with the type identifier, then
// resolves and invokes.
func (r *Runtime) Call(name string, args ...any) (any, error) {
	s, err := r.snapshot()
	if err != nil {
		return nil, r.fail(err)
	}
	t, ok := s.Table(name)
	if !ok {
		return nil, r.fail(&RegistrationError{Kind: ErrUnknownFunction, Function: name})
	}
	return r.callTable(s, t, args)
}

func (r *Runtime) callTable(s *Snapshot, t *Table, args []any) (any, error) {
	fn := t.fn
	if len(args) != fn.Arity {
		return nil, r.fail(&RegistrationError{
			Kind:     ErrArityMismatch,
			Function: fn.Name,
			Detail:   fmt.Sprintf("%d arguments for arity %d", len(args), fn.Arity),
		})
	}

	var ti TypeIdentifier
	if box := r.identity.Load(); box != nil {
		ti = box.ti
	}
	if ti == nil {
		return nil, r.fail(fmt.Errorf("%s: %w: no type identifier configured", fn.Name, ErrUnknownRuntimeType))
	}

	types := make([]hierarchy.TypeID, len(fn.Virtual))
	for i, p := range fn.Virtual {
		id, ok := ti.TypeOf(args[p])
		if !ok {
			// The unidentified axis is recorded as id 0, named by its Go type.
			ce := newCallError(ErrUnknownRuntimeType, fn, s.graph, types[:i+1])
			ce.Names[i] = fmt.Sprintf("%T", args[p])
			ce.Axis = i
			return nil, r.fail(ce)
		}
		types[i] = id
	}

	res, err := t.resolve(types)
	if err != nil {
		return nil, r.fail(err)
	}
	res.fail = r.fail
	return res.Invoke(args...)
}

// ---------------------------------------------------------------------------
// Method: a handle that skips the name lookup
// ---------------------------------------------------------------------------

// Method is a bound handle to one generic function. It always resolves
// against the snapshot published at call time.
type Method struct {
	rt *Runtime
	fn *Function
}

// Method returns a handle to a declared function.
func (r *Runtime) Method(name string) (*Method, error) {
	fn, ok := r.registry.Lookup(name)
	if !ok {
		return nil, &RegistrationError{Kind: ErrUnknownFunction, Function: name}
	}
	return &Method{rt: r, fn: fn}, nil
}

// Function returns the underlying generic function.
func (m *Method) Function() *Function {
	return m.fn
}

func (m *Method) table() (*Snapshot, *Table, error) {
	s, err := m.rt.snapshot()
	if err != nil {
		return nil, nil, err
	}
	t := s.tableAt(m.fn.id)
	if t == nil {
		// Declared after the published compile.
		return nil, nil, ErrNotCompiled
	}
	return s, t, nil
}

// Resolve is Runtime.Resolve for this function.
func (m *Method) Resolve(types ...hierarchy.TypeID) (*Resolution, error) {
	_, t, err := m.table()
	if err != nil {
		return nil, m.rt.fail(err)
	}
	res, err := t.resolve(types)
	if err != nil {
		return nil, m.rt.fail(err)
	}
	res.fail = m.rt.fail
	return res, nil
}

// Invoke is Runtime.Invoke for this function.
func (m *Method) Invoke(types []hierarchy.TypeID, args ...any) (any, error) {
	res, err := m.Resolve(types...)
	if err != nil || res == nil {
		return nil, err
	}
	return res.Invoke(args...)
}

// Call is Runtime.Call for this function.
func (m *Method) Call(args ...any) (any, error) {
	s, t, err := m.table()
	if err != nil {
		return nil, m.rt.fail(err)
	}
	return m.rt.callTable(s, t, args)
}

// Package typeid assigns dispatch type ids to Go types.
//
// A Registry is the default dispatch.TypeIdentifier. Each registered Go
// type becomes a class; an embedded field whose type is also registered
// becomes a direct base, so struct embedding doubles as inheritance:
//
//	reg := typeid.NewRegistry()
//	reg.Register(Employee{})
//	reg.Register(Manager{}) // Manager embeds Employee
//	reg.Install(rt)
package typeid

import (
	"fmt"
	"reflect"
	"slices"
	"sync"

	"github.com/chazu/multimethod/dispatch"
	"github.com/chazu/multimethod/hierarchy"
)

// Info describes a registered Go type.
type Info struct {
	ID       hierarchy.TypeID
	Type     reflect.Type
	Name     string
	Abstract bool
	// Extra holds bases given with Extends, in addition to embedded ones.
	Extra []hierarchy.TypeID
}

// Option adjusts a registration.
type Option func(*Info)

// Abstract marks the class abstract: it can be a base and an override
// class but never the runtime type of an argument.
func Abstract() Option {
	return func(i *Info) { i.Abstract = true }
}

// Named sets the class name. The default is the Go type name.
func Named(name string) Option {
	return func(i *Info) { i.Name = name }
}

// Extends adds explicit bases, for relations embedding cannot express.
func Extends(bases ...hierarchy.TypeID) Option {
	return func(i *Info) { i.Extra = append(i.Extra, bases...) }
}

// Registry maps Go types to type ids and back.
// Safe for concurrent registration and lookup.
type Registry struct {
	mu     sync.RWMutex
	types  map[hierarchy.TypeID]*Info
	byType map[reflect.Type]hierarchy.TypeID
	order  []hierarchy.TypeID
	nextID hierarchy.TypeID
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		types:  make(map[hierarchy.TypeID]*Info),
		byType: make(map[reflect.Type]hierarchy.TypeID),
		nextID: 1, // 0 means unregistered
	}
}

// Register adds the type of sample and returns its id. Pointers are
// dereferenced, so Register(T{}) and Register((*T)(nil)) are the same
// type. A type registered twice keeps its first id and options.
func (r *Registry) Register(sample any, opts ...Option) hierarchy.TypeID {
	t := reflect.TypeOf(sample)
	if t == nil {
		panic("typeid: Register of untyped nil")
	}
	return r.RegisterType(t, opts...)
}

// RegisterType is Register for a reflect.Type.
func (r *Registry) RegisterType(t reflect.Type, opts ...Option) hierarchy.TypeID {
	t = elem(t)

	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.byType[t]; ok {
		return id
	}

	id := r.nextID
	r.nextID++

	info := &Info{ID: id, Type: t, Name: t.Name()}
	if info.Name == "" {
		info.Name = t.String()
	}
	for _, opt := range opts {
		opt(info)
	}
	r.types[id] = info
	r.byType[t] = id
	r.order = append(r.order, id)
	return id
}

// Lookup returns the info for an id.
func (r *Registry) Lookup(id hierarchy.TypeID) (*Info, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.types[id]
	return info, ok
}

// LookupType returns the id of a Go type.
func (r *Registry) LookupType(t reflect.Type) (hierarchy.TypeID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byType[elem(t)]
	return id, ok
}

// ID returns the id of the type of sample. It panics if the type was
// never registered, which makes it convenient in override tables.
func (r *Registry) ID(sample any) hierarchy.TypeID {
	id, ok := r.TypeOf(sample)
	if !ok {
		panic(fmt.Sprintf("typeid: %T is not registered", sample))
	}
	return id
}

// Len returns the number of registered types.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// TypeOf implements dispatch.TypeIdentifier.
func (r *Registry) TypeOf(v any) (hierarchy.TypeID, bool) {
	t := reflect.TypeOf(v)
	if t == nil {
		return 0, false
	}
	return r.LookupType(t)
}

func elem(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}

// ---------------------------------------------------------------------------
// Hierarchy export
// ---------------------------------------------------------------------------

// Descriptors returns one descriptor per registered type, in registration
// order. Bases are the registered types of embedded fields, in field
// order, followed by any Extends bases.
func (r *Registry) Descriptors() []hierarchy.Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]hierarchy.Descriptor, 0, len(r.order))
	for _, id := range r.order {
		info := r.types[id]
		result = append(result, hierarchy.Descriptor{
			ID:       id,
			Name:     info.Name,
			Bases:    r.basesLocked(info),
			Abstract: info.Abstract,
		})
	}
	return result
}

func (r *Registry) basesLocked(info *Info) []hierarchy.TypeID {
	var bases []hierarchy.TypeID
	if info.Type.Kind() == reflect.Struct {
		for i := 0; i < info.Type.NumField(); i++ {
			f := info.Type.Field(i)
			if !f.Anonymous {
				continue
			}
			if id, ok := r.byType[elem(f.Type)]; ok && !slices.Contains(bases, id) {
				bases = append(bases, id)
			}
		}
	}
	for _, id := range info.Extra {
		if !slices.Contains(bases, id) {
			bases = append(bases, id)
		}
	}
	return bases
}

// Install registers every type not yet known to rt and makes the registry
// rt's type identifier. It is safe to call again after more types are
// registered.
func (r *Registry) Install(rt *dispatch.Runtime) error {
	var fresh []hierarchy.Descriptor
	for _, d := range r.Descriptors() {
		if !rt.Classes().Has(d.ID) {
			fresh = append(fresh, d)
		}
	}
	if err := rt.RegisterClasses(fresh...); err != nil {
		return fmt.Errorf("typeid: install: %w", err)
	}
	rt.SetTypeIdentifier(r)
	return nil
}

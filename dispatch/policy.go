package dispatch

import (
	"errors"

	"github.com/chazu/multimethod/hierarchy"
)

// ErrorPolicy decides what happens to a resolution error before it is
// returned to the caller. Returning nil swallows the error; the call then
// yields a nil result.
type ErrorPolicy interface {
	Handle(err error) error
}

// PolicyFunc adapts a function to ErrorPolicy.
type PolicyFunc func(err error) error

// Handle calls f.
func (f PolicyFunc) Handle(err error) error {
	return f(err)
}

// Propagate returns every error unchanged. It is the default policy.
var Propagate ErrorPolicy = PolicyFunc(func(err error) error { return err })

// PanicPolicy panics with the error, for hosts that treat a failed
// dispatch as a programming bug.
type PanicPolicy struct{}

// Handle panics.
func (PanicPolicy) Handle(err error) error {
	panic(err)
}

// Notify returns a policy that passes every structured call error to fn
// and then propagates it.
func Notify(fn func(*CallError)) ErrorPolicy {
	return PolicyFunc(func(err error) error {
		var ce *CallError
		if errors.As(err, &ce) {
			fn(ce)
		}
		return err
	})
}

// TypeIdentifier supplies the runtime type id of a value. It is consulted
// by Runtime.Call for each virtual argument.
type TypeIdentifier interface {
	TypeOf(v any) (hierarchy.TypeID, bool)
}

// TypeIdentifierFunc adapts a function to TypeIdentifier.
type TypeIdentifierFunc func(v any) (hierarchy.TypeID, bool)

// TypeOf calls f.
func (f TypeIdentifierFunc) TypeOf(v any) (hierarchy.TypeID, bool) {
	return f(v)
}

// Sink receives every successfully published snapshot.
type Sink interface {
	Compiled(s *Snapshot)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(s *Snapshot)

// Compiled calls f.
func (f SinkFunc) Compiled(s *Snapshot) {
	f(s)
}

// MultiSink fans a snapshot out to several sinks in order.
type MultiSink []Sink

// Compiled forwards s to every sink.
func (m MultiSink) Compiled(s *Snapshot) {
	for _, sink := range m {
		sink.Compiled(s)
	}
}

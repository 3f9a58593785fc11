// Package dispatch implements open multi-methods over a hierarchy.Graph.
//
// A generic function is declared with an arity and a set of virtual
// parameter positions. Overrides specialize it on one class per virtual
// position. Compile turns every function into a dense table indexed by
// per-axis perfect hashes of the runtime type ids, so resolving a call is
// one hash per virtual argument plus one array load, whatever the depth
// of the hierarchy.
//
// Each table cell holds the outcome for one combination of argument
// classes: the unique most specific applicable override, an ambiguity, or
// nothing applicable. It also holds the full chain of applicable overrides
// from most to least specific, which is what Call.Next walks.
//
// Typical use:
//
//	rt := dispatch.NewRuntime()
//	rt.RegisterClass(hierarchy.Descriptor{ID: 1, Name: "Employee"})
//	rt.RegisterClass(hierarchy.Descriptor{ID: 2, Name: "Manager", Bases: []hierarchy.TypeID{1}})
//	rt.Declare("pay", 1, 0)
//	rt.AddOverride("pay", []hierarchy.TypeID{1}, func(c *dispatch.Call) (any, error) { return 3000, nil })
//	rt.AddOverride("pay", []hierarchy.TypeID{2}, func(c *dispatch.Call) (any, error) {
//		base, err := c.Next()
//		if err != nil {
//			return nil, err
//		}
//		return base.(int) + 2000, nil
//	})
//	if _, err := rt.Compile(); err != nil { ... }
//	v, err := rt.Invoke("pay", []hierarchy.TypeID{2}) // 5000
//
// Registration and Compile are serialized. Compiled snapshots are
// immutable and published atomically, so resolution takes no locks.
package dispatch

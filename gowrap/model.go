// Package gowrap introspects Go packages and generates dispatch type
// registration code from their struct embedding.
package gowrap

import "sort"

// AbstractMarker in a type's doc comment marks the class abstract.
const AbstractMarker = "multimethod:abstract"

// PackageModel is the class structure found in one Go package.
type PackageModel struct {
	ImportPath string
	Name       string // short package name (e.g., "shapes")
	Classes    []ClassModel
}

// ClassModel is an exported struct type.
type ClassModel struct {
	Name     string
	Bases    []string // embedded struct types of the same package, in field order
	Abstract bool
}

// Class returns the class with the given name.
func (m *PackageModel) Class(name string) (*ClassModel, bool) {
	for i := range m.Classes {
		if m.Classes[i].Name == name {
			return &m.Classes[i], true
		}
	}
	return nil, false
}

// Ordered returns the classes with every base before its derived classes,
// ties broken by name.
func (m *PackageModel) Ordered() []ClassModel {
	byName := make(map[string]*ClassModel, len(m.Classes))
	names := make([]string, 0, len(m.Classes))
	for i := range m.Classes {
		byName[m.Classes[i].Name] = &m.Classes[i]
		names = append(names, m.Classes[i].Name)
	}
	sort.Strings(names)

	done := make(map[string]bool, len(names))
	var result []ClassModel
	var visit func(name string)
	visit = func(name string) {
		c, ok := byName[name]
		if !ok || done[name] {
			return
		}
		// Pointer embedding can form cycles. Marking on entry ends the
		// walk; the hierarchy rejects the cycle at build time.
		done[name] = true
		for _, b := range c.Bases {
			visit(b)
		}
		result = append(result, *c)
	}
	for _, name := range names {
		visit(name)
	}
	return result
}

package gowrap

import (
	"strings"
	"unicode"
)

// NamespaceFor derives a class namespace from a Go import path.
// e.g., "example.com/geo-shapes" → "GeoShapes", "example.com/zoo/v2" → "Zoo",
// "shapes" → "Shapes"
func NamespaceFor(importPath string) string {
	parts := strings.Split(importPath, "/")
	last := parts[len(parts)-1]
	// Skip a major version suffix
	if len(parts) > 1 && isMajorVersion(last) {
		last = parts[len(parts)-2]
	}
	return toPascal(last)
}

// ClassName qualifies a Go type name for registration.
// e.g., namespace "Shapes", type "Circle" → "Shapes::Circle"
func ClassName(namespace, typeName string) string {
	if namespace == "" {
		return typeName
	}
	return namespace + "::" + typeName
}

func isMajorVersion(s string) bool {
	if len(s) < 2 || s[0] != 'v' {
		return false
	}
	for _, r := range s[1:] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// toPascal converts a string to PascalCase.
// Handles hyphenated, dotted and underscore-separated names.
func toPascal(s string) string {
	if len(s) == 0 {
		return s
	}

	var b strings.Builder
	nextUpper := true
	for _, r := range s {
		if r == '-' || r == '_' || r == '.' {
			nextUpper = true
			continue
		}
		if nextUpper {
			b.WriteRune(unicode.ToUpper(r))
			nextUpper = false
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

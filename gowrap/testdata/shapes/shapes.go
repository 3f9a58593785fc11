// Package shapes is an introspection fixture.
package shapes

// Shape is the root of the hierarchy.
//
// multimethod:abstract
type Shape struct{ ID int }

type Circle struct {
	Shape
	R float64
}

type Square struct {
	*Shape
	Side float64
}

type (
	// Labeled carries a caption.
	Labeled struct{ Text string }

	// LabeledCircle is a captioned circle.
	LabeledCircle struct {
		Circle
		Labeled
		Owner Square // a field, not a base
	}
)

type hidden struct{ Shape }

// Area is not a struct.
type Area float64

// Drawable is not a struct.
//
// multimethod:abstract
type Drawable interface{ Draw() }

// Plain embeds an unexported struct and a non-struct.
type Plain struct {
	hidden
	Area
}

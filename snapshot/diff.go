package snapshot

import (
	"fmt"
	"slices"
	"strings"
)

// Change is one difference between two documents.
type Change struct {
	Function string
	Types    []uint64 // nil for function-level changes
	Before   string   // empty when added
	After    string   // empty when removed
}

func (c Change) String() string {
	where := c.Function
	if c.Types != nil {
		where = fmt.Sprintf("%s%v", c.Function, c.Types)
	}
	switch {
	case c.Before == "":
		return fmt.Sprintf("+ %s: %s", where, c.After)
	case c.After == "":
		return fmt.Sprintf("- %s: %s", where, c.Before)
	}
	return fmt.Sprintf("~ %s: %s -> %s", where, c.Before, c.After)
}

// Diff lists the functions and cells whose outcome or chain differ
// between a and b, in b's order followed by removals.
func Diff(a, b *Document) []Change {
	before := make(map[string]*Function, len(a.Functions))
	for i := range a.Functions {
		before[a.Functions[i].Name] = &a.Functions[i]
	}

	var changes []Change
	seen := make(map[string]bool)
	for i := range b.Functions {
		fb := &b.Functions[i]
		seen[fb.Name] = true
		fa, ok := before[fb.Name]
		if !ok {
			changes = append(changes, Change{Function: fb.Name, After: "declared"})
			continue
		}
		changes = append(changes, diffCells(fa, fb)...)
	}
	for i := range a.Functions {
		if !seen[a.Functions[i].Name] {
			changes = append(changes, Change{Function: a.Functions[i].Name, Before: "declared"})
		}
	}
	return changes
}

func diffCells(fa, fb *Function) []Change {
	old := make(map[string]*Cell, len(fa.Cells))
	for i := range fa.Cells {
		old[typesKey(fa.Cells[i].Types)] = &fa.Cells[i]
	}

	var changes []Change
	seen := make(map[string]bool, len(fb.Cells))
	for i := range fb.Cells {
		cb := &fb.Cells[i]
		key := typesKey(cb.Types)
		seen[key] = true
		ca, ok := old[key]
		switch {
		case !ok:
			changes = append(changes, Change{Function: fb.Name, Types: cb.Types, After: describe(cb)})
		case ca.Outcome != cb.Outcome || !slices.Equal(ca.Chain, cb.Chain):
			changes = append(changes, Change{Function: fb.Name, Types: cb.Types, Before: describe(ca), After: describe(cb)})
		}
	}
	for i := range fa.Cells {
		ca := &fa.Cells[i]
		if !seen[typesKey(ca.Types)] {
			changes = append(changes, Change{Function: fa.Name, Types: ca.Types, Before: describe(ca)})
		}
	}
	return changes
}

func typesKey(types []uint64) string {
	return fmt.Sprint(types)
}

func describe(c *Cell) string {
	if len(c.Chain) == 0 {
		return c.Outcome
	}
	return c.Outcome + " [" + strings.Join(c.Chain, " > ") + "]"
}

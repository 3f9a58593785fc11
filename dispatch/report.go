package dispatch

import (
	"fmt"
	"strings"
)

// AxisReport describes one compiled axis.
type AxisReport struct {
	Position     int
	Domain       int  // concrete classes dispatched on
	Groups       int  // distinct applicable-override sets
	HashBits     uint // log2 of the hash table size
	HashAttempts int
}

// FunctionReport holds the compile statistics of one generic function.
// Cell counts are over concrete class combinations; TableCells is the
// size of the grouped table actually stored.
type FunctionReport struct {
	Function            string
	Overrides           int
	Cells               int
	AmbiguousCells      int
	NotImplementedCells int
	TableCells          int
	DistinctCells       int
	Axes                []AxisReport
}

// Report aggregates a compile.
type Report struct {
	Functions           []FunctionReport
	Cells               int
	AmbiguousCells      int
	NotImplementedCells int
	TableCells          int
}

func (r *Report) add(fr FunctionReport) {
	r.Functions = append(r.Functions, fr)
	r.Cells += fr.Cells
	r.AmbiguousCells += fr.AmbiguousCells
	r.NotImplementedCells += fr.NotImplementedCells
	r.TableCells += fr.TableCells
}

// Function returns the report of the named function.
func (r *Report) Function(name string) (FunctionReport, bool) {
	for _, fr := range r.Functions {
		if fr.Function == name {
			return fr, true
		}
	}
	return FunctionReport{}, false
}

func (r *Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d functions, %d cells (%d stored), %d ambiguous, %d not implemented",
		len(r.Functions), r.Cells, r.TableCells, r.AmbiguousCells, r.NotImplementedCells)
	for _, fr := range r.Functions {
		fmt.Fprintf(&b, "\n  %s: %d overrides, %d cells (%d stored, %d distinct), %d ambiguous, %d not implemented",
			fr.Function, fr.Overrides, fr.Cells, fr.TableCells, fr.DistinctCells, fr.AmbiguousCells, fr.NotImplementedCells)
	}
	return b.String()
}

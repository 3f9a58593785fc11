package audit

import (
	"fmt"
	"io"
	"slices"

	"github.com/chazu/multimethod/dispatch"
)

// DumpOptions select what WriteDump prints.
type DumpOptions struct {
	// Functions limits the dump to these names; empty means all.
	Functions []string
	// Problems prints only ambiguous and not-implemented cells.
	Problems bool
}

// WriteDump prints every concrete combination of the selected functions
// with its full applicable list, one block per combination.
func WriteDump(w io.Writer, s *dispatch.Snapshot, opts DumpOptions) error {
	g := s.Graph()
	for _, t := range s.Tables() {
		fr := t.Report()
		if len(opts.Functions) > 0 && !slices.Contains(opts.Functions, fr.Function) {
			continue
		}
		if _, err := fmt.Fprintf(w, "# %s: %d overrides, %d cells, %d ambiguous, %d not implemented\n",
			fr.Function, fr.Overrides, fr.Cells, fr.AmbiguousCells, fr.NotImplementedCells); err != nil {
			return err
		}
		for types, cell := range t.Combinations() {
			if opts.Problems && cell.Outcome == dispatch.Selected {
				continue
			}
			if _, err := fmt.Fprintln(w, dispatch.DescribeCell(g, fr.Function, types, cell)); err != nil {
				return err
			}
		}
	}
	return nil
}

// Dump is a sink that writes a dump of every published snapshot.
type Dump struct {
	W       io.Writer
	Options DumpOptions
}

// Compiled implements dispatch.Sink.
func (d *Dump) Compiled(s *dispatch.Snapshot) {
	if err := WriteDump(d.W, s, d.Options); err != nil {
		log.Errorf("dump of %s failed: %s", s.Generation, err)
	}
}

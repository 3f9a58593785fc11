// Package audit provides dispatch.Sink implementations that record what
// each compile produced: log lines, a text dump, or SQLite rows.
package audit

import (
	"strings"

	"github.com/tliron/commonlog"

	"github.com/chazu/multimethod/dispatch"
)

// DefaultMaxWarnings bounds the ambiguity warnings LogSink emits per
// function.
const DefaultMaxWarnings = 16

// LogSink logs a summary of each compile and warns about ambiguous cells.
type LogSink struct {
	Logger commonlog.Logger
	// MaxWarnings caps warnings per function; zero means DefaultMaxWarnings,
	// negative means no cap.
	MaxWarnings int
}

var log = commonlog.GetLogger("multimethod.audit")

// NewLogSink returns a LogSink on the "multimethod.audit" logger.
func NewLogSink() *LogSink {
	return &LogSink{Logger: log}
}

// Compiled implements dispatch.Sink.
func (l *LogSink) Compiled(s *dispatch.Snapshot) {
	logger := l.Logger
	if logger == nil {
		logger = log
	}
	limit := l.MaxWarnings
	if limit == 0 {
		limit = DefaultMaxWarnings
	}

	rep := s.Report()
	logger.Noticef("generation %s: %d functions, %d cells, %d ambiguous, %d not implemented",
		s.Generation, len(rep.Functions), rep.Cells, rep.AmbiguousCells, rep.NotImplementedCells)

	g := s.Graph()
	for _, t := range s.Tables() {
		fr := t.Report()
		if fr.AmbiguousCells == 0 {
			continue
		}
		warned := 0
		for types, cell := range t.Combinations() {
			if cell.Outcome != dispatch.Ambiguous {
				continue
			}
			if limit >= 0 && warned == limit {
				logger.Warningf("%s: %d more ambiguous cells not shown", fr.Function, fr.AmbiguousCells-warned)
				break
			}
			line, _, _ := strings.Cut(dispatch.DescribeCell(g, fr.Function, types, cell), "\n")
			logger.Warningf("%s", line)
			warned++
		}
	}
}

package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/chazu/multimethod/dispatch"
)

const schema = `
CREATE TABLE IF NOT EXISTS compiles (
	generation TEXT PRIMARY KEY,
	compiled_at TEXT NOT NULL,
	classes INTEGER NOT NULL,
	functions INTEGER NOT NULL,
	cells INTEGER NOT NULL,
	ambiguous INTEGER NOT NULL,
	not_implemented INTEGER NOT NULL,
	table_cells INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS functions (
	generation TEXT NOT NULL REFERENCES compiles(generation),
	name TEXT NOT NULL,
	overrides INTEGER NOT NULL,
	cells INTEGER NOT NULL,
	ambiguous INTEGER NOT NULL,
	not_implemented INTEGER NOT NULL,
	table_cells INTEGER NOT NULL,
	distinct_cells INTEGER NOT NULL,
	PRIMARY KEY (generation, name)
);
CREATE TABLE IF NOT EXISTS cells (
	generation TEXT NOT NULL REFERENCES compiles(generation),
	function TEXT NOT NULL,
	types TEXT NOT NULL,
	outcome TEXT NOT NULL,
	selected TEXT,
	chain TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS cells_by_outcome ON cells (generation, outcome);
`

// timeLayout is fixed width so stored times sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// CellRecord is one stored combination.
type CellRecord struct {
	Function string
	Types    string // class names joined by ", "
	Outcome  string
	Selected string // empty unless selected
	Chain    []string
}

// SQLiteSink stores every published snapshot in an SQLite database.
type SQLiteSink struct {
	db *sql.DB
	// Problems stores only ambiguous and not-implemented cells.
	Problems bool
	// Timeout bounds each Compiled write; zero means no bound.
	Timeout time.Duration

	mu      sync.Mutex
	lastErr error
}

// OpenSQLite opens or creates an audit database.
func OpenSQLite(path string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Set busy timeout for concurrent access
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating tables: %w", err)
	}
	return &SQLiteSink{db: db}, nil
}

// Close closes the database.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}

// Err returns the error of the last Compiled write, if it failed.
func (s *SQLiteSink) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Compiled implements dispatch.Sink. Write errors are logged and kept
// for Err.
func (s *SQLiteSink) Compiled(snap *dispatch.Snapshot) {
	ctx := context.Background()
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}
	err := s.Record(ctx, snap)
	if err != nil {
		log.Errorf("audit write for %s failed: %s", snap.Generation, err)
	}
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
}

// Record writes one snapshot in a single transaction.
func (s *SQLiteSink) Record(ctx context.Context, snap *dispatch.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	gen := snap.Generation.String()
	rep := snap.Report()
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO compiles VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		gen, snap.CompiledAt.UTC().Format(timeLayout), snap.Graph().Len(), len(rep.Functions),
		rep.Cells, rep.AmbiguousCells, rep.NotImplementedCells, rep.TableCells,
	); err != nil {
		return fmt.Errorf("saving compile: %w", err)
	}

	fnStmt, err := tx.PrepareContext(ctx, "INSERT INTO functions VALUES (?, ?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("preparing function insert: %w", err)
	}
	defer fnStmt.Close()
	cellStmt, err := tx.PrepareContext(ctx, "INSERT INTO cells VALUES (?, ?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("preparing cell insert: %w", err)
	}
	defer cellStmt.Close()

	g := snap.Graph()
	for _, t := range snap.Tables() {
		fr := t.Report()
		if _, err := fnStmt.ExecContext(ctx, gen, fr.Function, fr.Overrides, fr.Cells,
			fr.AmbiguousCells, fr.NotImplementedCells, fr.TableCells, fr.DistinctCells); err != nil {
			return fmt.Errorf("saving function %s: %w", fr.Function, err)
		}

		for types, cell := range t.Combinations() {
			if s.Problems && cell.Outcome == dispatch.Selected {
				continue
			}
			names := make([]string, len(types))
			for i, id := range types {
				names[i] = g.Name(id)
			}
			var selected sql.NullString
			if cell.Selected != nil {
				selected = sql.NullString{String: cell.Selected.String(), Valid: true}
			}
			chain := make([]string, len(cell.Chain))
			for i, o := range cell.Chain {
				chain[i] = o.String()
			}
			if _, err := cellStmt.ExecContext(ctx, gen, fr.Function, strings.Join(names, ", "),
				cell.Outcome.String(), selected, strings.Join(chain, "\n")); err != nil {
				return fmt.Errorf("saving cell of %s: %w", fr.Function, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing: %w", err)
	}
	return nil
}

// Generations lists recorded generations in the order they were written.
func (s *SQLiteSink) Generations(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT generation FROM compiles ORDER BY rowid")
	if err != nil {
		return nil, fmt.Errorf("querying compiles: %w", err)
	}
	defer rows.Close()

	var result []string
	for rows.Next() {
		var gen string
		if err := rows.Scan(&gen); err != nil {
			return nil, err
		}
		result = append(result, gen)
	}
	return result, rows.Err()
}

// Cells returns the recorded cells of a generation with the given
// outcome, or every cell when outcome is empty.
func (s *SQLiteSink) Cells(ctx context.Context, generation, outcome string) ([]CellRecord, error) {
	query := "SELECT function, types, outcome, selected, chain FROM cells WHERE generation = ?"
	args := []any{generation}
	if outcome != "" {
		query += " AND outcome = ?"
		args = append(args, outcome)
	}
	query += " ORDER BY rowid"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying cells: %w", err)
	}
	defer rows.Close()

	var result []CellRecord
	for rows.Next() {
		var rec CellRecord
		var selected sql.NullString
		var chain string
		if err := rows.Scan(&rec.Function, &rec.Types, &rec.Outcome, &selected, &chain); err != nil {
			return nil, err
		}
		rec.Selected = selected.String
		if chain != "" {
			rec.Chain = strings.Split(chain, "\n")
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

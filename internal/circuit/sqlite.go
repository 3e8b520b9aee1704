package circuit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"slices"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// droppedCellColumns are never sent to clients.
var droppedCellColumns = []string{"orientation", "synapse_class"}

// Opener opens the database of the circuit at path.
type Opener func(path string) (*sql.DB, error)

// OpenSQLite opens an existing circuit database read-only.
func OpenSQLite(path string) (*sql.DB, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, notFound(path, err)
	}
	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("failed to open circuit %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open circuit %s: %w", path, err)
	}
	return db, nil
}

// SQLiteStore implements Store on sqlite circuit files. Opened databases are
// kept for the life of the store.
type SQLiteStore struct {
	open Opener

	// MorphEpsilon is the simplification tolerance applied to astrocyte
	// sections, in micrometers. Zero returns sections as stored.
	MorphEpsilon float64

	mu  sync.Mutex
	dbs map[string]*sql.DB
}

// NewSQLiteStore creates a store. A nil opener uses OpenSQLite.
func NewSQLiteStore(open Opener) *SQLiteStore {
	if open == nil {
		open = OpenSQLite
	}
	return &SQLiteStore{
		open: open,
		dbs:  make(map[string]*sql.DB),
	}
}

func (s *SQLiteStore) db(path string) (*sql.DB, error) {
	if path == "" {
		return nil, notFound(path, errors.New("empty circuit path"))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if db, ok := s.dbs[path]; ok {
		return db, nil
	}
	log.Printf("Opening circuit %s", path)
	db, err := s.open(path)
	if err != nil {
		return nil, err
	}
	s.dbs[path] = db
	return db, nil
}

// Close closes every opened circuit database.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for path, db := range s.dbs {
		if err := db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", path, err))
		}
		delete(s.dbs, path)
	}
	return errors.Join(errs...)
}

func (s *SQLiteStore) Cells(ctx context.Context, path string) (*CellTable, error) {
	db, err := s.db(path)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `SELECT * FROM cells ORDER BY gid`)
	if err != nil {
		return nil, fmt.Errorf("failed to query cells: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var keep []int
	table := &CellTable{}
	for i, c := range cols {
		if slices.Contains(droppedCellColumns, c) {
			continue
		}
		keep = append(keep, i)
		table.Columns = append(table.Columns, c)
	}

	for rows.Next() {
		raw := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan cell: %w", err)
		}

		row := make([]any, len(keep))
		for i, idx := range keep {
			row[i] = normalize(raw[idx])
		}
		table.Rows = append(table.Rows, row)
	}
	return table, rows.Err()
}

func (s *SQLiteStore) Connectome(ctx context.Context, path string, gid int) (*Connectome, error) {
	db, err := s.db(path)
	if err != nil {
		return nil, err
	}

	afferent, err := queryGids(ctx, db, `SELECT DISTINCT pre_gid FROM synapses WHERE post_gid = ? ORDER BY pre_gid`, gid)
	if err != nil {
		return nil, fmt.Errorf("failed to query afferent gids of %d: %w", gid, err)
	}
	efferent, err := queryGids(ctx, db, `SELECT DISTINCT post_gid FROM synapses WHERE pre_gid = ? ORDER BY post_gid`, gid)
	if err != nil {
		return nil, fmt.Errorf("failed to query efferent gids of %d: %w", gid, err)
	}
	return &Connectome{Afferent: afferent, Efferent: efferent}, nil
}

func (s *SQLiteStore) SynConnections(ctx context.Context, path string, gids []int) (*SynConnections, error) {
	db, err := s.db(path)
	if err != nil {
		return nil, err
	}

	out := &SynConnections{
		Connections: make(map[int][][]float64, len(gids)),
		Properties:  SynapseProperties,
	}
	for _, gid := range gids {
		syns, err := querySynapses(ctx, db, gid)
		if err != nil {
			return nil, fmt.Errorf("failed to query synapses of %d: %w", gid, err)
		}
		out.Connections[gid] = syns
	}
	return out, nil
}

func (s *SQLiteStore) Morphology(ctx context.Context, path string, gids []int) (*Morphology, error) {
	db, err := s.db(path)
	if err != nil {
		return nil, err
	}

	out := &Morphology{Cells: make(map[int]CellMorphology, len(gids))}
	for _, gid := range gids {
		var orientation sql.NullString
		err := db.QueryRowContext(ctx, `SELECT orientation FROM cells WHERE gid = ?`, gid).Scan(&orientation)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %d", ErrCellNotFound, gid)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to query orientation of %d: %w", gid, err)
		}

		sections, err := querySections(ctx, db, gid)
		if err != nil {
			return nil, fmt.Errorf("failed to query morphology of %d: %w", gid, err)
		}

		cell := CellMorphology{Sections: sections, Orientation: json.RawMessage("null")}
		if orientation.Valid && json.Valid([]byte(orientation.String)) {
			cell.Orientation = json.RawMessage(orientation.String)
		}
		out.Cells[gid] = cell
	}
	return out, nil
}

func queryGids(ctx context.Context, db *sql.DB, query string, gid int) ([]int, error) {
	rows, err := db.QueryContext(ctx, query, gid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	gids := []int{}
	for rows.Next() {
		var g int
		if err := rows.Scan(&g); err != nil {
			return nil, err
		}
		gids = append(gids, g)
	}
	return gids, rows.Err()
}

func querySynapses(ctx context.Context, db *sql.DB, gid int) ([][]float64, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT post_x_center, post_y_center, post_z_center, type,
		       pre_gid, pre_section_id, post_gid, post_section_id
		FROM synapses
		WHERE post_gid = ?
		ORDER BY pre_gid, pre_section_id`, gid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	syns := [][]float64{}
	for rows.Next() {
		row := make([]float64, len(SynapseProperties))
		ptrs := make([]any, len(row))
		for i := range row {
			ptrs[i] = &row[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		syns = append(syns, row)
	}
	return syns, rows.Err()
}

func querySections(ctx context.Context, db *sql.DB, gid int) ([]Section, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT section_id, section_type, points
		FROM morphology
		WHERE gid = ?
		ORDER BY section_id`, gid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sections := []Section{}
	for rows.Next() {
		var (
			sec    Section
			typ    string
			points string
		)
		if err := rows.Scan(&sec.ID, &typ, &points); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(points), &sec.Points); err != nil {
			return nil, fmt.Errorf("malformed points of section %d: %w", sec.ID, err)
		}
		for i, p := range sec.Points {
			if len(p) > 4 {
				sec.Points[i] = p[:4]
			}
		}
		sec.Type = ShortSectionType(typ)
		sections = append(sections, sec)
	}
	return sections, rows.Err()
}

// normalize converts driver values into JSON friendly ones.
func normalize(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

package circuit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// AstrocyteSomas lists every astrocyte of a circuit. Positions holds x, y, z
// per astrocyte, in the order of IDs.
type AstrocyteSomas struct {
	IDs       []int     `json:"ids"`
	Positions []float64 `json:"positions"`
	Radii     []float64 `json:"radii"`
}

// AstrocyteProps is the astrocyte table row of one astrocyte, keyed by
// column.
type AstrocyteProps map[string]any

// AstrocyteMorphology is the simplified geometry of one astrocyte.
type AstrocyteMorphology struct {
	Sections []Section `json:"sections"`
}

// Microdomain is the triangulated territory of one astrocyte. Vertices holds
// x, y, z per vertex; every entry of Indexes is a triangle.
type Microdomain struct {
	Vertices []float64 `json:"vertices"`
	Indexes  [][]int   `json:"indexes"`
}

// AstrocyteSynapses are the neuron synapses one astrocyte reaches on one
// neuron. Positions holds x, y, z per synapse.
type AstrocyteSynapses struct {
	IDs       []int     `json:"ids"`
	Positions []float64 `json:"positions"`
}

// Astrocyte sections reuse the neuron short names the viewer renders:
// perivascular processes are drawn as apical.
var astrocyteShortTypes = map[string]string{
	"soma":           "soma",
	"basal_dendrite": "dend",
	"axon":           "apic",
}

func astrocyteSectionType(t string) string {
	if s, ok := astrocyteShortTypes[t]; ok {
		return s
	}
	return t
}

func astrocyteNotFound(id int) error {
	return fmt.Errorf("%w: %d", ErrAstrocyteNotFound, id)
}

func (s *SQLiteStore) AstrocyteSomas(ctx context.Context, path string) (*AstrocyteSomas, error) {
	db, err := s.db(path)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `SELECT id, x, y, z, radius FROM astrocytes ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query astrocytes: %w", err)
	}
	defer rows.Close()

	out := &AstrocyteSomas{IDs: []int{}, Positions: []float64{}, Radii: []float64{}}
	for rows.Next() {
		var (
			id         int
			x, y, z, r float64
		)
		if err := rows.Scan(&id, &x, &y, &z, &r); err != nil {
			return nil, fmt.Errorf("failed to scan astrocyte: %w", err)
		}
		out.IDs = append(out.IDs, id)
		out.Positions = append(out.Positions, x, y, z)
		out.Radii = append(out.Radii, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) AstrocyteProps(ctx context.Context, path string, id int) (AstrocyteProps, error) {
	db, err := s.db(path)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `SELECT * FROM astrocytes WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query astrocyte %d: %w", id, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, astrocyteNotFound(id)
	}

	raw := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range raw {
		ptrs[i] = &raw[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, fmt.Errorf("failed to scan astrocyte %d: %w", id, err)
	}

	props := make(AstrocyteProps, len(cols))
	for i, c := range cols {
		props[c] = normalize(raw[i])
	}
	return props, nil
}

func (s *SQLiteStore) EfferentNeurons(ctx context.Context, path string, id int) ([]int, error) {
	db, err := s.db(path)
	if err != nil {
		return nil, err
	}

	gids, err := queryGids(ctx, db, `SELECT DISTINCT neuron_gid FROM astrocyte_synapses WHERE astrocyte_id = ? ORDER BY neuron_gid`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query efferent neurons of astrocyte %d: %w", id, err)
	}
	return gids, nil
}

// AstrocyteMorphology returns the sections of an astrocyte, each simplified
// with MorphEpsilon.
func (s *SQLiteStore) AstrocyteMorphology(ctx context.Context, path string, id int) (*AstrocyteMorphology, error) {
	db, err := s.db(path)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT section_id, section_type, points
		FROM astrocyte_morphology
		WHERE astrocyte_id = ?
		ORDER BY section_id`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query morphology of astrocyte %d: %w", id, err)
	}
	defer rows.Close()

	out := &AstrocyteMorphology{}
	for rows.Next() {
		var (
			sec    Section
			typ    string
			points string
		)
		if err := rows.Scan(&sec.ID, &typ, &points); err != nil {
			return nil, fmt.Errorf("failed to scan astrocyte section: %w", err)
		}
		if err := json.Unmarshal([]byte(points), &sec.Points); err != nil {
			return nil, fmt.Errorf("malformed points of astrocyte %d section %d: %w", id, sec.ID, err)
		}
		sec.Points = simplifyPoints(sec.Points, s.MorphEpsilon)
		for i, p := range sec.Points {
			if len(p) > 4 {
				sec.Points[i] = p[:4]
			}
		}
		sec.Type = astrocyteSectionType(typ)
		out.Sections = append(out.Sections, sec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// every astrocyte has at least a soma
	if len(out.Sections) == 0 {
		return nil, astrocyteNotFound(id)
	}
	return out, nil
}

func (s *SQLiteStore) AstrocyteMicrodomain(ctx context.Context, path string, id int) (*Microdomain, error) {
	db, err := s.db(path)
	if err != nil {
		return nil, err
	}

	var vertices, triangles string
	err = db.QueryRowContext(ctx, `SELECT vertices, triangles FROM astrocyte_microdomains WHERE astrocyte_id = ?`, id).
		Scan(&vertices, &triangles)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, astrocyteNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query microdomain of astrocyte %d: %w", id, err)
	}

	var points [][]float64
	if err := json.Unmarshal([]byte(vertices), &points); err != nil {
		return nil, fmt.Errorf("malformed microdomain vertices of astrocyte %d: %w", id, err)
	}
	out := &Microdomain{Vertices: make([]float64, 0, 3*len(points))}
	for _, p := range points {
		if len(p) < 3 {
			return nil, fmt.Errorf("malformed microdomain vertex of astrocyte %d: %v", id, p)
		}
		out.Vertices = append(out.Vertices, p[0], p[1], p[2])
	}
	if err := json.Unmarshal([]byte(triangles), &out.Indexes); err != nil {
		return nil, fmt.Errorf("malformed microdomain triangles of astrocyte %d: %w", id, err)
	}
	return out, nil
}

func (s *SQLiteStore) AstrocyteSynapses(ctx context.Context, path string, id, neuron int) (*AstrocyteSynapses, error) {
	db, err := s.db(path)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT synapse_id, x, y, z
		FROM astrocyte_synapses
		WHERE astrocyte_id = ? AND neuron_gid = ?
		ORDER BY synapse_id`, id, neuron)
	if err != nil {
		return nil, fmt.Errorf("failed to query synapses of astrocyte %d on %d: %w", id, neuron, err)
	}
	defer rows.Close()

	out := &AstrocyteSynapses{IDs: []int{}, Positions: []float64{}}
	for rows.Next() {
		var (
			syn     int
			x, y, z float64
		)
		if err := rows.Scan(&syn, &x, &y, &z); err != nil {
			return nil, fmt.Errorf("failed to scan astrocyte synapse: %w", err)
		}
		out.IDs = append(out.IDs, syn)
		out.Positions = append(out.Positions, x, y, z)
	}
	return out, rows.Err()
}

package circuit

import (
	"fmt"
	"slices"
)

// positionColumns are reported as positions rather than properties.
var positionColumns = []string{"x", "y", "z"}

// CellTable is the cell table of a circuit, one row per cell ordered by gid.
type CellTable struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// Len returns the number of cells.
func (t *CellTable) Len() int {
	return len(t.Rows)
}

// Props returns every column except the position columns.
func (t *CellTable) Props() []string {
	props := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		if !slices.Contains(positionColumns, c) {
			props = append(props, c)
		}
	}
	return props
}

// Column returns the values of one column.
func (t *CellTable) Column(name string) ([]any, error) {
	idx := slices.Index(t.Columns, name)
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProperty, name)
	}
	out := make([]any, len(t.Rows))
	for i, row := range t.Rows {
		out[i] = row[idx]
	}
	return out, nil
}

// UniqueCount returns the number of distinct values in a column.
func (t *CellTable) UniqueCount(name string) (int, error) {
	col, err := t.Column(name)
	if err != nil {
		return 0, err
	}
	_, uniques := Factorize(col)
	return len(uniques), nil
}

// Positions returns x, y, z of every cell flattened into one sequence.
func (t *CellTable) Positions() ([]float64, error) {
	idx := make([]int, len(positionColumns))
	for i, name := range positionColumns {
		idx[i] = slices.Index(t.Columns, name)
		if idx[i] < 0 {
			return nil, fmt.Errorf("%w: %s", ErrUnknownProperty, name)
		}
	}

	out := make([]float64, 0, len(t.Rows)*3)
	for _, row := range t.Rows {
		for _, i := range idx {
			v, err := toFloat(row[i])
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
	}
	return out, nil
}

// Factorize encodes values as indices into the list of distinct values, in
// order of first appearance.
func Factorize(values []any) ([]int, []any) {
	codes := make([]int, len(values))
	seen := make(map[any]int)
	var uniques []any
	for i, v := range values {
		code, ok := seen[v]
		if !ok {
			code = len(uniques)
			seen[v] = code
			uniques = append(uniques, v)
		}
		codes[i] = code
	}
	return codes, uniques
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case int:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("position value %v is not numeric", v)
	}
}

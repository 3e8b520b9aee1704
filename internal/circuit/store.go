// Package circuit reads circuit datasets: cell tables, connectivity and
// morphology. Each circuit lives in its own sqlite database addressed by
// file path.
package circuit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrCircuitNotFound is returned when the circuit path does not exist.
	ErrCircuitNotFound = errors.New("circuit not found")

	// ErrCellNotFound is returned for gids missing from the cell table.
	ErrCellNotFound = errors.New("cell not found")

	// ErrUnknownProperty is returned for cell properties missing from the table.
	ErrUnknownProperty = errors.New("unknown cell property")

	// ErrAstrocyteNotFound is returned for astrocyte ids missing from the
	// circuit.
	ErrAstrocyteNotFound = errors.New("astrocyte not found")
)

//go:generate mockgen -destination=../mocks/mock_store.go -package=mocks simplane/internal/circuit Store

// Store is the circuit data store used by the gateway.
type Store interface {
	Cells(ctx context.Context, path string) (*CellTable, error)
	Connectome(ctx context.Context, path string, gid int) (*Connectome, error)
	SynConnections(ctx context.Context, path string, gids []int) (*SynConnections, error)
	Morphology(ctx context.Context, path string, gids []int) (*Morphology, error)

	AstrocyteSomas(ctx context.Context, path string) (*AstrocyteSomas, error)
	AstrocyteProps(ctx context.Context, path string, id int) (AstrocyteProps, error)
	EfferentNeurons(ctx context.Context, path string, id int) ([]int, error)
	AstrocyteMorphology(ctx context.Context, path string, id int) (*AstrocyteMorphology, error)
	AstrocyteMicrodomain(ctx context.Context, path string, id int) (*Microdomain, error)
	AstrocyteSynapses(ctx context.Context, path string, id, neuron int) (*AstrocyteSynapses, error)
}

// Connectome lists the gids connected to one cell.
type Connectome struct {
	Afferent []int `json:"afferent"`
	Efferent []int `json:"efferent"`
}

// SynapseProperties names the columns of every SynConnections row.
var SynapseProperties = []string{
	"postXCenter",
	"postYCenter",
	"postZCenter",
	"type",
	"preGid",
	"preSectionGid",
	"postGid",
	"postSectionId",
}

// SynConnections holds the afferent synapses of each requested gid.
type SynConnections struct {
	Connections map[int][][]float64 `json:"connections"`
	Properties  []string            `json:"connection_properties"`
}

// Section is one morphology section. Points are x, y, z, diameter.
type Section struct {
	Points [][]float64 `json:"points"`
	ID     int         `json:"id"`
	Type   string      `json:"type"`
}

// CellMorphology is the geometry of one cell.
type CellMorphology struct {
	Sections    []Section       `json:"sections"`
	Orientation json.RawMessage `json:"orientation"`
}

// Morphology holds the requested cells keyed by gid.
type Morphology struct {
	Cells map[int]CellMorphology `json:"cells"`
}

var sectionShortTypes = map[string]string{
	"soma":            "soma",
	"basal_dendrite":  "dend",
	"apical_dendrite": "apic",
	"axon":            "axon",
}

// ShortSectionType maps a morphology section type to the short name the
// engine uses for section references.
func ShortSectionType(t string) string {
	if s, ok := sectionShortTypes[t]; ok {
		return s
	}
	return t
}

func notFound(path string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrCircuitNotFound, path, err)
}

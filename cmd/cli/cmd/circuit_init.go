package cmd

import (
	"database/sql"
	"fmt"
	"math/rand"

	"simplane/internal/circuit"

	"github.com/spf13/cobra"
)

var circuitInitCmd = &cobra.Command{
	Use:   "circuit-init [path]",
	Short: "Create or upgrade a circuit database",
	Long: `Create a circuit database at path with the current schema, or upgrade an
existing one. With --demo-cells a small synthetic circuit is added, which is
enough to try every command against a local server.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		demo, _ := cmd.Flags().GetInt("demo-cells")
		seed, _ := cmd.Flags().GetInt64("seed")

		db, err := circuit.Create(path)
		if err != nil {
			cmd.Printf("Failed to create circuit: %v\n", err)
			return err
		}
		defer db.Close()

		if demo > 0 {
			if err := seedDemo(db, demo, rand.New(rand.NewSource(seed))); err != nil {
				cmd.Printf("Failed to seed circuit: %v\n", err)
				return err
			}
			cmd.Printf("%s✓%s Circuit %s ready with %d demo cells and %d astrocytes\n",
				colorGreen, colorReset, path, demo, demoAstrocytes(demo))
			return nil
		}
		cmd.Printf("%s✓%s Circuit %s ready\n", colorGreen, colorReset, path)
		return nil
	},
}

var demoMtypes = []struct {
	layer int
	mtype string
	etype string
}{
	{2, "L23_PC", "cADpyr"},
	{4, "L4_SS", "cADpyr"},
	{5, "L5_TTPC", "cADpyr"},
	{5, "L5_MC", "cNAC"},
	{6, "L6_IPC", "cADpyr"},
}

// seedDemo replaces the circuit contents with n synthetic cells, each with a
// soma and two dendrites and three afferent synapses.
func seedDemo(db *sql.DB, n int, rng *rand.Rand) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, table := range []string{
		"cells", "synapses", "morphology",
		"astrocytes", "astrocyte_morphology", "astrocyte_microdomains", "astrocyte_synapses",
	} {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	for gid := 1; gid <= n; gid++ {
		m := demoMtypes[rng.Intn(len(demoMtypes))]
		x, z := rng.Float64()*1000, rng.Float64()*1000
		y := float64(m.layer)*200 + rng.Float64()*150
		class := "EXC"
		if m.etype == "cNAC" {
			class = "INH"
		}
		if _, err := tx.Exec(`INSERT INTO cells (gid, x, y, z, layer, mtype, etype, region, orientation, synapse_class)
			VALUES (?, ?, ?, ?, ?, ?, ?, 'S1', '[[1,0,0],[0,1,0],[0,0,1]]', ?)`,
			gid, x, y, z, m.layer, m.mtype, m.etype, class); err != nil {
			return fmt.Errorf("failed to insert cell %d: %w", gid, err)
		}

		sections := []struct {
			kind   string
			points string
		}{
			{"soma", fmt.Sprintf("[[%.2f,%.2f,%.2f,12]]", x, y, z)},
			{"basal_dendrite", fmt.Sprintf("[[%.2f,%.2f,%.2f,2],[%.2f,%.2f,%.2f,1]]", x, y, z, x+40, y-30, z)},
			{"apical_dendrite", fmt.Sprintf("[[%.2f,%.2f,%.2f,3],[%.2f,%.2f,%.2f,1.5]]", x, y, z, x, y+200, z)},
		}
		for id, s := range sections {
			if _, err := tx.Exec(`INSERT INTO morphology (gid, section_id, section_type, points) VALUES (?, ?, ?, ?)`,
				gid, id, s.kind, s.points); err != nil {
				return fmt.Errorf("failed to insert morphology of cell %d: %w", gid, err)
			}
		}

		if n < 2 {
			continue
		}
		for i := 0; i < 3; i++ {
			pre := rng.Intn(n) + 1
			if pre == gid {
				pre = pre%n + 1
			}
			if _, err := tx.Exec(`INSERT INTO synapses VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				pre, gid, rng.Intn(3), 1+rng.Intn(2), x+rng.Float64()*40, y+rng.Float64()*40, z, 113); err != nil {
				return fmt.Errorf("failed to insert synapse of cell %d: %w", gid, err)
			}
		}
	}

	if err := seedAstrocytes(tx, n, rng); err != nil {
		return err
	}
	return tx.Commit()
}

// demoAstrocytes is the astrocyte count seeded for n demo cells.
func demoAstrocytes(n int) int {
	return (n + 3) / 4
}

// seedAstrocytes adds one astrocyte per four cells, each with a soma, a
// branching process, a perivascular endfoot, a tetrahedral microdomain and
// two synapses on each of two neurons.
func seedAstrocytes(tx *sql.Tx, n int, rng *rand.Rand) error {
	synID := 1
	for id := 1; id <= demoAstrocytes(n); id++ {
		x, y, z := rng.Float64()*1000, 200+rng.Float64()*1000, rng.Float64()*1000
		if _, err := tx.Exec(`INSERT INTO astrocytes (id, x, y, z, radius, mtype, region) VALUES (?, ?, ?, ?, ?, 'protoplasmic', 'S1')`,
			id, x, y, z, 4+rng.Float64()*2); err != nil {
			return fmt.Errorf("failed to insert astrocyte %d: %w", id, err)
		}

		process := fmt.Sprintf("[[%.2f,%.2f,%.2f,1.5]", x, y, z)
		for i := 1; i <= 6; i++ {
			process += fmt.Sprintf(",[%.2f,%.2f,%.2f,%.2f]", x+float64(i)*5, y+rng.Float64()*2, z+float64(i)*3, 1.5-float64(i)*0.2)
		}
		process += "]"
		sections := []struct {
			kind   string
			points string
		}{
			{"soma", fmt.Sprintf("[[%.2f,%.2f,%.2f,5]]", x, y, z)},
			{"basal_dendrite", process},
			{"axon", fmt.Sprintf("[[%.2f,%.2f,%.2f,1],[%.2f,%.2f,%.2f,2.5]]", x, y, z, x, y-25, z)},
		}
		for sec, s := range sections {
			if _, err := tx.Exec(`INSERT INTO astrocyte_morphology (astrocyte_id, section_id, section_type, points) VALUES (?, ?, ?, ?)`,
				id, sec, s.kind, s.points); err != nil {
				return fmt.Errorf("failed to insert morphology of astrocyte %d: %w", id, err)
			}
		}

		vertices := fmt.Sprintf("[[%.2f,%.2f,%.2f],[%.2f,%.2f,%.2f],[%.2f,%.2f,%.2f],[%.2f,%.2f,%.2f]]",
			x-40, y-40, z-40, x+40, y-40, z-40, x, y+40, z-40, x, y, z+40)
		if _, err := tx.Exec(`INSERT INTO astrocyte_microdomains (astrocyte_id, vertices, triangles) VALUES (?, ?, '[[0,1,2],[0,1,3],[1,2,3],[0,2,3]]')`,
			id, vertices); err != nil {
			return fmt.Errorf("failed to insert microdomain of astrocyte %d: %w", id, err)
		}

		for _, neuron := range []int{rng.Intn(n) + 1, rng.Intn(n) + 1} {
			for i := 0; i < 2; i++ {
				if _, err := tx.Exec(`INSERT INTO astrocyte_synapses VALUES (?, ?, ?, ?, ?, ?)`,
					id, synID, neuron, x+rng.Float64()*30, y+rng.Float64()*30, z+rng.Float64()*30); err != nil {
					return fmt.Errorf("failed to insert synapse of astrocyte %d: %w", id, err)
				}
				synID++
			}
		}
	}
	return nil
}

func init() {
	circuitInitCmd.Flags().Int("demo-cells", 0, "seed the circuit with this many synthetic cells")
	circuitInitCmd.Flags().Int64("seed", 1, "random seed for --demo-cells")
	rootCmd.AddCommand(circuitInitCmd)
}

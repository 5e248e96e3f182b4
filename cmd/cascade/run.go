package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"voxelcascade.ai/internal/sim/blocks"
	"voxelcascade.ai/internal/sim/grid"
	"voxelcascade.ai/internal/sim/region"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Step a region offline and save it",
	Long: `Opens a region from the snapshot store (or creates it), optionally seeds a
demo scenario, steps it as fast as possible and writes a final snapshot.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		id, _ := cmd.Flags().GetString("region")
		steps, _ := cmd.Flags().GetInt("ticks")
		demo, _ := cmd.Flags().GetBool("demo")
		toggleEvery, _ := cmd.Flags().GetInt("toggle-every")

		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		h, err := a.host()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		r, restored, err := h.Open(ctx, id)
		if err != nil {
			return err
		}

		var sw *grid.Pos
		if demo && !restored {
			p, err := seedDemo(r)
			if err != nil {
				return err
			}
			sw = &p
		}

		var ran, skipped, failed int
		for i := 0; i < steps; i++ {
			if sw != nil && toggleEvery > 0 && i%toggleEvery == 0 {
				blocks.Toggle(r, *sw)
			}
			for _, res := range h.Step(ctx) {
				ran += res.Ran
				skipped += res.Skipped
				failed += res.Failed
			}
		}
		if err := h.SaveAll(ctx); err != nil {
			return err
		}

		ds := r.DrainStats()
		a.log.WithFields(logrus.Fields{
			"region":  id,
			"tick":    r.Tick(),
			"pending": r.PendingTicks(),
			"drains":  ds.Drains,
			"dropped": ds.Dropped,
		}).Info("run finished")

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "region %s at tick %d (restored=%v)\n", id, r.Tick(), restored)
		fmt.Fprintf(out, "scheduled ticks: ran=%d skipped=%d failed=%d pending=%d\n", ran, skipped, failed, r.PendingTicks())
		fmt.Fprintf(out, "neighbor drains: %d executed=%d dropped=%d failed=%d\n", ds.Drains, ds.Executed, ds.Dropped, ds.Failed)
		fmt.Fprintf(out, "snapshot: %s\n", a.store.Location(id))
		return nil
	},
}

// seedDemo lays out a switch-wire-lamp circuit and two falling columns. It
// returns the switch position.
func seedDemo(r *region.Region) (grid.Pos, error) {
	sw, _, err := r.PlaceCircuit(grid.Pos{Y: 1}, 8)
	if err != nil {
		return grid.Pos{}, err
	}
	if err := r.DropColumn(grid.Pos{X: 4, Y: 12, Z: 4}, "SAND", 4); err != nil {
		return grid.Pos{}, err
	}
	if err := r.DropColumn(grid.Pos{X: 5, Y: 20, Z: 4}, "GRAVEL", 2); err != nil {
		return grid.Pos{}, err
	}
	return sw, nil
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().String("region", "demo", "region id")
	runCmd.Flags().Int("ticks", 200, "ticks to step")
	runCmd.Flags().Bool("demo", true, "seed a demo scenario into a fresh region")
	runCmd.Flags().Int("toggle-every", 20, "flip the demo switch every n ticks (0 to leave it)")
}

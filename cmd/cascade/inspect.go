package main

import (
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"voxelcascade.ai/internal/persistence/snapshot"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [region]",
	Short: "Print a region snapshot and its index rows",
	Long: `Loads a snapshot from the store (or from --file) and prints its header,
chunks and scheduled ticks. With the index enabled it also lists the latest
save and the recorded drains that hit the chain cutoff.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		drainLimit, _ := cmd.Flags().GetInt("drains")
		if file == "" && len(args) == 0 {
			return fmt.Errorf("need a region id or --file")
		}

		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		var snap snapshot.RegionV1
		location := file
		if file != "" {
			snap, err = snapshot.ReadFile(file)
		} else {
			location = a.store.Location(args[0])
			snap, err = a.store.Load(ctx, args[0])
		}
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		h := snap.Header
		fmt.Fprintf(out, "region %s v%d tick %d\n", h.RegionID, h.Version, h.Tick)
		fmt.Fprintf(out, "seed %d height %d boundary %d palette %d\n", snap.Seed, snap.Height, snap.BoundaryR, len(snap.Palette))
		fmt.Fprintf(out, "chunks %d\n", len(snap.Chunks))
		if fi, err := os.Stat(location); err == nil {
			fmt.Fprintf(out, "size %s\n", humanize.Bytes(uint64(fi.Size())))
		}
		for _, ct := range snap.BlockTicks {
			raw, err := snapshot.MarshalTicks(ct.Ticks)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "ticks %d,%d %s\n", ct.CX, ct.CZ, raw)
		}

		if a.index == nil {
			return nil
		}
		if row, ok, err := a.index.LatestSave(ctx, h.RegionID); err != nil {
			return err
		} else if ok {
			when := row.SavedAt
			if t, err := time.Parse(time.RFC3339Nano, row.SavedAt); err == nil {
				when = humanize.Time(t)
			}
			fmt.Fprintf(out, "latest save tick %d at %s (%s)\n", row.Tick, row.Location, when)
		}
		drains, err := a.index.Drains(ctx, h.RegionID, drainLimit)
		if err != nil {
			return err
		}
		for _, d := range drains {
			fmt.Fprintf(out, "drain tick %d origin %v admitted %d dropped %d failed %d\n", d.Tick, d.Origin, d.Admitted, d.Dropped, d.Failed)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)
	inspectCmd.Flags().String("file", "", "read this snapshot file instead of the store")
	inspectCmd.Flags().Int("drains", 20, "max index drain rows to print")
}

package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haivivi/minibatch/pkg/cli"
)

var (
	batchesManifest string
	batchesFrames   int
	batchesCount    int
	batchesSubset   int
	batchesSubsets  int
	batchesStart    int
)

var batchesCmd = &cobra.Command{
	Use:   "batches",
	Short: "Drive the randomized source and summarize the batches",
	RunE: func(cmd *cobra.Command, args []string) error {
		if batchesSubsets < 1 || batchesSubset < 0 || batchesSubset >= batchesSubsets {
			return fmt.Errorf("subset %d of %d out of range", batchesSubset, batchesSubsets)
		}
		res, err := buildCorpus(cmd.Context(), batchesManifest)
		if err != nil {
			return err
		}
		defer res.Close()
		src, err := res.buildSource()
		if err != nil {
			return err
		}

		styles := cli.NewStyles(cli.DefaultTheme)
		ts, err := src.FirstValidGlobalTS(batchesStart)
		if err != nil {
			return err
		}

		totalFrames, pagedIn := 0, 0
		for n := 0; n < batchesCount; n++ {
			b, err := src.GetBatch(cmd.Context(), ts, batchesFrames, batchesSubset, batchesSubsets)
			if err != nil {
				return err
			}
			mark := " "
			if b.ReadFromDisk {
				mark = styles.Label.Render("*")
				pagedIn++
			}
			line := fmt.Sprintf("%sbatch %3d  ts=%-8d frames=%-5d advanced=%-5d in_ram=%d",
				mark, n, ts, b.NumFrames(), b.FramesAdvanced, src.ChunksInRAM())
			if len(b.UIDs) > 0 {
				line += fmt.Sprintf("  labels=%d", len(b.UIDs[0]))
			}
			fmt.Println(line)
			totalFrames += b.NumFrames()
			ts += b.FramesAdvanced
			if next, err := src.FirstValidGlobalTS(ts); err == nil {
				ts = next
			}
		}

		fmt.Println(styles.Dim.Render(fmt.Sprintf(
			"%d batches, %d frames, %d page-ins, %d chunks resident",
			batchesCount, totalFrames, pagedIn, src.ChunksInRAM())))
		return nil
	},
}

func init() {
	batchesCmd.Flags().StringVarP(&batchesManifest, "manifest", "f", "manifest.yaml", "corpus manifest file")
	batchesCmd.Flags().IntVar(&batchesFrames, "frames", 256, "frames requested per batch")
	batchesCmd.Flags().IntVarP(&batchesCount, "count", "n", 10, "number of batches to fetch")
	batchesCmd.Flags().IntVar(&batchesSubset, "subset", 0, "data-parallel subset index")
	batchesCmd.Flags().IntVar(&batchesSubsets, "subsets", 1, "number of data-parallel subsets")
	batchesCmd.Flags().IntVar(&batchesStart, "start", 0, "global start frame")
	rootCmd.AddCommand(batchesCmd)
}

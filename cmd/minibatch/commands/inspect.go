package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haivivi/minibatch/pkg/cli"
)

var inspectManifest string

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Build a corpus catalog and print its statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := buildCorpus(cmd.Context(), inspectManifest)
		if err != nil {
			return err
		}
		defer res.Close()
		corp := res.corp

		styles := cli.NewStyles(cli.DefaultTheme)
		fmt.Println(styles.Title.Render("corpus"))

		st := &cli.StatTable{Styles: styles}
		st.Add("utterances", fmt.Sprintf("%d", corp.NumUtterances))
		st.Add("frames", fmt.Sprintf("%d (%s)", corp.TotalFrames,
			cli.FormatFrames(corp.TotalFrames, res.infos[0].SamplePeriod)))
		st.Add("chunks", fmt.Sprintf("%d (avg %.1f utterances, %.0f frames)",
			len(corp.Chunks[0]),
			float64(corp.NumUtterances)/float64(len(corp.Chunks[0])),
			float64(corp.TotalFrames)/float64(len(corp.Chunks[0]))))
		fmt.Print(st.Render())

		for i, info := range res.infos {
			fmt.Println(styles.Title.Render(fmt.Sprintf("stream %d", i)))
			st := &cli.StatTable{Styles: styles}
			st.Add("kind", info.Kind)
			st.Add("dim", fmt.Sprintf("%d", info.Dim))
			st.Add("frame shift", fmt.Sprintf("%.1fms", float64(info.SamplePeriod)/1e4))
			bytes := int64(corp.TotalFrames) * int64(info.Dim) * 4
			st.Add("data", cli.FormatBytes(bytes))
			fmt.Print(st.Render())
		}

		for j := 0; j < corp.Labels.NumStreams(); j++ {
			fmt.Println(styles.Title.Render(fmt.Sprintf("label stream %d", j)))
			st := &cli.StatTable{Styles: styles}
			st.Add("classes", fmt.Sprintf("%d", corp.Labels.NumClasses(j)))
			counts := corp.Labels.Counts(j)
			maxClass, maxCount := 0, 0
			for c, n := range counts {
				if n > maxCount {
					maxClass, maxCount = c, n
				}
			}
			st.Add("most frequent", fmt.Sprintf("class %d (%d frames)", maxClass, maxCount))
			fmt.Print(st.Render())
		}
		return nil
	},
}

func init() {
	inspectCmd.Flags().StringVarP(&inspectManifest, "manifest", "f", "manifest.yaml", "corpus manifest file")
	rootCmd.AddCommand(inspectCmd)
}

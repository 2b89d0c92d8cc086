package commands

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/haivivi/minibatch/pkg/htk"
	"github.com/haivivi/minibatch/pkg/mat"
)

var (
	genDir        string
	genUtterances int
	genDim        int
	genClasses    int
	genSeed       int64
)

var genCmd = &cobra.Command{
	Use:   "gen",
	Short: "Synthesize a demo corpus (archives, labels, manifest)",
	Long: `Synthesize a small corpus for demos and smoke tests: one feature
stream of HTK archives with random features, a matching MLF with two
label segments per utterance, a state list, and a manifest wired to the
local storage backend.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if genUtterances < 1 || genDim < 1 || genClasses < 1 {
			return fmt.Errorf("utterances, dim and classes must be positive")
		}
		if err := os.MkdirAll(filepath.Join(genDir, "feat"), 0o755); err != nil {
			return err
		}
		rng := rand.New(rand.NewSource(genSeed))

		var scp, mlfDoc, states strings.Builder
		mlfDoc.WriteString("#!MLF!#\n")
		for c := 0; c < genClasses; c++ {
			states.WriteString(fmt.Sprintf("s%d\n", c))
		}

		totalFrames := 0
		for i := 0; i < genUtterances; i++ {
			// lengths spread between 0.5s and 2.5s
			frames := 50 + (i*37)%200
			totalFrames += frames
			name := fmt.Sprintf("feat/u%04d.feat", i)
			m := mat.New(genDim, frames)
			for j := 0; j < frames; j++ {
				for r := 0; r < genDim; r++ {
					m.Set(r, j, rng.Float32()*2-1)
				}
			}
			f, err := os.Create(filepath.Join(genDir, name))
			if err != nil {
				return err
			}
			err = htk.Write(f, "USER", 100000, m)
			f.Close()
			if err != nil {
				return err
			}

			scp.WriteString(fmt.Sprintf("%s[0,%d]\n", name, frames-1))

			mlfDoc.WriteString(fmt.Sprintf("%q\n", fmt.Sprintf("*/u%04d.lab", i)))
			// two segments per utterance so class changes are visible
			split := frames / 2
			c1, c2 := rng.Intn(genClasses), rng.Intn(genClasses)
			mlfDoc.WriteString(fmt.Sprintf("0 %d s%d\n", split*100000, c1))
			mlfDoc.WriteString(fmt.Sprintf("%d %d s%d\n", split*100000, frames*100000, c2))
			mlfDoc.WriteString(".\n")
		}

		manifest := fmt.Sprintf(`streams:
  - scp: train.scp
labels:
  - mlf: labels.mlf
    states: states.txt
frame_mode: true
chunk_frames: %d
storage:
  backend: local
`, max(totalFrames/4, 1))

		files := map[string]string{
			"train.scp":     scp.String(),
			"labels.mlf":    mlfDoc.String(),
			"states.txt":    states.String(),
			"manifest.yaml": manifest,
		}
		for name, content := range files {
			if err := os.WriteFile(filepath.Join(genDir, name), []byte(content), 0o644); err != nil {
				return err
			}
		}
		fmt.Printf("wrote %d utterances (%d frames) to %s\n", genUtterances, totalFrames, genDir)
		return nil
	},
}

func init() {
	genCmd.Flags().StringVar(&genDir, "dir", "demo", "output directory")
	genCmd.Flags().IntVar(&genUtterances, "utterances", 20, "number of utterances")
	genCmd.Flags().IntVar(&genDim, "dim", 13, "feature dimension")
	genCmd.Flags().IntVar(&genClasses, "classes", 8, "number of label classes")
	genCmd.Flags().Int64Var(&genSeed, "seed", 1, "random seed")
	rootCmd.AddCommand(genCmd)
}

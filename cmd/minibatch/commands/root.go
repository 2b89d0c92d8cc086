package commands

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "minibatch",
	Short: "Randomized minibatch source for speech training corpora",
	Long: `minibatch - randomized minibatch source for speech training corpora.

A corpus is described by a yaml manifest naming feature streams (HTK
archives listed in scp files), optional label streams (MLF files), an
optional lattice archive, and the storage backend the archives live on
(local disk or S3).

Examples:
  # synthesize a small demo corpus
  minibatch gen --dir demo --utterances 20

  # catalog statistics
  minibatch inspect -f demo/manifest.yaml

  # stream ten 256-frame batches
  minibatch batches -f demo/manifest.yaml --frames 256 -n 10`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initLogging)
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

func initLogging() {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// verbosity maps the --verbose flag onto the engine's verbosity scale.
func verbosity() int {
	if verbose {
		return 2
	}
	return 0
}

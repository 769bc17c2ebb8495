// Command convalidation evaluates equivalences and student impact offline from JSON fixtures.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var verbose bool

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "convalidation",
		Short:         "Offline convalidation tools",
		Long:          "Scores subject names, ranks equivalence suggestions and projects student impact from JSON fixtures without a database.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log skipped equivalences to stderr")

	root.AddCommand(newSimilarityCmd(), newSuggestCmd(), newImpactCmd())
	return root
}

func cliLogger() *zap.Logger {
	if !verbose {
		return zap.NewNop()
	}
	l, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return l
}

func main() {
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

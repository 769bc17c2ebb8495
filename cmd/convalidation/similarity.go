package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/noah-isme/convalidation-api/pkg/convalidation"
)

func newSimilarityCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "similarity <name-a> <name-b>",
		Short: "Score two subject names",
		Long:  "Prints the accent-insensitive name similarity in [0,1] and the normalised forms that were compared.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			score := convalidation.Similarity(args[0], args[1])
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%.4f\n", score)
			if verbose {
				fmt.Fprintf(out, "a: %q\nb: %q\n", convalidation.NormalizeName(args[0]), convalidation.NormalizeName(args[1]))
			}
			return nil
		},
	}
}

package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/noah-isme/convalidation-api/pkg/convalidation"
)

type suggestOptions struct {
	fixture   string
	code      string
	name      string
	limit     int
	threshold float64
}

type suggestOutput struct {
	Suggestions []convalidation.Suggestion `json:"suggestions"`
	AutoMatch   *convalidation.Suggestion  `json:"auto_match"`
}

func newSuggestCmd() *cobra.Command {
	opts := &suggestOptions{}
	cmd := &cobra.Command{
		Use:   "suggest",
		Short: "Rank catalog subjects for an external subject",
		Long:  "Ranks the fixture's catalog against one external subject and reports the candidate bulk auto-match would accept.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSuggest(cmd, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.fixture, "fixture", "f", "", "Path to fixture JSON with a catalog (required)")
	cmd.Flags().StringVar(&opts.code, "code", "", "External subject code")
	cmd.Flags().StringVar(&opts.name, "name", "", "External subject name")
	cmd.Flags().IntVar(&opts.limit, "limit", convalidation.DefaultSuggestionLimit, "Maximum suggestions")
	cmd.Flags().Float64Var(&opts.threshold, "threshold", convalidation.SuggestThreshold, "Minimum name score for a suggestion")
	if err := cmd.MarkFlagRequired("fixture"); err != nil {
		panic(fmt.Sprintf("failed to mark fixture flag as required: %v", err))
	}
	return cmd
}

func runSuggest(cmd *cobra.Command, opts *suggestOptions) error {
	if strings.TrimSpace(opts.code) == "" && strings.TrimSpace(opts.name) == "" {
		return fmt.Errorf("one of --code or --name is required")
	}
	f, err := loadFixture(opts.fixture)
	if err != nil {
		return err
	}

	matcher := convalidation.DefaultMatcher()
	matcher.SuggestThreshold = opts.threshold
	matcher.Limit = opts.limit
	if matcher.SuggestThreshold > matcher.AutoAcceptThreshold {
		return fmt.Errorf("threshold must not exceed %.2f", matcher.AutoAcceptThreshold)
	}

	external := convalidation.Subject{Code: opts.code, Name: opts.name}
	pool := candidates(f.Catalog)
	result := suggestOutput{Suggestions: matcher.Suggest(external, pool)}
	if best, ok := matcher.AutoMatch(external, pool); ok {
		result.AutoMatch = &best
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(result); err != nil {
		return fmt.Errorf("failed to encode suggestions: %w", err)
	}
	return nil
}

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/noah-isme/convalidation-api/internal/models"
	"github.com/noah-isme/convalidation-api/internal/service"
	"github.com/noah-isme/convalidation-api/pkg/convalidation"
	"github.com/noah-isme/convalidation-api/pkg/export"
)

type impactOptions struct {
	fixture string
	format  string
	output  string
	workers int
}

func newImpactCmd() *cobra.Command {
	opts := &impactOptions{}
	cmd := &cobra.Command{
		Use:   "impact",
		Short: "Project student progress under the new curriculum",
		Long:  "Allocates each fixture student's convalidated credits and reports progress before and after the change, as JSON or CSV.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runImpact(cmd, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.fixture, "fixture", "f", "", "Path to fixture JSON (required)")
	cmd.Flags().StringVar(&opts.format, "format", "json", "Output format: json or csv")
	cmd.Flags().StringVarP(&opts.output, "out", "o", "", "Output file, stdout when empty")
	cmd.Flags().IntVar(&opts.workers, "workers", convalidation.DefaultWorkers, "Parallel student evaluations")
	if err := cmd.MarkFlagRequired("fixture"); err != nil {
		panic(fmt.Sprintf("failed to mark fixture flag as required: %v", err))
	}
	return cmd
}

func runImpact(cmd *cobra.Command, opts *impactOptions) error {
	if opts.format != "json" && opts.format != "csv" {
		return fmt.Errorf("unsupported format %q", opts.format)
	}
	f, err := loadFixture(opts.fixture)
	if err != nil {
		return err
	}

	engine := convalidation.NewEngine(convalidation.Options{Workers: opts.workers, Logger: cliLogger()})
	batch, err := engine.RunBatch(cmd.Context(), f.snapshot(), f.inputs())
	if err != nil {
		return fmt.Errorf("failed to evaluate impact: %w", err)
	}

	out := cmd.OutOrStdout()
	if opts.output != "" {
		if dir := filepath.Dir(opts.output); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("failed to create output directory %s: %w", dir, err)
			}
		}
		file, err := os.Create(opts.output)
		if err != nil {
			return fmt.Errorf("failed to create output file %s: %w", opts.output, err)
		}
		defer file.Close() //nolint:errcheck
		out = file
	}

	if opts.format == "csv" {
		return writeImpactCSV(out, batch)
	}
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(batch); err != nil {
		return fmt.Errorf("failed to encode impact: %w", err)
	}
	return nil
}

func writeImpactCSV(w io.Writer, batch *convalidation.BatchResult) error {
	snapshots := make([]models.ImpactSnapshot, 0, len(batch.Impacts))
	for _, impact := range batch.Impacts {
		snapshots = append(snapshots, models.ImpactSnapshot{StudentID: impact.StudentID, Payload: models.ImpactPayload(impact)})
	}
	return export.NewCSVExporter().Write(w, service.ImpactDataset(snapshots))
}

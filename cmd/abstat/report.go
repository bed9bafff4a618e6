package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"splitlab/internal/experiment/models"
	"splitlab/internal/stats"
	dErrors "splitlab/pkg/domainerrors"
)

// reportInput is the file format the report command consumes. YAML parsing
// accepts JSON too, so exported tallies from either source work.
type reportInput struct {
	TestID  string                  `json:"test_id" yaml:"test_id"`
	Control string                  `json:"control" yaml:"control"`
	Counts  map[string]reportCounts `json:"counts" yaml:"counts"`
}

type reportCounts struct {
	Views       int64 `json:"views" yaml:"views"`
	Conversions int64 `json:"conversions" yaml:"conversions"`
}

func newReportCmd() *cobra.Command {
	var input string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Analyze per-variant tallies and call a winner",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(input)
			if err != nil {
				return dErrors.Wrap(err, dErrors.CodeInvalidInput, "read input file")
			}

			var in reportInput
			if err := yaml.Unmarshal(data, &in); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInvalidInput, "parse input file")
			}
			if in.Control == "" {
				in.Control = "control"
			}

			counts := make(map[models.VariantID]models.Counts, len(in.Counts))
			for id, c := range in.Counts {
				counts[models.VariantID(id)] = models.Counts{Views: c.Views, Conversions: c.Conversions}
			}

			report, err := stats.Analyze(models.TestID(in.TestID), counts, models.VariantID(in.Control))
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			printReport(cmd, report)
			return nil
		},
	}
	cmd.Flags().StringVar(&input, "input", "", "path to a JSON or YAML tallies file")
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit the full report as JSON")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func printReport(cmd *cobra.Command, report *stats.Report) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "test: %s (control: %s)\n\n", report.TestID, report.Control)
	fmt.Fprintf(out, "%-12s %8s %8s %8s %18s %10s\n", "variant", "views", "conv", "rate", "95% CI", "p-value")
	for _, v := range report.Variants {
		p := "-"
		if v.PValue != nil {
			p = fmt.Sprintf("%.4f", *v.PValue)
			if v.Significant {
				p += " *"
			}
		}
		fmt.Fprintf(out, "%-12s %8d %8d %7.2f%% [%6.2f%%, %6.2f%%] %10s\n",
			v.VariantID, v.Views, v.Conversions, v.Rate*100, v.CILow*100, v.CIHigh*100, p)
	}
	fmt.Fprintln(out)
	if report.Winner != nil {
		fmt.Fprintf(out, "winner: %s\n", *report.Winner)
	} else {
		fmt.Fprintln(out, "no winner yet")
	}
}

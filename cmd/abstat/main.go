// Command abstat plans and reads A/B tests from the command line: sample
// sizing, duration estimates, significance tests and full result reports.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"splitlab/internal/stats"
	dErrors "splitlab/pkg/domainerrors"
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		if dErrors.HasCode(err, dErrors.CodeInsufficientData) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "abstat",
		Short:         "Frequentist planning and analysis for A/B tests",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(
		newSampleSizeCmd(),
		newDurationCmd(),
		newPValueCmd(),
		newCICmd(),
		newReportCmd(),
	)
	return root
}

func newSampleSizeCmd() *cobra.Command {
	var baseline, mde float64

	cmd := &cobra.Command{
		Use:   "samplesize",
		Short: "Visitors needed per variant to detect a relative lift",
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := stats.SampleSize(baseline, mde)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d visitors per variant\n", n)
			return nil
		},
	}
	cmd.Flags().Float64Var(&baseline, "baseline", 0, "baseline conversion rate, e.g. 0.05")
	cmd.Flags().Float64Var(&mde, "mde", 0, "minimum detectable relative effect, e.g. 0.20")
	_ = cmd.MarkFlagRequired("baseline")
	_ = cmd.MarkFlagRequired("mde")
	return cmd
}

func newDurationCmd() *cobra.Command {
	var sampleSize, variants, daily int

	cmd := &cobra.Command{
		Use:   "duration",
		Short: "Days needed to fill every variant's sample",
		RunE: func(cmd *cobra.Command, args []string) error {
			days, err := stats.TestDuration(sampleSize, variants, daily)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d days\n", days)
			return nil
		},
	}
	cmd.Flags().IntVar(&sampleSize, "sample-size", 0, "required visitors per variant")
	cmd.Flags().IntVar(&variants, "variants", 2, "number of variants including control")
	cmd.Flags().IntVar(&daily, "daily-visitors", 0, "daily eligible visitors")
	_ = cmd.MarkFlagRequired("sample-size")
	_ = cmd.MarkFlagRequired("daily-visitors")
	return cmd
}

func newPValueCmd() *cobra.Command {
	var controlConv, controlViews, variantConv, variantViews int64

	cmd := &cobra.Command{
		Use:   "pvalue",
		Short: "Two-proportion z-test between control and a variant",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := stats.PValue(controlConv, controlViews, variantConv, variantViews)
			if err != nil {
				return err
			}
			verdict := "not significant at the 0.05 level"
			if p < 0.05 {
				verdict = "significant at the 0.05 level"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "p-value: %.4f (%s)\n", p, verdict)
			return nil
		},
	}
	cmd.Flags().Int64Var(&controlConv, "control-conversions", 0, "control conversions")
	cmd.Flags().Int64Var(&controlViews, "control-views", 0, "control views")
	cmd.Flags().Int64Var(&variantConv, "variant-conversions", 0, "variant conversions")
	cmd.Flags().Int64Var(&variantViews, "variant-views", 0, "variant views")
	_ = cmd.MarkFlagRequired("control-conversions")
	_ = cmd.MarkFlagRequired("control-views")
	_ = cmd.MarkFlagRequired("variant-conversions")
	_ = cmd.MarkFlagRequired("variant-views")
	return cmd
}

func newCICmd() *cobra.Command {
	var conversions, views int64
	var confidence float64

	cmd := &cobra.Command{
		Use:   "ci",
		Short: "Confidence interval for an observed conversion rate",
		RunE: func(cmd *cobra.Command, args []string) error {
			low, high, err := stats.ConfidenceInterval(conversions, views, confidence)
			if err != nil {
				return err
			}
			rate := float64(conversions) / float64(views)
			fmt.Fprintf(cmd.OutOrStdout(), "rate: %.4f, %.0f%% CI: [%.4f, %.4f]\n", rate, confidence*100, low, high)
			return nil
		},
	}
	cmd.Flags().Int64Var(&conversions, "conversions", 0, "observed conversions")
	cmd.Flags().Int64Var(&views, "views", 0, "observed views")
	cmd.Flags().Float64Var(&confidence, "confidence", 0.95, "confidence level, 0.95 or 0.99")
	_ = cmd.MarkFlagRequired("conversions")
	_ = cmd.MarkFlagRequired("views")
	return cmd
}

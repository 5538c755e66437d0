package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/klyr/promptguard/internal/report"
	"github.com/spf13/cobra"
)

func newReportCmd() *cobra.Command {
	var inputPath string
	var since string
	var profile string
	var format string
	var outPath string

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarize decision logs",
		RunE: func(cmd *cobra.Command, args []string) error {
			if inputPath == "" {
				return errors.New("input path is required")
			}

			reader := report.Reader{Profile: profile}
			if since != "" {
				dur, err := time.ParseDuration(since)
				if err != nil {
					return fmt.Errorf("invalid since duration: %w", err)
				}
				reader.Since = time.Now().Add(-dur)
			}

			decisions, err := reader.ReadFile(inputPath)
			if err != nil {
				return err
			}

			out, err := report.Render(report.Summarize(decisions), format)
			if err != nil {
				return err
			}
			return report.WriteOutput(cmd.OutOrStdout(), outPath, out)
		},
	}

	cmd.Flags().StringVar(&inputPath, "in", "", "Path to decision log JSONL")
	cmd.Flags().StringVar(&since, "since", "", "Only include entries newer than this duration (e.g. 10m)")
	cmd.Flags().StringVar(&profile, "profile", "", "Only include entries for this profile")
	cmd.Flags().StringVar(&format, "format", "text", "Output format: text|md|json")
	cmd.Flags().StringVar(&outPath, "out", "", "Output file path (default stdout)")

	return cmd
}

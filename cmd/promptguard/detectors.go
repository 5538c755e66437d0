package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/klyr/promptguard/internal/config"
	"github.com/klyr/promptguard/internal/guardrail"
	"github.com/klyr/promptguard/internal/guardrail/builtin"
	"github.com/klyr/promptguard/internal/policy"
	"github.com/spf13/cobra"
)

type describer interface {
	guardrail.Detector
	InputTypes() []string
	Patterns() []guardrail.Pattern
}

func newDetectorsCmd() *cobra.Command {
	var configPath string
	var verbose bool

	cmd := &cobra.Command{
		Use:   "detectors",
		Short: "List builtin detectors, plus declared ones when a config is given",
		RunE: func(cmd *cobra.Command, args []string) error {
			var detectors []describer
			for _, name := range builtin.Names() {
				d, err := builtin.New(name)
				if err != nil {
					return err
				}
				detectors = append(detectors, d)
			}

			if configPath != "" {
				cfg, err := config.Load(configPath)
				if err != nil {
					return err
				}
				if err := cfg.Validate(); err != nil {
					return err
				}
				for _, raw := range cfg.Detectors {
					d, err := policy.BuildDetector(cfg, raw.Name)
					if err != nil {
						return err
					}
					if desc, ok := d.(describer); ok {
						detectors = append(detectors, desc)
					}
				}
			}

			return writeDetectors(cmd.OutOrStdout(), detectors, verbose)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config file")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show every pattern")

	return cmd
}

func writeDetectors(w io.Writer, detectors []describer, verbose bool) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tCATEGORY\tINPUT TYPES\tPATTERNS")
	for _, d := range detectors {
		types := "all"
		if it := d.InputTypes(); len(it) > 0 {
			types = strings.Join(it, ",")
		}
		patterns := d.Patterns()
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", d.Name(), d.Category(), types, len(patterns))
		if !verbose {
			continue
		}
		for _, p := range patterns {
			trigger := string(p.Trigger())
			if p.Trigger() == guardrail.TriggerCount {
				trigger = fmt.Sprintf("%s>%d", trigger, p.Threshold())
			}
			fmt.Fprintf(tw, "  %s\t%s\t\t%s\n", p.Name(), trigger, p.Reason())
		}
	}
	return tw.Flush()
}

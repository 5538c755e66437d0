package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/klyr/promptguard/internal/config"
	"github.com/klyr/promptguard/internal/guardrail"
	"github.com/klyr/promptguard/internal/policy"
	"github.com/spf13/cobra"
)

// Exit code returned by check when the input is blocked.
const exitBlocked = 2

type checkResult struct {
	Action   string `json:"action"`
	Decision string `json:"decision"`
	Reason   string `json:"reason,omitempty"`
	Detector string `json:"detector,omitempty"`
	Category string `json:"category,omitempty"`
}

func newCheckCmd() *cobra.Command {
	var configPath string
	var profileName string
	var inputType string
	var format string

	cmd := &cobra.Command{
		Use:   "check [text...]",
		Short: "Screen texts from arguments or stdin against a profile",
		Long: "Screen texts against a profile and print the decision. Each argument is one text;\n" +
			"with no arguments stdin is read as a single text. Exits 2 when the input is blocked.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			if configPath != "" {
				loaded, err := config.Load(configPath)
				if err != nil {
					return err
				}
				if err := loaded.Validate(); err != nil {
					return err
				}
				cfg = loaded
			}

			profiles, err := policy.Build(cfg, policy.Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
			if err != nil {
				return err
			}
			profile, ok := profiles[profileName]
			if !ok {
				return fmt.Errorf("profile %q not found", profileName)
			}

			texts := args
			if len(texts) == 0 {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				texts = []string{strings.TrimRight(string(data), "\r\n")}
			}

			in := guardrail.Input{Texts: texts, InputType: inputType}
			if in.InputType == "" {
				in.InputType = profile.InputType
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			result, err := profile.Evaluator.Evaluate(ctx, in)
			if err != nil {
				return err
			}

			action, block := policy.DecideAction(profile.Mode, result.Decision)
			if err := writeCheckResult(cmd.OutOrStdout(), format, checkResult{
				Action:   string(action),
				Decision: result.Decision.Verdict().String(),
				Reason:   result.Decision.Reason(),
				Detector: result.Detector,
				Category: result.Category,
			}); err != nil {
				return err
			}
			if block {
				return &exitError{code: exitBlocked}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config file (default: all builtin detectors)")
	cmd.Flags().StringVar(&profileName, "profile", config.DefaultProfile, "Profile to evaluate with")
	cmd.Flags().StringVar(&inputType, "input-type", "", "Input type (request|response), defaults to the profile's")
	cmd.Flags().StringVar(&format, "format", "text", "Output format: text|json")

	return cmd
}

func writeCheckResult(w io.Writer, format string, res checkResult) error {
	switch format {
	case "", "text":
		if res.Decision == guardrail.VerdictAllow.String() {
			_, err := fmt.Fprintln(w, res.Action)
			return err
		}
		_, err := fmt.Fprintf(w, "%s: %s (detector=%s category=%s)\n", res.Action, res.Reason, res.Detector, res.Category)
		return err
	case "json":
		enc := json.NewEncoder(w)
		return enc.Encode(res)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

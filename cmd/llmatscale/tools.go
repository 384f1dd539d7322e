package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/run-bigpig/llmatscale/pkg/prompts"
	"github.com/run-bigpig/llmatscale/pkg/providers"
	"github.com/run-bigpig/llmatscale/pkg/training"
	"github.com/run-bigpig/llmatscale/pkg/usecase"
)

// moderateCmd screens text the way the dashboard screens prompts
var moderateCmd = &cobra.Command{
	Use:   "moderate <text>",
	Short: "Print the compliance verdict for text",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		verdict := newComplianceGuardrail(cfg, logger).Evaluate(commandContext(cmd), strings.Join(args, " "))

		out, err := json.MarshalIndent(verdict, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}

// incidentsCmd summarizes one highway from the live roads report
var incidentsCmd = &cobra.Command{
	Use:   "incidents <highway>",
	Short: "Summarize current incidents on a California highway",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := commandContext(cmd)

		templates, err := prompts.Default("")
		if err != nil {
			return err
		}
		registry := providers.NewRegistry(cfg, providers.WithLogger(logger))
		defer registry.Close()

		router := usecase.NewRouter(usecase.DefaultCatalog(), registry, templates,
			usecase.WithLogger(logger),
			usecase.WithFetcher(newRoadsFetcher(cfg, logger)),
		)
		summarizer, err := router.Incidents(ctx)
		if err != nil {
			return err
		}

		summary, err := summarizer.Summarize(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), summary.Summary)
		return nil
	},
}

// validateDatasetCmd runs the training data quality check offline
var validateDatasetCmd = &cobra.Command{
	Use:   "validate-dataset <file>",
	Short: "Print the quality report for a JSONL, JSON or CSV training file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read dataset: %w", err)
		}

		dataset, err := training.LoadDataset(filepath.Base(args[0]), data)
		if err != nil {
			return err
		}

		report := training.Validate(dataset.Examples)
		fmt.Fprintln(cmd.OutOrStdout(), report.Markdown())
		if !report.Passed() {
			return errors.New("dataset failed validation")
		}
		return nil
	},
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

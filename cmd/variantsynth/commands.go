package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dd0wney/cluso-variantsynth/pkg/cost"
	"github.com/dd0wney/cluso-variantsynth/pkg/logging"
)

func newSynthCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "synth [variant...]",
		Short: "Synthesize a configuration for each variant",
		Long: `Synthesize a configuration for each named variant, or for every variant
in the preset catalog when none are named. Infeasible variants are reported,
not treated as failures.`,
		Example: `  variantsynth synth V1 V3
  variantsynth synth --tie-break prefer-false -o json V99`,
		RunE: a.runE(func(cmd *cobra.Command, args []string) error {
			variants := args
			if len(variants) == 0 {
				variants = a.catalog.Variants()
			}

			outcomes, err := a.synth.SynthesizeAll(commandContext(cmd), variants)
			if err != nil {
				return err
			}
			if err := renderOutcomes(cmd.OutOrStdout(), a.output, outcomes); err != nil {
				return err
			}

			failed := 0
			for _, o := range outcomes {
				if o.Err != nil {
					failed++
					a.logger.Error("synthesis failed", logging.Variant(o.Variant), logging.Error(o.Err))
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d requests failed", failed, len(outcomes))
			}
			return nil
		}),
	}
}

// compileReport is the machine-readable form of the compile command
type compileReport struct {
	Features    []string        `json:"features" yaml:"features"`
	Constraints []constraintRow `json:"constraints" yaml:"constraints"`
	Dropped     []string        `json:"dropped_edges,omitempty" yaml:"dropped_edges,omitempty"`
	Cost        string          `json:"cost" yaml:"cost"`
}

type constraintRow struct {
	Origin string `json:"origin" yaml:"origin"`
	Kind   string `json:"kind" yaml:"kind"`
	Name   string `json:"name" yaml:"name"`
}

func newCompileCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "compile",
		Short: "Compile the feature model and print its constraints and cost model",
		Args:  cobra.NoArgs,
		RunE: a.runE(func(cmd *cobra.Command, _ []string) error {
			compiled, err := a.synth.Compile(commandContext(cmd))
			if err != nil {
				return err
			}

			report := compileReport{
				Features: compiled.Names,
				Cost:     cost.Build(a.cfg.Cost, compiled.Vars).String(),
			}
			for _, c := range compiled.Constraints {
				report.Constraints = append(report.Constraints, constraintRow{
					Origin: string(c.Origin),
					Kind:   c.Kind.String(),
					Name:   c.Name,
				})
			}
			for _, d := range compiled.Dropped {
				report.Dropped = append(report.Dropped, d.String())
			}
			return renderCompile(cmd.OutOrStdout(), a.output, report)
		}),
	}
}

func newBoundsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "bounds",
		Short: "Derive empirical timing bounds from the trace tables",
		Args:  cobra.NoArgs,
		RunE: a.runE(func(cmd *cobra.Command, _ []string) error {
			eb, err := a.synth.Bounds(commandContext(cmd))
			if err != nil {
				return err
			}
			return renderBounds(cmd.OutOrStdout(), a.output, eb)
		}),
	}
}

func newPresetsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "presets",
		Short: "List the variant presets",
		Args:  cobra.NoArgs,
		RunE: a.runE(func(cmd *cobra.Command, _ []string) error {
			return renderPresets(cmd.OutOrStdout(), a.output, a.catalog)
		}),
	}
}

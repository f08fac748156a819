package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/dd0wney/cluso-variantsynth/pkg/artifact"
	"github.com/dd0wney/cluso-variantsynth/pkg/config"
	"github.com/dd0wney/cluso-variantsynth/pkg/logging"
	"github.com/dd0wney/cluso-variantsynth/pkg/metrics"
	"github.com/dd0wney/cluso-variantsynth/pkg/preset"
	"github.com/dd0wney/cluso-variantsynth/pkg/synthesis"
)

// app carries state shared by every subcommand once the config is loaded
type app struct {
	configPath string
	output     string
	strict     bool

	cfg     *config.Config
	logger  logging.Logger
	metrics *metrics.Registry
	store   artifact.Store
	catalog *preset.Registry
	synth   *synthesis.Synthesizer
}

// flagKeys maps persistent flags onto configuration keys
var flagKeys = map[string]string{
	"root":             "artifacts.root",
	"feature-model":    "artifacts.feature_model",
	"presets":          "artifacts.presets",
	"tie-break":        "policy.tie_break",
	"diagnostics":      "policy.diagnostics",
	"bound-freshness":  "policy.bound_freshness_by_replay",
	"workers":          "workers",
	"log-level":        "logging.level",
	"log-format":       "logging.format",
	"metrics-textfile": "metrics.textfile",
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "variantsynth",
		Short: "Synthesize secure-communication feature configurations per variant",
		Long: `variantsynth compiles a feature model into constraints, derives timing
bounds from Simulink traces and solves for a configuration of each requested
variant that fits the bounds.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "config file (YAML)")
	flags.StringVarP(&a.output, "output", "o", "table", "output format: table, json or yaml")
	flags.BoolVar(&a.strict, "strict", false, "fail on constraints that name undeclared features")
	flags.String("root", "", "directory that relative artifact paths resolve against")
	flags.String("feature-model", "", "feature model path or s3:// URI")
	flags.String("presets", "", "preset catalog path or s3:// URI")
	flags.String("tie-break", "", "solver or prefer-false")
	flags.Bool("diagnostics", false, "report conflicting constraint groups for infeasible requests")
	flags.Bool("bound-freshness", false, "reject freshness windows above the minimum replay interval")
	flags.Int("workers", 0, "concurrent synthesis requests")
	flags.String("log-level", "", "debug, info, warn or error")
	flags.String("log-format", "", "json or console")
	flags.String("metrics-textfile", "", "write prometheus metrics to this .prom file after the run")

	root.AddCommand(
		newSynthCmd(a),
		newCompileCmd(a),
		newBoundsCmd(a),
		newPresetsCmd(a),
	)
	return root
}

// bindFlags binds the changed persistent flags into the viper instance
// that config.Load decodes.
func (a *app) bindFlags(flags *pflag.FlagSet) config.Option {
	return func(v *viper.Viper) error {
		for name, key := range flagKeys {
			f := flags.Lookup(name)
			if f == nil || !f.Changed {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return fmt.Errorf("bind --%s: %w", name, err)
			}
		}
		if a.strict {
			v.Set("policy.unknown_edges", "strict")
		}
		return nil
	}
}

func (a *app) setup(cmd *cobra.Command) error {
	switch a.output {
	case "table", "json", "yaml":
	default:
		return fmt.Errorf("unknown output format %q", a.output)
	}

	cfg, err := config.Load(a.configPath, a.bindFlags(cmd.Flags()))
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logging.New(cmd.ErrOrStderr(), cfg.Logging.Format, logging.ParseLevel(cfg.Logging.Level))
	a.metrics = metrics.NewRegistry()
	a.store = artifact.NewRouter(cfg.Artifacts.Root)

	a.catalog = preset.Default()
	if cfg.Artifacts.Presets != "" {
		catalog, err := synthesis.LoadCatalog(commandContext(cmd), a.store, cfg.Artifacts.Presets)
		if err != nil {
			return fmt.Errorf("load presets: %w", err)
		}
		a.catalog = catalog
	}

	a.synth, err = synthesis.New(cfg, synthesis.Options{
		Store:   a.store,
		Catalog: a.catalog,
		Logger:  a.logger,
		Metrics: a.metrics,
	})
	return err
}

// runE wraps a subcommand so the metrics textfile is written even when
// the command fails.
func (a *app) runE(fn func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		defer func() {
			err = errors.Join(err, a.flushMetrics())
		}()
		return fn(cmd, args)
	}
}

func (a *app) flushMetrics() error {
	if a.cfg == nil || a.cfg.Metrics.Textfile == "" {
		return nil
	}
	a.metrics.UpdateSystemMetrics()
	if err := a.metrics.WriteTextfile(a.cfg.Metrics.Textfile); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	a.logger.Debug("metrics written", logging.Path(a.cfg.Metrics.Textfile))
	return nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

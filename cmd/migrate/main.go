package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"dbmigrate/internal/digest"
	"dbmigrate/internal/runner"
	"dbmigrate/internal/step"

	// register every storage backend and step kind; the config picks which
	// ones run.
	_ "dbmigrate/internal/steps/all"
	_ "dbmigrate/internal/storage/all"
)

// errFailed is returned when a phase completed with collected errors.
var errFailed = errors.New("migration checks failed")

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:           "migrate",
		Short:         "Migrate data between two versions of a relational schema",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "dbmigrate.yaml", "migration config path")
	pf.StringSliceVar(&opts.envFiles, "env-file", []string{".env"}, "dotenv files loaded before the config is expanded")
	pf.BoolVarP(&opts.verbose, "verbose", "v", false, "enable verbose logs")
	pf.StringVar(&opts.metricsBackend, "metrics-backend", "", "metrics backend (pushgateway, datadog, none); overrides config")
	pf.StringVar(&opts.pushgatewayURL, "pushgateway-url", "", "Pushgateway base URL; overrides config and PUSHGATEWAY_URL")
	pf.StringVar(&opts.statsdAddr, "statsd-addr", "", "DogStatsD address; overrides config")

	root.AddCommand(
		newRunCmd(opts),
		newRollbackCmd(opts),
		newValidateCmd(opts),
		newSnapshotCmd(opts),
		newStepsCmd(),
		newStatusCmd(opts),
		newDigestCmd(opts),
	)
	return root
}

// withApp loads the config, connects and calls fn.
func withApp(cmd *cobra.Command, opts *globalOptions, parallel int, fn func(ctx context.Context, a *app) error) error {
	cfg, err := loadConfig(*opts, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	a, err := newApp(ctx, cfg, parallel)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func newRunCmd(opts *globalOptions) *cobra.Command {
	var (
		phaseName string
		entities  []string
		parallel  int
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one phase (integrity, data or volume) for the configured entities",
		RunE: func(cmd *cobra.Command, _ []string) error {
			phase, err := step.ParsePhase(phaseName)
			if err != nil {
				return err
			}
			return withApp(cmd, opts, parallel, func(ctx context.Context, a *app) error {
				start := time.Now()
				rep, err := a.runner.Run(ctx, phase, entities...)
				printReport(cmd.OutOrStdout(), rep)
				if err != nil {
					return err
				}
				a.log.Infof("%s completed in %s", phase, time.Since(start).Truncate(time.Millisecond))
				if !rep.OK() {
					return errFailed
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&phaseName, "phase", "", "phase to run: integrity, data or volume")
	cmd.Flags().StringSliceVar(&entities, "entity", nil, "entity to run (repeatable); default all")
	cmd.Flags().IntVar(&parallel, "parallel", 0, "entities run at once; overrides runtime.parallel")
	_ = cmd.MarkFlagRequired("phase")
	return cmd
}

func newRollbackCmd(opts *globalOptions) *cobra.Command {
	var entities []string
	cmd := &cobra.Command{
		Use:   "rollback",
		Short: "Roll back the data phase of entities that support it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, 1, func(ctx context.Context, a *app) error {
				rep, err := a.runner.Rollback(ctx, entities...)
				printReport(cmd.OutOrStdout(), rep)
				if err != nil {
					return err
				}
				if !rep.OK() {
					return errFailed
				}
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVar(&entities, "entity", nil, "entity to roll back (repeatable); default all")
	return cmd
}

func newValidateCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := loadConfig(*opts, cmd.ErrOrStderr()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration is valid: %s\n", opts.configPath)
			return nil
		},
	}
}

func newSnapshotCmd(opts *globalOptions) *cobra.Command {
	var entities []string
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Capture destination state that volume checks compare against",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, 1, func(ctx context.Context, a *app) error {
				return a.runner.Snapshot(ctx, entities...)
			})
		},
	}
	cmd.Flags().StringSliceVar(&entities, "entity", nil, "entity to snapshot (repeatable); default all")
	return cmd
}

func newStepsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "steps",
		Short: "List registered step kinds and their phases",
		Run: func(cmd *cobra.Command, _ []string) {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "KIND\tPHASES")
			for _, k := range step.Kinds() {
				var phases []string
				for _, p := range step.PhasesOf(k) {
					phases = append(phases, p.String())
				}
				fmt.Fprintf(w, "%s\t%s\n", k, strings.Join(phases, ","))
			}
			_ = w.Flush()
		},
	}
}

func newStatusCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the latest outcome of every entity and phase",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			st, err := openState(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer st.Close()
			recs, err := st.LastPhases(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ENTITY\tPHASE\tRESULT\tERRORS\tSTARTED\tDURATION")
			for _, r := range recs {
				result := "ok"
				switch {
				case r.Error != "":
					result = "error: " + r.Error
				case !r.OK:
					result = "failed"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
					r.Entity, r.Phase, result, r.Findings, r.Started.Format(time.RFC3339), r.Duration)
			}
			return w.Flush()
		},
	}
}

func newDigestCmd(opts *globalOptions) *cobra.Command {
	var side string
	cmd := &cobra.Command{
		Use:   "digest TABLE...",
		Short: "Print a content digest of tables for comparing runs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if side != "source" && side != "destination" {
				return fmt.Errorf("--side must be source or destination, got %q", side)
			}
			return withApp(cmd, opts, 1, func(ctx context.Context, a *app) error {
				repo := a.dst
				if side == "source" {
					repo = a.src
				}
				for _, table := range args {
					sum, rows, err := digest.Table(ctx, repo, table)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s  rows=%d  %s:%s\n", digest.Format(sum), rows, side, table)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&side, "side", "destination", "database to read: source or destination")
	return cmd
}

// printReport writes one line per entity and the collected messages.
func printReport(w io.Writer, rep runner.Report) {
	for _, o := range rep.Outcomes {
		switch {
		case o.Skipped:
			fmt.Fprintf(w, "%s %s: skipped\n", o.Entity, o.Phase)
		case o.Err != nil:
			fmt.Fprintf(w, "%s %s: error: %v\n", o.Entity, o.Phase, o.Err)
		case !o.OK:
			fmt.Fprintf(w, "%s %s: failed (%d errors)\n", o.Entity, o.Phase, len(o.Findings))
			for _, f := range o.Findings {
				fmt.Fprintf(w, "  %s\n", f)
			}
		default:
			fmt.Fprintf(w, "%s %s: ok (%s)\n", o.Entity, o.Phase, o.Duration.Truncate(time.Millisecond))
		}
	}
}

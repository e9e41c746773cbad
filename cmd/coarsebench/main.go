// Command coarsebench sweeps the thread-coarsening toolchain over the test
// suites and reports which configurations fail.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"
	"go.uber.org/zap"

	"github.com/sarchlab/coarsebench/config"
	"github.com/sarchlab/coarsebench/executor"
	"github.com/sarchlab/coarsebench/harness"
	"github.com/sarchlab/coarsebench/logutil"
	"github.com/sarchlab/coarsebench/report"
)

func main() {
	exitCode := 0
	if err := newRootCommand(&exitCode).Execute(); err != nil {
		exitCode = 1
	}

	atexit.Exit(exitCode)
}

func newRootCommand(exitCode *int) *cobra.Command {
	var o options

	rootCmd := &cobra.Command{
		Use:   "coarsebench [" + ApplyModelArg + "]",
		Short: "Benchmark the thread-coarsening transformation",
		Long: "Runs every kernel of the test suites under every coarsening " +
			"configuration, with a per-run timeout, and reports the failures.",
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := logutil.InitLogger(o.logLevel); err != nil {
				return fmt.Errorf("log level: %w", err)
			}
			atexit.Register(func() { _ = logutil.GetLogger().Sync() })

			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.parseModelArg(args); err != nil {
				return err
			}

			cfg, err := o.loadConfig(cmd.Flags().Changed)
			if err != nil {
				return err
			}

			failures, err := run(cmd.Context(), cfg, o, cmd.OutOrStdout())
			if err != nil {
				return err
			}

			if o.failExit && failures > 0 {
				*exitCode = 1
			}

			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&o.logLevel, "log-level", "info",
		"log level (debug, info, warn, error)")
	o.bindConfigFlags(rootCmd.PersistentFlags())
	o.bindRunFlags(rootCmd.Flags())

	rootCmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate a sweep configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := o.loadConfig(cmd.Flags().Changed); err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Configuration is valid")
			return nil
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "matrix [" + ApplyModelArg + "]",
		Short: "Print the runs of a sweep without executing them",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.parseModelArg(args); err != nil {
				return err
			}

			cfg, err := o.loadConfig(cmd.Flags().Changed)
			if err != nil {
				return err
			}

			d, err := newDriver(cfg, o, nil, io.Discard)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			jobs := d.Jobs()
			for _, job := range jobs {
				fmt.Fprintln(w, job)
			}
			fmt.Fprintf(w, "%d runs\n", len(jobs))

			return nil
		},
	})

	return rootCmd
}

func newDriver(
	cfg config.Config,
	o options,
	aggregator *report.Aggregator,
	out io.Writer,
) (harness.Driver, error) {
	logger := logutil.GetLogger()

	binderBuilder, err := cfg.BinderBuilder(o.applyModel)
	if err != nil {
		return nil, err
	}
	binder, err := binderBuilder.Build()
	if err != nil {
		return nil, err
	}

	execBuilder := executor.MakeBuilder().
		WithTimeout(cfg.Timeout()).
		WithLogger(logger)
	if o.streamOutput {
		execBuilder = execBuilder.WithOutput(out)
	}

	return harness.MakeDriverBuilder().
		WithExecutor(execBuilder.Build()).
		WithBinder(binder).
		WithSuites(cfg.Suites).
		WithConfigs(cfg.Matrix(o.applyModel)).
		WithPrefix(cfg.Paths.Prefix).
		WithOccupancyReduction(cfg.OccupancyReduction).
		WithOccupancyDir(cfg.Paths.OccupancyDir).
		WithAggregator(aggregator).
		WithOutput(out).
		WithLogger(logger).
		Build()
}

// run executes the sweep and returns the number of failed runs.
func run(
	parent context.Context,
	cfg config.Config,
	o options,
	out io.Writer,
) (int, error) {
	logger := logutil.GetLogger()

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	aggregator := report.NewAggregator()
	d, err := newDriver(cfg, o, aggregator, out)
	if err != nil {
		return 0, err
	}

	counters := d.Run(ctx)

	if o.table {
		report.WriteTable(out, aggregator.Results())
	}

	if o.resultsDB != "" {
		if err := saveResults(o.resultsDB, aggregator.Results()); err != nil {
			return counters.TotalFailures, err
		}
		logger.Info("results stored",
			zap.String("path", o.resultsDB),
			zap.Int("runs", counters.TotalRuns))
	}

	return counters.TotalFailures, nil
}

func saveResults(path string, results []report.Result) error {
	sink, err := report.OpenSQLite(path)
	if err != nil {
		return err
	}
	defer sink.Close()

	return sink.Save(results)
}

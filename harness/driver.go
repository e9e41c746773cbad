// Package harness drives a sweep of the coarsening toolchain over a set of
// kernels and configurations.
package harness

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/sarchlab/coarsebench/env"
	"github.com/sarchlab/coarsebench/executor"
	"github.com/sarchlab/coarsebench/kernel"
	"github.com/sarchlab/coarsebench/matrix"
	"github.com/sarchlab/coarsebench/occupancy"
	"github.com/sarchlab/coarsebench/report"
)

// Driver runs a sweep.
type Driver interface {
	// Jobs lists the primary runs of the sweep in execution order. Follow-up
	// runs of the occupancy-reduction search are not included, as they depend
	// on measurements.
	Jobs() []Job

	// Run executes the sweep, prints a status line per run and the summary,
	// and returns the totals. Once ctx is done the remaining runs are skipped;
	// the summary still covers the runs that finished.
	Run(ctx context.Context) report.Counters

	// Results returns every recorded run.
	Results() []report.Result
}

// Job is one primary run of the sweep.
type Job struct {
	Suite  string
	Kernel kernel.Spec
	Config matrix.RunConfig
}

func (j Job) String() string {
	return fmt.Sprintf("%s %s %s", j.Suite, j.Kernel, j.Kernel.Apply(j.Config))
}

type suite struct {
	path    string
	kernels []kernel.Spec
}

type driverImpl struct {
	executor executor.Executor
	binder   *env.Binder

	suites  []suite
	configs []matrix.RunConfig
	prefix  string

	occupancyReduction bool
	occupancyDir       string

	aggregator *report.Aggregator
	printer    *report.Printer
	logger     *zap.Logger
}

func (d *driverImpl) Jobs() []Job {
	var jobs []Job

	for _, s := range d.suites {
		for _, k := range s.kernels {
			for _, c := range d.configs {
				jobs = append(jobs, Job{Suite: s.path, Kernel: k, Config: c})
			}
		}
	}

	return jobs
}

func (d *driverImpl) Run(ctx context.Context) report.Counters {
	jobs := d.Jobs()
	d.logger.Info("starting sweep",
		zap.Int("jobs", len(jobs)),
		zap.Bool("occupancyReduction", d.occupancyReduction),
		zap.String("arch", d.binder.Profile().Name))

	for i, job := range jobs {
		if ctx.Err() != nil {
			d.logger.Warn("sweep interrupted, skipping remaining runs",
				zap.Int("skipped", len(jobs)-i), zap.Error(ctx.Err()))
			break
		}

		d.runJob(ctx, job)
	}

	counters := d.aggregator.Counters()
	d.printer.Summary(counters)

	return counters
}

func (d *driverImpl) Results() []report.Result {
	return d.aggregator.Results()
}

func (d *driverImpl) runJob(ctx context.Context, job Job) {
	reportPath := occupancy.Path(d.occupancyDir, job.Kernel.Name)

	req := env.Request{
		Kernel:        job.Kernel,
		Config:        job.Config,
		Phase:         env.PhaseNone,
		OccupancyFile: reportPath,
	}

	if d.occupancyReduction {
		if err := occupancy.Remove(reportPath); err != nil {
			d.logger.Warn("could not remove stale occupancy report",
				zap.String("path", reportPath), zap.Error(err))
		}
		req.Phase = env.PhaseMeasure
	}

	res := d.execute(ctx, job.Suite, req)

	rec, found, err := occupancy.Load(reportPath, occupancy.DefaultRecord)
	switch {
	case err != nil:
		res.Err = err
		res.Label = occupancy.UnmeasuredLabel
		found = false
	case found:
		res.Label = occupancy.MeasuredLabel(rec, d.binder.Profile())
	default:
		res.Label = occupancy.UnmeasuredLabel
	}

	d.record(res)

	if !d.occupancyReduction || !found {
		return
	}

	d.reduce(ctx, job, rec)
}

// reduce issues one run per step of the occupancy-reduction search.
func (d *driverImpl) reduce(ctx context.Context, job Job, rec occupancy.Record) {
	steps := occupancy.Plan(rec, d.binder.Profile())
	d.logger.Debug("occupancy reduction",
		zap.String("kernel", job.Kernel.Name),
		zap.Int("existingSMem", rec.ExistingSMem),
		zap.Int("threadsPerBlock", rec.ThreadsPerBlock),
		zap.Float64("occupancy", rec.Occupancy),
		zap.Int("steps", len(steps)))

	for _, step := range steps {
		if ctx.Err() != nil {
			return
		}

		res := d.execute(ctx, job.Suite, env.Request{
			Kernel:         job.Kernel,
			Config:         job.Config,
			Phase:          env.PhaseReduce,
			AdditionalSMem: step.AdditionalSMem,
		})
		res.Label = step.Label()
		res.FollowUp = true

		d.record(res)
	}
}

func (d *driverImpl) execute(
	ctx context.Context,
	suitePath string,
	req env.Request,
) report.Result {
	res := report.Result{
		Kernel: req.Kernel,
		Config: req.Kernel.Apply(req.Config),
	}

	environment, err := d.binder.Bind(req)
	if err != nil {
		res.Err = err
		res.Outcome = executor.Outcome{ExitCode: -1}
		return res
	}

	cmd := executor.Command{
		Path: filepath.Join(d.prefix, suitePath),
		Args: []string{req.Kernel.Name},
		Env:  environment.Environ(),
	}

	d.logger.Info("running",
		zap.Stringer("command", cmd),
		zap.Stringer("config", res.Config),
		zap.Stringer("phase", req.Phase))

	res.Outcome = d.executor.Execute(ctx, cmd)

	d.logger.Debug("finished",
		zap.Stringer("command", cmd),
		zap.Int("exitCode", res.Outcome.ExitCode),
		zap.Duration("duration", res.Outcome.Duration),
		zap.Uint64("peakRSS", res.Outcome.PeakRSS))

	return res
}

func (d *driverImpl) record(res report.Result) {
	d.aggregator.Record(res)
	d.printer.Run(res)
}

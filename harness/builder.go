package harness

import (
	"errors"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/sarchlab/coarsebench/config"
	"github.com/sarchlab/coarsebench/env"
	"github.com/sarchlab/coarsebench/executor"
	"github.com/sarchlab/coarsebench/logutil"
	"github.com/sarchlab/coarsebench/matrix"
	"github.com/sarchlab/coarsebench/occupancy"
	"github.com/sarchlab/coarsebench/report"
)

// DriverBuilder creates a new instance of Driver.
type DriverBuilder struct {
	executor           executor.Executor
	binder             *env.Binder
	suites             []config.Suite
	configs            []matrix.RunConfig
	prefix             string
	occupancyReduction bool
	occupancyDir       string
	aggregator         *report.Aggregator
	output             io.Writer
	logger             *zap.Logger
}

// MakeDriverBuilder creates a DriverBuilder that prints to stdout and reads
// occupancy reports from the default directory.
func MakeDriverBuilder() DriverBuilder {
	return DriverBuilder{
		occupancyDir: occupancy.DefaultDir,
		output:       os.Stdout,
	}
}

// WithExecutor sets what runs the toolchain.
func (b DriverBuilder) WithExecutor(e executor.Executor) DriverBuilder {
	b.executor = e
	return b
}

// WithBinder sets the environment binder.
func (b DriverBuilder) WithBinder(binder *env.Binder) DriverBuilder {
	b.binder = binder
	return b
}

// WithSuites sets the test suites to sweep, in order.
func (b DriverBuilder) WithSuites(suites []config.Suite) DriverBuilder {
	b.suites = suites
	return b
}

// WithConfigs sets the run configurations every kernel is run with.
func (b DriverBuilder) WithConfigs(configs []matrix.RunConfig) DriverBuilder {
	b.configs = configs
	return b
}

// WithPrefix sets the directory the suite paths are relative to.
func (b DriverBuilder) WithPrefix(prefix string) DriverBuilder {
	b.prefix = prefix
	return b
}

// WithOccupancyReduction enables the occupancy-reduction search.
func (b DriverBuilder) WithOccupancyReduction(on bool) DriverBuilder {
	b.occupancyReduction = on
	return b
}

// WithOccupancyDir sets where the toolchain writes occupancy reports.
func (b DriverBuilder) WithOccupancyDir(dir string) DriverBuilder {
	b.occupancyDir = dir
	return b
}

// WithAggregator sets the aggregator results are recorded into.
func (b DriverBuilder) WithAggregator(a *report.Aggregator) DriverBuilder {
	b.aggregator = a
	return b
}

// WithOutput sets where status lines and the summary are printed.
func (b DriverBuilder) WithOutput(w io.Writer) DriverBuilder {
	b.output = w
	return b
}

// WithLogger sets the logger.
func (b DriverBuilder) WithLogger(l *zap.Logger) DriverBuilder {
	b.logger = l
	return b
}

// Build creates a driver. It fails when a kernel entry cannot be parsed.
func (b DriverBuilder) Build() (Driver, error) {
	if b.executor == nil {
		return nil, errors.New("driver needs an executor")
	}
	if b.binder == nil {
		return nil, errors.New("driver needs an environment binder")
	}

	d := &driverImpl{
		executor:           b.executor,
		binder:             b.binder,
		configs:            b.configs,
		prefix:             b.prefix,
		occupancyReduction: b.occupancyReduction,
		occupancyDir:       b.occupancyDir,
		aggregator:         b.aggregator,
		printer:            report.NewPrinter(b.output),
		logger:             b.logger,
	}

	if d.aggregator == nil {
		d.aggregator = report.NewAggregator()
	}
	if d.logger == nil {
		d.logger = logutil.GetLogger()
	}

	for _, s := range b.suites {
		kernels, err := s.Specs()
		if err != nil {
			return nil, err
		}

		d.suites = append(d.suites, suite{path: s.Path, kernels: kernels})
	}

	return d, nil
}

// Package config provides the default sweep configuration and loads
// overrides from YAML files.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sarchlab/coarsebench/arch"
	"github.com/sarchlab/coarsebench/env"
	"github.com/sarchlab/coarsebench/kernel"
	"github.com/sarchlab/coarsebench/matrix"
	"github.com/sarchlab/coarsebench/occupancy"
)

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("invalid configuration")

// DefaultMaxCoarseningFactor caps the model-chosen factor in apply-model
// mode.
const DefaultMaxCoarseningFactor = 32

// Suite is one test binary and the kernels it is run for. Kernel entries may
// carry a direction override as "name:direction".
type Suite struct {
	Path    string   `yaml:"path"`
	Kernels []string `yaml:"kernels"`
}

// Paths locates the toolchain and the test binaries.
type Paths struct {
	OCLHeader    string `yaml:"oclHeader"`
	Lib          string `yaml:"lib"`
	Preload      string `yaml:"preload"`
	Optimization string `yaml:"optimization"`
	Prefix       string `yaml:"prefix"`
	OccupancyDir string `yaml:"occupancyDir"`
}

// Templates holds the option templates. Empty entries use the built-in
// templates.
type Templates struct {
	Compiler  string `yaml:"compiler"`
	CLR       string `yaml:"clr"`
	Occupancy string `yaml:"occupancy"`
}

// Config is the complete description of a sweep.
type Config struct {
	Suites []Suite `yaml:"suites"`

	Arch          string                  `yaml:"arch"`
	Architectures map[string]arch.Profile `yaml:"architectures"`
	Device        string                  `yaml:"device"`

	Paths     Paths     `yaml:"paths"`
	Templates Templates `yaml:"templates"`

	Directions          []string `yaml:"directions"`
	Factors             []string `yaml:"factors"`
	Strides             []string `yaml:"strides"`
	ModelFactors        []string `yaml:"modelFactors"`
	MaxCoarseningFactor int      `yaml:"maxCoarseningFactor"`

	WarpSize              int  `yaml:"warpSize"`
	CacheLineSize         int  `yaml:"cacheLineSize"`
	TimeoutSeconds        int  `yaml:"timeoutSeconds"`
	ThreadLevelCoarsening bool `yaml:"threadLevelCoarsening"`
	OccupancyReduction    bool `yaml:"occupancyReduction"`
}

// Default returns the configuration of the reference lab setup.
func Default() Config {
	return Config{
		Suites: []Suite{
			{"memset/memset", []string{"memset2D"}},
			{"memcpy/memcpy", []string{"rmrrmw", "cmrcmw"}},
			{"mm/mm", []string{"mm"}},
			{"mt/mt", []string{"mt"}},
			{"mv/mv", []string{
				"MatVecMulUncoalesced0",
				"MatVecMulUncoalesced1",
				"MatVecMulCoalesced0",
			}},
			{"divRegion/divRegion", []string{"divRegion"}},
			{"polybench/OpenCL/2DCONV/2DCONV", []string{"Convolution2D_kernel"}},
			{"polybench/OpenCL/2MM/2MM", []string{"mm2_kernel1"}},
			{"polybench/OpenCL/3DCONV/3DCONV", []string{"Convolution3D_kernel"}},
			{"polybench/OpenCL/3MM/3MM", []string{"mm3_kernel1"}},
			{"polybench/OpenCL/ATAX/ATAX", []string{"atax_kernel1", "atax_kernel2"}},
			{"polybench/OpenCL/BICG/BICG", []string{"bicgKernel1"}},
			{"polybench/OpenCL/CORR/CORR", []string{
				"mean_kernel", "std_kernel", "reduce_kernel",
			}},
			{"polybench/OpenCL/COVAR/COVAR", []string{
				"mean_kernel", "reduce_kernel", "covar_kernel",
			}},
			{"polybench/OpenCL/FDTD-2D/FDTD-2D", []string{
				"fdtd_kernel1", "fdtd_kernel2", "fdtd_kernel3",
			}},
			{"polybench/OpenCL/GEMM/GEMM", []string{"gemm"}},
			{"polybench/OpenCL/GESUMMV/GESUMMV", []string{"gesummv_kernel"}},
			{"polybench/OpenCL/GRAMSCHM/GRAMSCHM", []string{
				"gramschmidt_kernel1", "gramschmidt_kernel2", "gramschmidt_kernel3",
			}},
			{"polybench/OpenCL/MVT/MVT", []string{"mvt_kernel1"}},
			{"polybench/OpenCL/SYR2K/SYR2K", []string{"syr2k_kernel"}},
			{"polybench/OpenCL/SYRK/SYRK", []string{"syrk_kernel"}},
		},

		Arch: arch.Pascal.Name,

		Paths: Paths{
			OCLHeader:    "/data/code/autocoarsening/thrud/include/opencl_spir.h",
			Lib:          "/data/build/autocoarsening/thrud/lib/libThrud.so",
			Preload:      "/data/build/autocoarsening/opencl_tools/function_overload/libaxtorwrapper.so",
			Optimization: "-O3",
			Prefix:       "/data/build/autocoarsening/tests",
			OccupancyDir: occupancy.DefaultDir,
		},

		Directions:          []string{"0"},
		Factors:             []string{"1", "2", "4", "8", "16", "32"},
		Strides:             []string{"32"},
		ModelFactors:        []string{"1"},
		MaxCoarseningFactor: DefaultMaxCoarseningFactor,

		WarpSize:       32,
		CacheLineSize:  32,
		TimeoutSeconds: 3000,
	}
}

// Load reads a YAML file and overlays it onto Default. Lists in the file
// replace the default lists; architectures are added to the built-ins.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	c := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}

	return c, nil
}

// Registry returns the built-in profiles plus the ones the config defines.
func (c Config) Registry() arch.Registry {
	r := arch.BuiltIn()
	for name, p := range c.Architectures {
		r.Add(name, p)
	}

	return r
}

// Profile returns the selected architecture profile.
func (c Config) Profile() (arch.Profile, error) {
	return c.Registry().Lookup(c.Arch)
}

// Timeout is the wall-clock budget of one run.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Matrix returns the run configurations. In apply-model mode the model picks
// the factor, so only the model factors are swept.
func (c Config) Matrix(applyModel bool) []matrix.RunConfig {
	factors := c.Factors
	if applyModel {
		factors = c.ModelFactors
	}

	return matrix.Generate(c.Directions, factors, c.Strides)
}

// Specs parses the kernel entries of a suite.
func (s Suite) Specs() ([]kernel.Spec, error) {
	return kernel.ParseAll(s.Path, s.Kernels)
}

// BinderBuilder returns an environment binder builder set up from the
// configuration.
func (c Config) BinderBuilder(applyModel bool) (env.Builder, error) {
	profile, err := c.Profile()
	if err != nil {
		return env.Builder{}, err
	}

	b := env.MakeBuilder().
		WithPaths(env.Paths{
			OCLHeader:    c.Paths.OCLHeader,
			Lib:          c.Paths.Lib,
			Preload:      c.Paths.Preload,
			Optimization: c.Paths.Optimization,
		}).
		WithTemplates(env.Templates{
			Compiler:  c.Templates.Compiler,
			CLR:       c.Templates.CLR,
			Occupancy: c.Templates.Occupancy,
		}).
		WithWarpSize(c.WarpSize).
		WithCacheLineSize(c.CacheLineSize).
		WithProfile(profile).
		WithDevice(c.Device).
		WithThreadLevelCoarsening(c.ThreadLevelCoarsening)

	if applyModel {
		b = b.WithMaxCoarseningFactor(strconv.Itoa(c.MaxCoarseningFactor))
	}

	return b, nil
}

// Validate reports every problem of the configuration at once.
func (c Config) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	if len(c.Suites) == 0 {
		fail("no test suites")
	}
	for i, s := range c.Suites {
		if s.Path == "" {
			fail("suite %d has no path", i)
		}
		if len(s.Kernels) == 0 {
			fail("suite %q has no kernels", s.Path)
		}
		if _, err := s.Specs(); err != nil {
			fail("%v", err)
		}
	}

	checkDimension("directions", c.Directions, false, fail)
	checkDimension("factors", c.Factors, true, fail)
	checkDimension("strides", c.Strides, true, fail)
	checkDimension("modelFactors", c.ModelFactors, true, fail)

	if c.MaxCoarseningFactor <= 0 {
		fail("maxCoarseningFactor must be positive, got %d", c.MaxCoarseningFactor)
	}
	if c.WarpSize <= 0 {
		fail("warpSize must be positive, got %d", c.WarpSize)
	}
	if c.CacheLineSize <= 0 {
		fail("cacheLineSize must be positive, got %d", c.CacheLineSize)
	}
	if c.TimeoutSeconds <= 0 {
		fail("timeoutSeconds must be positive, got %d", c.TimeoutSeconds)
	}

	if _, err := c.Profile(); err != nil {
		fail("%v", err)
	} else if b, err := c.BinderBuilder(false); err != nil {
		fail("%v", err)
	} else if _, err := b.Build(); err != nil {
		fail("%v", err)
	}

	return errors.Join(errs...)
}

func checkDimension(
	name string,
	values []string,
	positive bool,
	fail func(format string, args ...any),
) {
	if len(values) == 0 {
		fail("%s is empty", name)
	}

	seen := make(map[string]bool, len(values))
	for _, v := range values {
		if seen[v] {
			fail("%s has duplicate value %q", name, v)
		}
		seen[v] = true

		if !positive {
			continue
		}

		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			fail("%s value %q is not a positive integer", name, v)
		}
	}
}

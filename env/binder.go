package env

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/template"

	"github.com/sarchlab/coarsebench/arch"
	"github.com/sarchlab/coarsebench/kernel"
	"github.com/sarchlab/coarsebench/matrix"
)

// Default option templates. Fields available to a template are those of
// TemplateData.
const (
	DefaultCompilerTemplate = "-mem2reg -load {{.Lib}} -structurizecfg " +
		"-instnamer -be -tc -coarsening-factor {{.Factor}} " +
		"-coarsening-direction {{.Direction}} -coarsening-stride {{.Stride}} " +
		"-div-region-mgt classic -kernel-name {{.Kernel}} -simplifycfg " +
		"-loop-instsimplify -early-cse -load-combine -licm {{.Optimization}}"

	DefaultCLRTemplate = "-load {{.Lib}} -assumeRestrictArgs -domtree -gvn " +
		"-basicaa -loop-simplify -indvars -load-combine -early-cse -clr " +
		"-kernel-name {{.Kernel}} -warp-size {{.WarpSize}} " +
		"-cache-line-size {{.CacheLineSize}}"

	DefaultOccupancyTemplate = "-load {{.Lib}} -ored -kernel-name {{.Kernel}} " +
		"-shmem {{.SharedMem}}"
)

// Phase selects how a run takes part in the occupancy reduction.
type Phase int

// Phases of a run.
const (
	// PhaseNone runs without occupancy reduction.
	PhaseNone Phase = iota
	// PhaseMeasure asks the toolchain to dump an occupancy report.
	PhaseMeasure
	// PhaseReduce reserves extra shared memory per block.
	PhaseReduce
)

func (p Phase) String() string {
	switch p {
	case PhaseNone:
		return "none"
	case PhaseMeasure:
		return "measure"
	case PhaseReduce:
		return "reduce"
	default:
		return "Phase(" + strconv.Itoa(int(p)) + ")"
	}
}

// Paths locates the toolchain artifacts.
type Paths struct {
	OCLHeader    string
	Lib          string
	Preload      string
	Optimization string
}

// Templates holds the option-string templates.
type Templates struct {
	Compiler  string
	CLR       string
	Occupancy string
}

// TemplateData is what the option templates are executed with.
type TemplateData struct {
	Lib           string
	Optimization  string
	Kernel        string
	Direction     string
	Factor        string
	Stride        string
	WarpSize      int
	CacheLineSize int
	SharedMem     int
}

// Request describes one run to bind.
type Request struct {
	Kernel kernel.Spec
	Config matrix.RunConfig
	Phase  Phase

	// OccupancyFile is where the toolchain writes its report in PhaseMeasure.
	OccupancyFile string

	// AdditionalSMem is the per-block reservation in PhaseReduce.
	AdditionalSMem int
}

// Builder creates Binders.
type Builder struct {
	paths         Paths
	templates     Templates
	warpSize      int
	cacheLineSize int
	profile       arch.Profile
	device        string
	threadLevel   bool
	maxFactor     string
	base          []string
}

// MakeBuilder creates a Builder with the default templates, a Pascal profile
// and the current process environment as base.
func MakeBuilder() Builder {
	return Builder{
		templates: Templates{
			Compiler:  DefaultCompilerTemplate,
			CLR:       DefaultCLRTemplate,
			Occupancy: DefaultOccupancyTemplate,
		},
		warpSize:      32,
		cacheLineSize: 32,
		profile:       arch.Pascal,
		base:          os.Environ(),
	}
}

// WithPaths sets the toolchain paths.
func (b Builder) WithPaths(p Paths) Builder {
	b.paths = p
	return b
}

// WithTemplates sets the option templates. Empty fields keep their current
// value.
func (b Builder) WithTemplates(t Templates) Builder {
	if t.Compiler != "" {
		b.templates.Compiler = t.Compiler
	}
	if t.CLR != "" {
		b.templates.CLR = t.CLR
	}
	if t.Occupancy != "" {
		b.templates.Occupancy = t.Occupancy
	}
	return b
}

// WithWarpSize sets the warp size passed to the cache-line analysis.
func (b Builder) WithWarpSize(n int) Builder {
	b.warpSize = n
	return b
}

// WithCacheLineSize sets the cache-line size passed to the cache-line
// analysis.
func (b Builder) WithCacheLineSize(n int) Builder {
	b.cacheLineSize = n
	return b
}

// WithProfile sets the architecture the toolchain models.
func (b Builder) WithProfile(p arch.Profile) Builder {
	b.profile = p
	return b
}

// WithDevice sets the visible device. When unset, the profile's default
// device is used.
func (b Builder) WithDevice(device string) Builder {
	b.device = device
	return b
}

// WithThreadLevelCoarsening switches from block-level to thread-level
// coarsening.
func (b Builder) WithThreadLevelCoarsening(on bool) Builder {
	b.threadLevel = on
	return b
}

// WithMaxCoarseningFactor caps the factor the coarsening model may choose.
// An empty value leaves the model disabled.
func (b Builder) WithMaxCoarseningFactor(factor string) Builder {
	b.maxFactor = factor
	return b
}

// WithBaseEnviron sets the inherited environment.
func (b Builder) WithBaseEnviron(environ []string) Builder {
	b.base = append([]string(nil), environ...)
	return b
}

// Build parses the templates and creates the Binder.
func (b Builder) Build() (*Binder, error) {
	if err := b.profile.Validate(); err != nil {
		return nil, err
	}

	binder := &Binder{
		paths:         b.paths,
		warpSize:      b.warpSize,
		cacheLineSize: b.cacheLineSize,
		profile:       b.profile,
		device:        b.device,
		threadLevel:   b.threadLevel,
		maxFactor:     b.maxFactor,
		base:          b.base,
	}
	if binder.device == "" {
		binder.device = b.profile.DefaultDevice()
	}

	var err error
	if binder.compiler, err = parseTemplate("compiler", b.templates.Compiler); err != nil {
		return nil, err
	}
	if binder.clr, err = parseTemplate("clr", b.templates.CLR); err != nil {
		return nil, err
	}
	if binder.occupancy, err = parseTemplate("occupancy", b.templates.Occupancy); err != nil {
		return nil, err
	}

	return binder, nil
}

func parseTemplate(name, text string) (*template.Template, error) {
	t, err := template.New(name).Parse(text)
	if err != nil {
		return nil, fmt.Errorf("%s option template: %w", name, err)
	}

	// Unknown fields only surface on execution.
	if _, err := render(t, TemplateData{}); err != nil {
		return nil, err
	}

	return t, nil
}

// Binder turns run requests into environments.
type Binder struct {
	paths         Paths
	warpSize      int
	cacheLineSize int
	profile       arch.Profile
	device        string
	threadLevel   bool
	maxFactor     string
	base          []string

	compiler  *template.Template
	clr       *template.Template
	occupancy *template.Template
}

// Profile returns the architecture the binder was built for.
func (b *Binder) Profile() arch.Profile {
	return b.profile
}

// Bind builds the environment of one run. A direction override on the kernel
// applies to this run only.
func (b *Binder) Bind(req Request) (Environment, error) {
	cfg := req.Kernel.Apply(req.Config)
	data := TemplateData{
		Lib:           b.paths.Lib,
		Optimization:  b.paths.Optimization,
		Kernel:        req.Kernel.Name,
		Direction:     cfg.Direction,
		Factor:        cfg.Factor,
		Stride:        cfg.Stride,
		WarpSize:      b.warpSize,
		CacheLineSize: b.cacheLineSize,
		SharedMem:     req.AdditionalSMem,
	}

	compilerOptions, err := render(b.compiler, data)
	if err != nil {
		return Environment{}, err
	}
	clrOptions, err := render(b.clr, data)
	if err != nil {
		return Environment{}, err
	}

	vars := map[string]string{
		KeyOCLHeader:          b.paths.OCLHeader,
		KeyKernelName:         req.Kernel.Name,
		KeyPreload:            b.paths.Preload,
		KeyCompilerOptions:    compilerOptions,
		KeyCLROptions:         clrOptions,
		KeyComputeUnits:       strconv.Itoa(b.profile.ComputeUnits),
		KeyActiveThreadsPerCU: strconv.Itoa(b.profile.MaxActiveThreadsPerCU),
		KeyGroupsPerCU:        strconv.Itoa(b.profile.MaxGroupsPerCU),
		KeyRegsPerCU:          strconv.Itoa(b.profile.MaxRegsPerCU),
		KeySMemPerCU:          strconv.Itoa(b.profile.MaxSMemPerCU),
		KeyVisibleDevices:     b.device,
		KeyCacheDisable:       "1",
	}

	switch req.Phase {
	case PhaseNone:
	case PhaseMeasure:
		if req.OccupancyFile == "" {
			return Environment{}, fmt.Errorf("kernel %s: measurement run without a report path",
				req.Kernel.Name)
		}
		vars[KeyOccupancySetup] = req.OccupancyFile
	case PhaseReduce:
		vars[KeyOccupancyReduction], err = render(b.occupancy, data)
		if err != nil {
			return Environment{}, err
		}
	default:
		return Environment{}, fmt.Errorf("kernel %s: unknown phase %v",
			req.Kernel.Name, req.Phase)
	}

	if b.threadLevel {
		vars[KeyThreadLevel] = "true"
	}

	if b.maxFactor != "" {
		vars[KeyMaxCoarseningFactor] = b.maxFactor
	}

	return Environment{base: b.base, vars: vars}, nil
}

func render(t *template.Template, data TemplateData) (string, error) {
	var sb strings.Builder
	if err := t.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("rendering %s options: %w", t.Name(), err)
	}

	return sb.String(), nil
}

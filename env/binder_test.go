package env_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/coarsebench/arch"
	"github.com/sarchlab/coarsebench/env"
	"github.com/sarchlab/coarsebench/kernel"
	"github.com/sarchlab/coarsebench/matrix"
)

var _ = Describe("Binder", func() {
	var (
		builder env.Builder
		binder  *env.Binder
		req     env.Request
	)

	BeforeEach(func() {
		builder = env.MakeBuilder().
			WithPaths(env.Paths{
				OCLHeader:    "/opt/thrud/opencl_spir.h",
				Lib:          "/opt/thrud/libThrud.so",
				Preload:      "/opt/thrud/libaxtorwrapper.so",
				Optimization: "-O3",
			}).
			WithProfile(arch.Pascal).
			WithBaseEnviron([]string{
				"PATH=/usr/bin",
				"OCCUPANCY_REDUCTION=stale",
				"HOME=/home/bench",
			})

		req = env.Request{
			Kernel: kernel.Spec{Suite: "mm/mm", Name: "mm"},
			Config: matrix.RunConfig{Direction: "0", Factor: "4", Stride: "32"},
		}
	})

	JustBeforeEach(func() {
		var err error
		binder, err = builder.Build()
		Expect(err).NotTo(HaveOccurred())
	})

	It("should substitute the tuning values into the compiler options", func() {
		e, err := binder.Bind(req)

		Expect(err).NotTo(HaveOccurred())
		Expect(e.Get(env.KeyCompilerOptions)).To(Equal(
			"-mem2reg -load /opt/thrud/libThrud.so -structurizecfg -instnamer " +
				"-be -tc -coarsening-factor 4 -coarsening-direction 0 " +
				"-coarsening-stride 32 -div-region-mgt classic -kernel-name mm " +
				"-simplifycfg -loop-instsimplify -early-cse -load-combine -licm -O3"))
		Expect(e.Get(env.KeyCLROptions)).To(HaveSuffix(
			"-clr -kernel-name mm -warp-size 32 -cache-line-size 32"))
	})

	It("should bind the architecture limits and device", func() {
		e, err := binder.Bind(req)

		Expect(err).NotTo(HaveOccurred())
		Expect(e.Get(env.KeyKernelName)).To(Equal("mm"))
		Expect(e.Get(env.KeyComputeUnits)).To(Equal("20"))
		Expect(e.Get(env.KeyActiveThreadsPerCU)).To(Equal("2048"))
		Expect(e.Get(env.KeyGroupsPerCU)).To(Equal("32"))
		Expect(e.Get(env.KeyRegsPerCU)).To(Equal("65536"))
		Expect(e.Get(env.KeySMemPerCU)).To(Equal("98304"))
		Expect(e.Get(env.KeyVisibleDevices)).To(Equal("0"))
		Expect(e.Get(env.KeyCacheDisable)).To(Equal("1"))
		Expect(e.Get(env.KeyPreload)).To(Equal("/opt/thrud/libaxtorwrapper.so"))
	})

	It("should leave the occupancy keys unset without reduction", func() {
		e, err := binder.Bind(req)

		Expect(err).NotTo(HaveOccurred())
		_, ok := e.Lookup(env.KeyOccupancyReduction)
		Expect(ok).To(BeFalse())
		_, ok = e.Lookup(env.KeyOccupancySetup)
		Expect(ok).To(BeFalse())
	})

	It("should drop managed keys inherited from the parent", func() {
		e, err := binder.Bind(req)

		Expect(err).NotTo(HaveOccurred())
		Expect(e.Environ()).To(ContainElement("PATH=/usr/bin"))
		Expect(e.Environ()).To(ContainElement("HOME=/home/bench"))
		Expect(e.Environ()).NotTo(ContainElement("OCCUPANCY_REDUCTION=stale"))
	})

	It("should request a report in the measurement phase", func() {
		req.Phase = env.PhaseMeasure
		req.OccupancyFile = "/tmp/mm.txt"

		e, err := binder.Bind(req)

		Expect(err).NotTo(HaveOccurred())
		Expect(e.Get(env.KeyOccupancySetup)).To(Equal("/tmp/mm.txt"))
		_, ok := e.Lookup(env.KeyOccupancyReduction)
		Expect(ok).To(BeFalse())
	})

	It("should refuse a measurement without a report path", func() {
		req.Phase = env.PhaseMeasure

		_, err := binder.Bind(req)

		Expect(err).To(HaveOccurred())
	})

	It("should reserve shared memory in the reduction phase", func() {
		req.Phase = env.PhaseReduce
		req.AdditionalSMem = 24577

		e, err := binder.Bind(req)

		Expect(err).NotTo(HaveOccurred())
		Expect(e.Get(env.KeyOccupancyReduction)).To(Equal(
			"-load /opt/thrud/libThrud.so -ored -kernel-name mm -shmem 24577"))
		_, ok := e.Lookup(env.KeyOccupancySetup)
		Expect(ok).To(BeFalse())
	})

	It("should not carry keys from one run into the next", func() {
		measure := req
		measure.Phase = env.PhaseMeasure
		measure.OccupancyFile = "/tmp/mm.txt"
		first, err := binder.Bind(measure)
		Expect(err).NotTo(HaveOccurred())

		second, err := binder.Bind(req)
		Expect(err).NotTo(HaveOccurred())

		Expect(first.Get(env.KeyOccupancySetup)).To(Equal("/tmp/mm.txt"))
		Expect(second.Environ()).NotTo(ContainElement(HavePrefix("OCCUPANCY_REDUCTION_SETUP=")))
	})

	It("should apply a kernel direction override to this run only", func() {
		req.Kernel = kernel.Spec{Name: "MatVecMulCoalesced0", Direction: "1", Override: true}

		e, err := binder.Bind(req)

		Expect(err).NotTo(HaveOccurred())
		Expect(e.Get(env.KeyCompilerOptions)).To(ContainSubstring("-coarsening-direction 1"))
		Expect(req.Config.Direction).To(Equal("0"))
	})

	Context("with kepler", func() {
		BeforeEach(func() {
			builder = builder.WithProfile(arch.Kepler)
		})

		It("should select the second device", func() {
			e, err := binder.Bind(req)

			Expect(err).NotTo(HaveOccurred())
			Expect(e.Get(env.KeyVisibleDevices)).To(Equal("1"))
			Expect(e.Get(env.KeySMemPerCU)).To(Equal("49152"))
		})
	})

	Context("with thread-level coarsening and the model enabled", func() {
		BeforeEach(func() {
			builder = builder.
				WithThreadLevelCoarsening(true).
				WithMaxCoarseningFactor("32")
		})

		It("should set the flags", func() {
			e, err := binder.Bind(req)

			Expect(err).NotTo(HaveOccurred())
			Expect(e.Get(env.KeyThreadLevel)).To(Equal("true"))
			Expect(e.Get(env.KeyMaxCoarseningFactor)).To(Equal("32"))
		})
	})

	It("should render the environment in sorted key order after the base", func() {
		e, err := binder.Bind(req)
		Expect(err).NotTo(HaveOccurred())

		environ := e.Environ()
		Expect(environ[0]).To(Equal("PATH=/usr/bin"))
		Expect(environ[1]).To(Equal("HOME=/home/bench"))
		Expect(environ[2]).To(HavePrefix("ARCH_ACTIVE_THREADS_PER_CU="))
		Expect(e.Keys()).To(HaveLen(12))
	})
})

var _ = Describe("Builder", func() {
	It("should reject templates referencing unknown fields", func() {
		_, err := env.MakeBuilder().
			WithTemplates(env.Templates{Compiler: "-tc {{.Factr}}"}).
			Build()

		Expect(err).To(MatchError(ContainSubstring("compiler")))
	})

	It("should reject templates that do not parse", func() {
		_, err := env.MakeBuilder().
			WithTemplates(env.Templates{CLR: "{{.Kernel"}).
			Build()

		Expect(err).To(HaveOccurred())
	})

	It("should reject an invalid profile", func() {
		_, err := env.MakeBuilder().WithProfile(arch.Profile{Name: "broken"}).Build()

		Expect(err).To(HaveOccurred())
	})
})

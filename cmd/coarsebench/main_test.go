package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/coarsebench/config"
)

var _ = Describe("Options", func() {
	var o options

	BeforeEach(func() {
		o = options{}
	})

	never := func(string) bool { return false }

	It("should accept the model argument", func() {
		Expect(o.parseModelArg([]string{ApplyModelArg})).To(Succeed())
		Expect(o.applyModel).To(BeTrue())
	})

	It("should reject other arguments", func() {
		Expect(o.parseModelArg([]string{"APPLY"})).NotTo(Succeed())
		Expect(o.applyModel).To(BeFalse())
	})

	It("should use the defaults without a config file", func() {
		cfg, err := o.loadConfig(never)

		Expect(err).NotTo(HaveOccurred())
		Expect(cfg).To(Equal(config.Default()))
	})

	It("should only apply the flags that were set", func() {
		o.arch = "kepler"
		o.timeout = 90 * time.Second
		o.occupancyReduction = true

		cfg, err := o.loadConfig(func(name string) bool {
			return name == "timeout" || name == "occupancy-reduction"
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Arch).To(Equal("pascal"))
		Expect(cfg.TimeoutSeconds).To(Equal(90))
		Expect(cfg.OccupancyReduction).To(BeTrue())
	})

	It("should round a sub-second timeout up", func() {
		o.timeout = 400 * time.Millisecond

		cfg, err := o.loadConfig(func(name string) bool { return name == "timeout" })

		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.TimeoutSeconds).To(Equal(1))
	})

	It("should validate the flag values", func() {
		o.arch = "fermi"

		_, err := o.loadConfig(func(name string) bool { return name == "arch" })

		Expect(err).To(MatchError(ContainSubstring("fermi")))
	})
})

var _ = Describe("Command", func() {
	var (
		exitCode int
		out      *bytes.Buffer
		dir      string
	)

	execute := func(args ...string) error {
		cmd := newRootCommand(&exitCode)
		cmd.SetArgs(append(args, "--log-level", "error"))
		cmd.SetOut(out)
		cmd.SetErr(out)

		return cmd.Execute()
	}

	writeFile := func(name, content string, mode os.FileMode) string {
		path := filepath.Join(dir, name)
		Expect(os.MkdirAll(filepath.Dir(path), 0o755)).To(Succeed())
		Expect(os.WriteFile(path, []byte(content), mode)).To(Succeed())
		return path
	}

	BeforeEach(func() {
		exitCode = 0
		out = new(bytes.Buffer)
		dir = GinkgoT().TempDir()
	})

	It("should print the default plan", func() {
		Expect(execute("matrix")).To(Succeed())

		lines := strings.Split(strings.TrimSpace(out.String()), "\n")
		Expect(lines[0]).To(Equal("memset/memset memset2D direction=0 factor=1 stride=32"))
		Expect(lines[len(lines)-1]).To(Equal("198 runs"))
	})

	It("should print the model plan", func() {
		Expect(execute("matrix", ApplyModelArg)).To(Succeed())

		Expect(out.String()).To(HaveSuffix("33 runs\n"))
	})

	It("should validate a config file", func() {
		path := writeFile("sweep.yaml", "factors: [\"1\", \"2\"]\n", 0o644)

		Expect(execute("validate", "--config", path)).To(Succeed())
		Expect(out.String()).To(ContainSubstring("Configuration is valid"))
	})

	It("should reject an invalid config file", func() {
		path := writeFile("sweep.yaml", "factors: [\"0\"]\n", 0o644)

		Expect(execute("validate", "--config", path)).NotTo(Succeed())
	})

	Context("running a sweep", func() {
		var configPath string

		BeforeEach(func() {
			writeFile("tests/mm/mm", "#!/bin/sh\n"+
				"case \"$OCL_COMPILER_OPTIONS\" in\n"+
				"  *\"-coarsening-factor 2 \"*) exit 1 ;;\n"+
				"esac\n", 0o755)
			configPath = writeFile("sweep.yaml", `
suites:
  - path: mm/mm
    kernels: [mm]
factors: ["1", "2"]
timeoutSeconds: 10
paths:
  preload: ""
  prefix: `+filepath.Join(dir, "tests")+`
  occupancyDir: `+dir+`
`, 0o644)
		})

		It("should exit cleanly despite failures", func() {
			Expect(execute("--config", configPath)).To(Succeed())

			Expect(exitCode).To(Equal(0))
			Expect(out.String()).To(ContainSubstring("mm 0 1 32 0/0@0 Ok!\n"))
			Expect(out.String()).To(ContainSubstring("mm 0 2 32 0/0@0 Failure\n"))
			Expect(out.String()).To(HaveSuffix("1 failures out of 2\n"))
		})

		It("should exit with an error status when asked to", func() {
			Expect(execute("--config", configPath, "--fail-exit", "--table")).To(Succeed())

			Expect(exitCode).To(Equal(1))
			Expect(out.String()).To(ContainSubstring("1/2"))
		})
	})
})

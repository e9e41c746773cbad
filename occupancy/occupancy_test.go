package occupancy_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/coarsebench/arch"
	"github.com/sarchlab/coarsebench/occupancy"
)

var _ = Describe("Report file", func() {
	var dir string

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
	})

	It("should round-trip a written report", func() {
		rec := occupancy.Record{
			ExistingSMem:    4096,
			ThreadsPerBlock: 256,
			Occupancy:       0.75,
		}
		path := occupancy.Path(dir, "mm")

		var buf bytes.Buffer
		Expect(occupancy.Write(&buf, rec)).To(Succeed())
		Expect(os.WriteFile(path, buf.Bytes(), 0o644)).To(Succeed())

		got, err := occupancy.ReadFile(path)

		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(Equal(rec))
	})

	It("should parse the format the toolchain writes", func() {
		rec, err := occupancy.Parse(strings.NewReader(
			"smem 0\nblocksize 512\noccupancy 1\n"))

		Expect(err).NotTo(HaveOccurred())
		Expect(rec).To(Equal(occupancy.Record{
			ExistingSMem: 0, ThreadsPerBlock: 512, Occupancy: 1,
		}))
	})

	It("should ignore the label text and anything after line three", func() {
		rec, err := occupancy.Parse(strings.NewReader(
			"a 12\nb 64\nc 0.5\nextra line\n"))

		Expect(err).NotTo(HaveOccurred())
		Expect(rec.ExistingSMem).To(Equal(12))
		Expect(rec.ThreadsPerBlock).To(Equal(64))
		Expect(rec.Occupancy).To(Equal(0.5))
	})

	It("should return the defaults when the file is missing", func() {
		rec, found, err := occupancy.Load(
			filepath.Join(dir, "absent.txt"), occupancy.DefaultRecord)

		Expect(err).NotTo(HaveOccurred())
		Expect(found).To(BeFalse())
		Expect(rec).To(Equal(occupancy.Record{
			ExistingSMem: 0, ThreadsPerBlock: 512, Occupancy: 100,
		}))
	})

	DescribeTable("should reject malformed reports",
		func(content string) {
			path := filepath.Join(dir, "bad.txt")
			Expect(os.WriteFile(path, []byte(content), 0o644)).To(Succeed())

			_, found, err := occupancy.Load(path, occupancy.DefaultRecord)

			Expect(err).To(MatchError(occupancy.ErrMalformed))
			Expect(found).To(BeFalse())
		},
		Entry("too few lines", "smem 0\nblocksize 512\n"),
		Entry("empty file", ""),
		Entry("missing value", "smem\nblocksize 512\noccupancy 1\n"),
		Entry("non-numeric value", "smem x\nblocksize 512\noccupancy 1\n"),
		Entry("zero threads per block", "smem 0\nblocksize 0\noccupancy 1\n"),
		Entry("negative occupancy", "smem 0\nblocksize 512\noccupancy -0.5\n"),
	)

	It("should remove stale reports and tolerate missing ones", func() {
		path := occupancy.Path(dir, "stale")
		Expect(os.WriteFile(path, []byte("x"), 0o644)).To(Succeed())

		Expect(occupancy.Remove(path)).To(Succeed())
		Expect(path).NotTo(BeAnExistingFile())
		Expect(occupancy.Remove(path)).To(Succeed())
	})
})

var _ = Describe("Reduction search", func() {
	full := occupancy.Record{
		ExistingSMem:    0,
		ThreadsPerBlock: 512,
		Occupancy:       1.0,
	}

	It("should derive the resident blocks from the occupancy", func() {
		Expect(occupancy.BlocksPerSM(full, arch.Pascal)).To(Equal(4))
	})

	It("should start the lower bound at the shared memory split", func() {
		Expect(occupancy.MinBlocksPerSM(arch.Pascal, 4)).To(Equal(1))
		Expect(occupancy.MinBlocksPerSM(arch.Kepler, 4)).To(Equal(0))
	})

	It("should drop the lower bound to zero when it is not below the measurement", func() {
		Expect(occupancy.MinBlocksPerSM(arch.Pascal, 1)).To(Equal(0))
	})

	It("should compute the reservation that forces a block count", func() {
		Expect(occupancy.AdditionalSMem(arch.Pascal, 0, 3)).To(Equal(24577))
		Expect(occupancy.AdditionalSMem(arch.Pascal, 0, 2)).To(Equal(32769))
		Expect(occupancy.AdditionalSMem(arch.Pascal, 8192, 3)).To(Equal(16385))
	})

	It("should floor negative numerators", func() {
		tiny := arch.Profile{MaxSMemPerCU: 1, MaxSMemPerBlock: 1}

		Expect(occupancy.AdditionalSMem(tiny, 4, 1)).To(Equal(-3))
	})

	It("should plan blocks 3 and 2 for a fully occupied pascal kernel", func() {
		steps := occupancy.Plan(full, arch.Pascal)

		Expect(steps).To(Equal([]occupancy.Step{
			{Blocks: 3, BlocksPerSM: 4, ThreadsPerBlock: 512, AdditionalSMem: 24577},
			{Blocks: 2, BlocksPerSM: 4, ThreadsPerBlock: 512, AdditionalSMem: 32769},
		}))
		Expect(steps[0].Label()).To(Equal("3/4@512"))
	})

	It("should scan down to one block on kepler", func() {
		steps := occupancy.Plan(full, arch.Kepler)

		Expect(steps).To(HaveLen(3))
		Expect(steps[2].Blocks).To(Equal(1))
		Expect(steps[2].AdditionalSMem).To(Equal(49152/2 + 1))
	})

	It("should plan nothing when a single block is resident", func() {
		low := occupancy.Record{ThreadsPerBlock: 512, Occupancy: 0.25}

		Expect(occupancy.BlocksPerSM(low, arch.Pascal)).To(Equal(1))
		Expect(occupancy.Plan(low, arch.Pascal)).To(BeEmpty())
	})

	It("should clamp a zero occupancy instead of planning invalid runs", func() {
		idle := occupancy.Record{ThreadsPerBlock: 512, Occupancy: 0}

		Expect(occupancy.BlocksPerSM(idle, arch.Pascal)).To(Equal(1))
		Expect(occupancy.Plan(idle, arch.Pascal)).To(BeEmpty())
	})

	It("should label measured runs", func() {
		Expect(occupancy.MeasuredLabel(full, arch.Pascal)).To(Equal("4/4@512"))
	})
})

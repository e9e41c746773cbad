package occupancy

import (
	"fmt"
	"math"

	"github.com/sarchlab/coarsebench/arch"
)

// UnmeasuredLabel is reported for runs without an occupancy report.
const UnmeasuredLabel = "0/0@0"

// Step is one follow-up run of the reduction search. Reserving
// AdditionalSMem bytes of shared memory per block leaves room for exactly
// Blocks resident blocks per compute unit.
type Step struct {
	Blocks          int
	BlocksPerSM     int
	ThreadsPerBlock int
	AdditionalSMem  int
}

// Label formats the step as "<blocks>/<blocksPerSM>@<threadsPerBlock>".
func (s Step) Label() string {
	return label(s.Blocks, s.BlocksPerSM, s.ThreadsPerBlock)
}

func label(blocks, blocksPerSM, threadsPerBlock int) string {
	return fmt.Sprintf("%d/%d@%d", blocks, blocksPerSM, threadsPerBlock)
}

// BlocksPerSM is the number of blocks resident on one compute unit at the
// measured occupancy. It is never below 1.
func BlocksPerSM(rec Record, p arch.Profile) int {
	if rec.ThreadsPerBlock <= 0 {
		return 1
	}

	blocks := int(math.Floor(
		rec.Occupancy * float64(p.MaxActiveThreadsPerCU) / float64(rec.ThreadsPerBlock)))
	if blocks < 1 {
		return 1
	}

	return blocks
}

// MinBlocksPerSM is the exclusive lower bound of the search. When the shared
// memory split already allows blocksPerSM blocks or more, the bound drops to
// zero.
func MinBlocksPerSM(p arch.Profile, blocksPerSM int) int {
	minBlocks := p.MaxSMemPerCU/p.MaxSMemPerBlock - 1
	if minBlocks >= blocksPerSM {
		return 0
	}

	return minBlocks
}

// AdditionalSMem is the smallest per-block shared memory reservation that
// prevents blocks+1 blocks from fitting on one compute unit.
func AdditionalSMem(p arch.Profile, existingSMem, blocks int) int {
	slots := blocks + 1
	return floorDiv(p.MaxSMemPerCU-slots*existingSMem, slots) + 1
}

// MeasuredLabel describes a measured run that has not been reduced.
func MeasuredLabel(rec Record, p arch.Profile) string {
	b := BlocksPerSM(rec, p)
	return label(b, b, rec.ThreadsPerBlock)
}

// Plan lists the follow-up runs for a measurement, from the least invasive
// (one block fewer than measured) down to the lower bound.
func Plan(rec Record, p arch.Profile) []Step {
	blocksPerSM := BlocksPerSM(rec, p)
	minBlocks := MinBlocksPerSM(p, blocksPerSM)

	var steps []Step
	for blocks := blocksPerSM - 1; blocks > minBlocks; blocks-- {
		steps = append(steps, Step{
			Blocks:          blocks,
			BlocksPerSM:     blocksPerSM,
			ThreadsPerBlock: rec.ThreadsPerBlock,
			AdditionalSMem:  AdditionalSMem(p, rec.ExistingSMem, blocks),
		})
	}

	return steps
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}

	return q
}

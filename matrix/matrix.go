// Package matrix expands the tuning dimensions into run configurations.
package matrix

import "fmt"

// RunConfig is one point of the tuning space. Values are kept as strings
// because they are passed to the toolchain verbatim.
type RunConfig struct {
	Direction string
	Factor    string
	Stride    string
}

// WithDirection returns a copy of c with the direction replaced.
func (c RunConfig) WithDirection(direction string) RunConfig {
	c.Direction = direction
	return c
}

func (c RunConfig) String() string {
	return fmt.Sprintf("direction=%s factor=%s stride=%s",
		c.Direction, c.Factor, c.Stride)
}

// Generate returns the cross product directions x factors x strides. The
// direction varies slowest and the stride fastest, so the order is stable
// across runs.
func Generate(directions, factors, strides []string) []RunConfig {
	configs := make([]RunConfig, 0, Count(directions, factors, strides))

	for _, d := range directions {
		for _, f := range factors {
			for _, s := range strides {
				configs = append(configs, RunConfig{
					Direction: d,
					Factor:    f,
					Stride:    s,
				})
			}
		}
	}

	return configs
}

// Count is the number of configurations Generate yields.
func Count(directions, factors, strides []string) int {
	return len(directions) * len(factors) * len(strides)
}

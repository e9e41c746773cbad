// Package kernel parses the kernel entries of the test-suite tables.
package kernel

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sarchlab/coarsebench/matrix"
)

// ErrEmptyName is returned for table entries without a kernel name.
var ErrEmptyName = errors.New("empty kernel name")

// Spec identifies one kernel of a test suite. An entry of the form
// "name:direction" pins the coarsening direction for that kernel.
type Spec struct {
	Suite     string
	Name      string
	Direction string
	Override  bool
}

// Parse splits a raw table entry into a Spec.
func Parse(suite, raw string) (Spec, error) {
	name, direction, found := strings.Cut(raw, ":")
	name = strings.TrimSpace(name)
	if name == "" {
		return Spec{}, fmt.Errorf("suite %q entry %q: %w", suite, raw, ErrEmptyName)
	}

	s := Spec{Suite: suite, Name: name}
	if found {
		direction = strings.TrimSpace(direction)
		if direction == "" {
			return Spec{}, fmt.Errorf("suite %q entry %q: empty direction override",
				suite, raw)
		}
		s.Direction = direction
		s.Override = true
	}

	return s, nil
}

// ParseAll parses every entry of a suite, keeping table order.
func ParseAll(suite string, raw []string) ([]Spec, error) {
	specs := make([]Spec, 0, len(raw))
	for _, r := range raw {
		s, err := Parse(suite, r)
		if err != nil {
			return nil, err
		}
		specs = append(specs, s)
	}

	return specs, nil
}

// Apply returns the configuration this kernel runs with: the override
// direction replaces the configured one. c itself is not modified.
func (s Spec) Apply(c matrix.RunConfig) matrix.RunConfig {
	if !s.Override {
		return c
	}

	return c.WithDirection(s.Direction)
}

func (s Spec) String() string {
	if s.Override {
		return s.Name + ":" + s.Direction
	}

	return s.Name
}

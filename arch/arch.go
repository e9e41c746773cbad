// Package arch describes the hardware limits that parameterize a sweep.
package arch

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrUnknownProfile is returned when a profile name is not registered.
var ErrUnknownProfile = errors.New("unknown architecture profile")

// Profile captures the per-compute-unit limits of one GPU generation.
type Profile struct {
	Name                  string `yaml:"-"`
	ComputeUnits          int    `yaml:"computeUnits"`          // Number of compute units on the device
	MaxActiveThreadsPerCU int    `yaml:"maxActiveThreadsPerCU"` // Resident thread capacity of one CU
	MaxGroupsPerCU        int    `yaml:"maxGroupsPerCU"`        // Resident block group capacity of one CU
	MaxRegsPerCU          int    `yaml:"maxRegsPerCU"`          // Register file size of one CU
	MaxSMemPerCU          int    `yaml:"maxSMemPerCU"`          // Shared memory bytes of one CU
	MaxSMemPerBlock       int    `yaml:"maxSMemPerBlock"`       // Shared memory bytes one block may allocate
}

// Kepler is the profile of a Kepler-class device.
var Kepler = Profile{
	Name:                  "kepler",
	ComputeUnits:          15,
	MaxActiveThreadsPerCU: 2048,
	MaxGroupsPerCU:        16,
	MaxRegsPerCU:          65536,
	MaxSMemPerCU:          49152,
	MaxSMemPerBlock:       49152,
}

// Maxwell is the profile of a Maxwell-class device.
var Maxwell = Profile{
	Name:                  "maxwell",
	ComputeUnits:          24,
	MaxActiveThreadsPerCU: 2048,
	MaxGroupsPerCU:        32,
	MaxRegsPerCU:          65536,
	MaxSMemPerCU:          98304,
	MaxSMemPerBlock:       49152,
}

// Pascal is the profile of a Pascal-class device.
var Pascal = Profile{
	Name:                  "pascal",
	ComputeUnits:          20,
	MaxActiveThreadsPerCU: 2048,
	MaxGroupsPerCU:        32,
	MaxRegsPerCU:          65536,
	MaxSMemPerCU:          98304,
	MaxSMemPerBlock:       49152,
}

// Validate checks that every limit is positive.
func (p Profile) Validate() error {
	fields := []struct {
		name  string
		value int
	}{
		{"computeUnits", p.ComputeUnits},
		{"maxActiveThreadsPerCU", p.MaxActiveThreadsPerCU},
		{"maxGroupsPerCU", p.MaxGroupsPerCU},
		{"maxRegsPerCU", p.MaxRegsPerCU},
		{"maxSMemPerCU", p.MaxSMemPerCU},
		{"maxSMemPerBlock", p.MaxSMemPerBlock},
	}

	for _, f := range fields {
		if f.value <= 0 {
			return fmt.Errorf("profile %q: %s must be positive, got %d",
				p.Name, f.name, f.value)
		}
	}

	return nil
}

// DefaultDevice returns the device selector used when none is configured.
// Kepler boards sit in the second device slot.
func (p Profile) DefaultDevice() string {
	if p.Name == Kepler.Name {
		return "1"
	}

	return "0"
}

// Registry maps profile names to profiles.
type Registry map[string]Profile

// BuiltIn returns a fresh registry holding the built-in profiles.
func BuiltIn() Registry {
	return Registry{
		Kepler.Name:  Kepler,
		Maxwell.Name: Maxwell,
		Pascal.Name:  Pascal,
	}
}

// Add registers p under name, replacing any previous entry.
func (r Registry) Add(name string, p Profile) {
	name = strings.ToLower(name)
	p.Name = name
	r[name] = p
}

// Lookup finds a profile by name, ignoring case.
func (r Registry) Lookup(name string) (Profile, error) {
	p, ok := r[strings.ToLower(name)]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %q (known: %s)",
			ErrUnknownProfile, name, strings.Join(r.Names(), ", "))
	}

	return p, nil
}

// Names lists the registered profile names in sorted order.
func (r Registry) Names() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

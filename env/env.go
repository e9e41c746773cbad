// Package env builds the environment each toolchain run sees.
//
// The toolchain is configured entirely through environment variables. A
// Binder turns one (kernel, configuration, phase) tuple into an immutable
// Environment that is handed to the process launcher. Keys the binder manages
// are stripped from the inherited environment, so a key absent from a run's
// Environment is absent from the child.
package env

import (
	"sort"
	"strings"
)

// Keys read by the toolchain.
const (
	KeyOCLHeader           = "OCL_HEADER"
	KeyKernelName          = "TC_KERNEL_NAME"
	KeyPreload             = "LD_PRELOAD"
	KeyCompilerOptions     = "OCL_COMPILER_OPTIONS"
	KeyCLROptions          = "CLR_OPTIONS"
	KeyOccupancyReduction  = "OCCUPANCY_REDUCTION"
	KeyOccupancySetup      = "OCCUPANCY_REDUCTION_SETUP"
	KeyThreadLevel         = "THREAD_LEVEL_COARSENING"
	KeyMaxCoarseningFactor = "MAX_COARSENING_FACTOR"
	KeyComputeUnits        = "ARCH_COMPUTE_UNITS"
	KeyActiveThreadsPerCU  = "ARCH_ACTIVE_THREADS_PER_CU"
	KeyGroupsPerCU         = "ARCH_GROUPS_PER_CU"
	KeyRegsPerCU           = "ARCH_REGS_PER_CU"
	KeySMemPerCU           = "ARCH_SMEM_PER_CU"
	KeyVisibleDevices      = "CUDA_VISIBLE_DEVICES"
	KeyCacheDisable        = "CUDA_CACHE_DISABLE"
)

// ManagedKeys lists every key a Binder may set.
var ManagedKeys = []string{
	KeyOCLHeader,
	KeyKernelName,
	KeyPreload,
	KeyCompilerOptions,
	KeyCLROptions,
	KeyOccupancyReduction,
	KeyOccupancySetup,
	KeyThreadLevel,
	KeyMaxCoarseningFactor,
	KeyComputeUnits,
	KeyActiveThreadsPerCU,
	KeyGroupsPerCU,
	KeyRegsPerCU,
	KeySMemPerCU,
	KeyVisibleDevices,
	KeyCacheDisable,
}

func isManaged(key string) bool {
	for _, k := range ManagedKeys {
		if k == key {
			return true
		}
	}

	return false
}

// Environment is the variable set of a single run. It is not modified after
// Bind returns it.
type Environment struct {
	base []string
	vars map[string]string
}

// Lookup returns the value bound to key.
func (e Environment) Lookup(key string) (string, bool) {
	v, ok := e.vars[key]
	return v, ok
}

// Get returns the value bound to key, or "" when it is unset.
func (e Environment) Get(key string) string {
	return e.vars[key]
}

// Keys lists the bound keys in sorted order.
func (e Environment) Keys() []string {
	keys := make([]string, 0, len(e.vars))
	for k := range e.vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return keys
}

// Environ renders the environment in the "key=value" form os/exec expects:
// the inherited variables minus every managed key, then the bound keys.
func (e Environment) Environ() []string {
	out := make([]string, 0, len(e.base)+len(e.vars))
	for _, kv := range e.base {
		key, _, _ := strings.Cut(kv, "=")
		if isManaged(key) {
			continue
		}
		out = append(out, kv)
	}

	for _, k := range e.Keys() {
		out = append(out, k+"="+e.vars[k])
	}

	return out
}

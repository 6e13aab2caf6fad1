package simd

import (
	"os"
	"runtime"
	"strings"

	"github.com/klauspost/cpuid/v2"
)

// EnvOverride is the environment variable consulted at init to force a kernel.
const EnvOverride = "BQHNSW_SIMD"

// Package-level state - initialized once at package init.
var (
	active      Kernel = genericKernel{}
	hasOverride bool
	accelerated bool
)

func init() {
	accelerated = detectAccelerated()
	initKernel(os.Getenv(EnvOverride))
}

// detectAccelerated reports whether the vek kernels run with hardware
// acceleration on this CPU. vek only ships AVX2/FMA assembly for amd64.
func detectAccelerated() bool {
	if runtime.GOARCH != "amd64" {
		return false
	}
	return cpuid.CPU.Supports(cpuid.AVX2, cpuid.FMA3)
}

func initKernel(override string) {
	hasOverride = false
	if override != "" {
		if k, ok := ByName(override); ok {
			hasOverride = true
			if isAvailable(k) {
				active = k
				return
			}
			// Invalid override - fall through to auto-detection
		}
	}
	active = selectBest()
}

func selectBest() Kernel {
	if accelerated {
		return vekKernel{}
	}
	return genericKernel{}
}

func isAvailable(k Kernel) bool {
	switch k.(type) {
	case genericKernel:
		return true
	case vekKernel:
		return accelerated
	default:
		return false
	}
}

// ByName resolves a kernel by its short name ("generic" or "vek").
func ByName(name string) (Kernel, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "generic":
		return genericKernel{}, true
	case "vek":
		return vekKernel{}, true
	default:
		return nil, false
	}
}

// Active returns the kernel selected at process start.
func Active() Kernel {
	return active
}

// Available returns every kernel usable on this CPU, generic first.
func Available() []Kernel {
	ks := []Kernel{genericKernel{}}
	if accelerated {
		ks = append(ks, vekKernel{})
	}
	return ks
}

// IsOverridden returns true if BQHNSW_SIMD named a known kernel.
func IsOverridden() bool {
	return hasOverride
}

// Accelerated reports whether the CPU passed acceleration detection.
func Accelerated() bool {
	return accelerated
}

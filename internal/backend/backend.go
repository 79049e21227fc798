// Package backend selects the compute target for a run. Accelerator
// support is compiled in via build tags; the default build carries only
// the cpu path, so probes for metal and cuda report unavailable unless
// the corresponding tag was set.
package backend

import (
	"fmt"
	"strings"
)

const (
	CPU   = "cpu"
	CUDA  = "cuda"
	Metal = "metal"
	Auto  = "auto"
)

// Normalize canonicalizes a backend name, mapping the empty string to Auto.
func Normalize(name string) (string, error) {
	backend := strings.ToLower(strings.TrimSpace(name))
	if backend == "" {
		return Auto, nil
	}
	switch backend {
	case CPU, CUDA, Metal, Auto:
		return backend, nil
	default:
		return "", fmt.Errorf("unknown backend %q (expected auto, cpu, cuda, or metal)", backend)
	}
}

// Has reports whether the named backend is available in this build.
func Has(name string) bool {
	switch name {
	case CPU:
		return true
	case CUDA:
		return cudaEnabled
	case Metal:
		return metalEnabled
	default:
		return false
	}
}

// Pick returns the first available compute target in preference order
// metal, cuda, cpu. It never fails: cpu is always available. forceCPU
// skips the accelerator probes entirely.
func Pick(forceCPU bool) string {
	if forceCPU {
		return CPU
	}
	if Has(Metal) {
		return Metal
	}
	if Has(CUDA) {
		return CUDA
	}
	return CPU
}

// Available returns a comma-separated list of available backends.
func Available() string {
	entries := []string{CPU}
	if Has(CUDA) {
		entries = append(entries, CUDA)
	}
	if Has(Metal) {
		entries = append(entries, Metal)
	}
	return strings.Join(entries, ",")
}

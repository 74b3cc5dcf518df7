/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package resources

import (
	"fmt"
	"strconv"
	"strings"

	"k8s.io/apimachinery/pkg/api/resource"
)

const (
	gib = int64(1024 * 1024 * 1024)
	mib = int64(1024 * 1024)
)

// Resources is the scheduler's resource triple. CPU is tracked in
// millicores and memory in bytes so that quota arithmetic stays in
// integer space; GPUs are whole devices.
type Resources struct {
	CPUMilli    int64 `json:"cpu_milli"`
	MemoryBytes int64 `json:"memory_bytes"`
	GPU         int64 `json:"gpu"`
}

// Add returns the componentwise sum of r and other.
func (r Resources) Add(other Resources) Resources {
	return Resources{
		CPUMilli:    r.CPUMilli + other.CPUMilli,
		MemoryBytes: r.MemoryBytes + other.MemoryBytes,
		GPU:         r.GPU + other.GPU,
	}
}

// Sub returns the componentwise difference, saturating at zero so that a
// duplicate release can never drive a counter negative.
func (r Resources) Sub(other Resources) Resources {
	return Resources{
		CPUMilli:    max64(r.CPUMilli-other.CPUMilli, 0),
		MemoryBytes: max64(r.MemoryBytes-other.MemoryBytes, 0),
		GPU:         max64(r.GPU-other.GPU, 0),
	}
}

// Leq reports whether every component of r is at most the matching component of other.
func (r Resources) Leq(other Resources) bool {
	return r.CPUMilli <= other.CPUMilli &&
		r.MemoryBytes <= other.MemoryBytes &&
		r.GPU <= other.GPU
}

// Mul returns r scaled by the given factor.
func (r Resources) Mul(factor int64) Resources {
	return Resources{
		CPUMilli:    r.CPUMilli * factor,
		MemoryBytes: r.MemoryBytes * factor,
		GPU:         r.GPU * factor,
	}
}

// IsZero reports whether all components are zero.
func (r Resources) IsZero() bool {
	return r.CPUMilli == 0 && r.MemoryBytes == 0 && r.GPU == 0
}

// MemoryGiB returns the memory component in GiB.
func (r Resources) MemoryGiB() float64 {
	return float64(r.MemoryBytes) / float64(gib)
}

// CPUCores returns the CPU component in cores.
func (r Resources) CPUCores() float64 {
	return float64(r.CPUMilli) / 1000
}

// String renders the triple in canonical form, e.g. "cpu=2,mem=4Gi,gpu=1".
func (r Resources) String() string {
	return fmt.Sprintf("cpu=%s,mem=%s,gpu=%d", FormatCPU(r.CPUMilli), FormatMemory(r.MemoryBytes), r.GPU)
}

// Fits reports whether the request fits within the limit componentwise.
func Fits(request, limit Resources) bool {
	return request.Leq(limit)
}

// Exceeded returns the name of the first component of request that does
// not fit within limit, or empty when the request fits.
func Exceeded(request, limit Resources) string {
	if request.CPUMilli > limit.CPUMilli {
		return "cpu"
	}
	if request.MemoryBytes > limit.MemoryBytes {
		return "memory"
	}
	if request.GPU > limit.GPU {
		return "gpu"
	}
	return ""
}

// ParseCPU converts a Kubernetes CPU quantity string into millicores.
// "2000m" and "2" both yield 2000.
func ParseCPU(value string) (int64, error) {
	if value == "" {
		return 0, nil
	}
	q, err := resource.ParseQuantity(value)
	if err != nil {
		return 0, fmt.Errorf("invalid cpu quantity %q: %v", value, err)
	}
	if q.Sign() < 0 {
		return 0, fmt.Errorf("invalid cpu quantity %q: negative", value)
	}
	return q.MilliValue(), nil
}

// ParseMemory converts a Kubernetes memory quantity string into bytes.
// Binary suffixes (Ki/Mi/Gi/Ti) and decimal suffixes are both accepted.
func ParseMemory(value string) (int64, error) {
	if value == "" {
		return 0, nil
	}
	q, err := resource.ParseQuantity(value)
	if err != nil {
		return 0, fmt.Errorf("invalid memory quantity %q: %v", value, err)
	}
	if q.Sign() < 0 {
		return 0, fmt.Errorf("invalid memory quantity %q: negative", value)
	}
	return q.Value(), nil
}

// ParseGPU converts a GPU request into a device count. Accepts a bare
// integer or the gres form "gpu:<n>".
func ParseGPU(value string) (int64, error) {
	if value == "" {
		return 0, nil
	}
	s := value
	if idx := strings.Index(s, "gpu:"); idx >= 0 {
		s = s[idx+4:]
		if cut := strings.IndexAny(s, ", \t"); cut >= 0 {
			s = s[:cut]
		}
	}
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid gpu quantity %q: %v", value, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("invalid gpu quantity %q: negative", value)
	}
	return n, nil
}

// Parse builds a Resources triple from the three quantity strings.
func Parse(cpu, memory, gpu string) (Resources, error) {
	cpuMilli, err := ParseCPU(cpu)
	if err != nil {
		return Resources{}, err
	}
	memBytes, err := ParseMemory(memory)
	if err != nil {
		return Resources{}, err
	}
	gpuCount, err := ParseGPU(gpu)
	if err != nil {
		return Resources{}, err
	}
	return Resources{CPUMilli: cpuMilli, MemoryBytes: memBytes, GPU: gpuCount}, nil
}

// FormatCPU renders millicores canonically: whole cores without a
// suffix, fractional cores with the milli suffix.
func FormatCPU(milli int64) string {
	if milli%1000 == 0 {
		return strconv.FormatInt(milli/1000, 10)
	}
	return strconv.FormatInt(milli, 10) + "m"
}

// FormatMemory renders bytes in Gi when they divide evenly, else Mi, else bytes.
func FormatMemory(bytes int64) string {
	if bytes == 0 {
		return "0"
	}
	if bytes%gib == 0 {
		return strconv.FormatInt(bytes/gib, 10) + "Gi"
	}
	if bytes%mib == 0 {
		return strconv.FormatInt(bytes/mib, 10) + "Mi"
	}
	return strconv.FormatInt(bytes, 10)
}

// FormatGPU renders a device count in gres form.
func FormatGPU(count int64) string {
	return fmt.Sprintf("gpu:%d", count)
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

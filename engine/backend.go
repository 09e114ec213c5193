package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
)

// Backend identifies the execution substrate an engine runs on.
type Backend string

const (
	// BackendGPU runs inference on a local GPU.
	BackendGPU Backend = "gpu"

	// BackendCPU runs inference on the host CPU. It is the demotion
	// target when GPU execution fails.
	BackendCPU Backend = "cpu"

	// BackendHosted delegates inference to a remote provider API.
	BackendHosted Backend = "hosted"

	// BackendMock is an in-memory backend for tests and examples.
	BackendMock Backend = "mock"
)

// Valid reports whether b is a known backend.
func (b Backend) Valid() bool {
	switch b {
	case BackendGPU, BackendCPU, BackendHosted, BackendMock:
		return true
	}
	return false
}

// Fallback returns the backend to demote to, or "" when no demotion
// path exists. Only GPU demotes; CPU is terminal.
func (b Backend) Fallback() Backend {
	if b == BackendGPU {
		return BackendCPU
	}
	return ""
}

// HardwareInfo summarizes the probed host capabilities.
type HardwareInfo struct {
	OS             string  `json:"os"`
	Arch           string  `json:"arch"`
	CPUCores       int     `json:"cpu_cores"`
	TotalMemoryMB  uint64  `json:"total_memory_mb"`
	GPUAvailable   bool    `json:"gpu_available"`
	RecommendedUse Backend `json:"recommended_use"`
}

// ProbeHardware inspects the host and recommends a backend. GPU presence
// is detected via NVIDIA device nodes; INFERMESH_FORCE_BACKEND overrides
// the recommendation for testing and constrained deployments.
func ProbeHardware() (HardwareInfo, error) {
	info := HardwareInfo{}

	hostInfo, err := host.Info()
	if err != nil {
		return info, fmt.Errorf("probe host: %w", err)
	}
	info.OS = hostInfo.OS
	info.Arch = hostInfo.KernelArch

	counts, err := cpu.Counts(true)
	if err != nil {
		return info, fmt.Errorf("probe cpu: %w", err)
	}
	info.CPUCores = counts

	vm, err := mem.VirtualMemory()
	if err != nil {
		return info, fmt.Errorf("probe memory: %w", err)
	}
	info.TotalMemoryMB = vm.Total / (1 << 20)

	info.GPUAvailable = detectGPU()
	if info.GPUAvailable {
		info.RecommendedUse = BackendGPU
	} else {
		info.RecommendedUse = BackendCPU
	}

	if forced := strings.TrimSpace(os.Getenv("INFERMESH_FORCE_BACKEND")); forced != "" {
		b := Backend(forced)
		if !b.Valid() {
			return info, fmt.Errorf("invalid INFERMESH_FORCE_BACKEND %q", forced)
		}
		info.RecommendedUse = b
	}

	return info, nil
}

func detectGPU() bool {
	matches, err := filepath.Glob("/dev/nvidia[0-9]*")
	if err != nil {
		return false
	}
	return len(matches) > 0
}

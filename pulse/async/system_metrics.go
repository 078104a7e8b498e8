package async

import (
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/teranos/verdict/errors"
)

// SystemMetrics is a snapshot of host memory, logged with every cycle summary
type SystemMetrics struct {
	MemoryUsedGB  float64 `json:"memory_used_gb"`
	MemoryTotalGB float64 `json:"memory_total_gb"`
	MemoryPercent float64 `json:"memory_percent"`
}

// getMemoryStats returns current memory usage in bytes
var getMemoryStats = func() (total uint64, available uint64, err error) {
	v, err := mem.VirtualMemory()
	if err != nil {
		return 0, 0, errors.Wrap(err, "failed to get memory stats")
	}
	return v.Total, v.Available, nil
}

// CurrentSystemMetrics returns current host memory usage. Zeroes on failure.
func CurrentSystemMetrics() SystemMetrics {
	total, available, err := getMemoryStats()
	if err != nil || total == 0 {
		return SystemMetrics{}
	}

	const gb = 1024 * 1024 * 1024
	used := float64(total-available) / gb
	totalGB := float64(total) / gb
	return SystemMetrics{
		MemoryUsedGB:  used,
		MemoryTotalGB: totalGB,
		MemoryPercent: used / totalGB * 100,
	}
}

package monitoring

import (
	"context"
	"os"
	"runtime"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// SystemStats describes the host and this process at one point in time.
// Fields the platform cannot report stay zero.
type SystemStats struct {
	Goroutines        int     `json:"goroutines"`
	ProcessRSS        uint64  `json:"process_rss_bytes"`
	ProcessCPUPercent float64 `json:"process_cpu_percent"`
	HostMemoryTotal   uint64  `json:"host_memory_total_bytes"`
	HostMemoryUsed    float64 `json:"host_memory_used_percent"`
}

// CollectSystemStats samples the current process and host memory.
func CollectSystemStats(ctx context.Context) SystemStats {
	stats := SystemStats{Goroutines: runtime.NumGoroutine()}

	if vmem, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		stats.HostMemoryTotal = vmem.Total
		stats.HostMemoryUsed = vmem.UsedPercent
	}

	proc, err := process.NewProcessWithContext(ctx, int32(os.Getpid()))
	if err != nil {
		return stats
	}
	if info, err := proc.MemoryInfoWithContext(ctx); err == nil {
		stats.ProcessRSS = info.RSS
	}
	if cpu, err := proc.CPUPercentWithContext(ctx); err == nil {
		stats.ProcessCPUPercent = cpu
	}
	return stats
}

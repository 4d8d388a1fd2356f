package probe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/The-Promised-Neverland/hostwatch/internal/models"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

// cpuSampleWindow separates the two counter reads that make up one CPU sample.
const cpuSampleWindow = time.Second

var errNoCPUSample = errors.New("cpu sampler returned no values")

// Resources samples host utilization through gopsutil. The collectors are
// fields so tests can replace them.
type Resources struct {
	diskCollector func(context.Context, string) (*disk.UsageStat, error)
	cpuCollector  func(context.Context, time.Duration, bool) ([]float64, error)
	memCollector  func(context.Context) (*mem.VirtualMemoryStat, error)
	hostCollector func(context.Context) (*host.InfoStat, error)
	cpuWindow     time.Duration
}

func NewResources() *Resources {
	return &Resources{
		diskCollector: disk.UsageWithContext,
		cpuCollector:  cpu.PercentWithContext,
		memCollector:  mem.VirtualMemoryWithContext,
		hostCollector: host.InfoWithContext,
		cpuWindow:     cpuSampleWindow,
	}
}

func (r *Resources) DiskUsage(ctx context.Context, volume string) (float64, error) {
	stat, err := r.diskCollector(ctx, volume)
	if err != nil {
		return 0, fmt.Errorf("disk usage of %s: %w", volume, err)
	}
	return clampPercent(stat.UsedPercent), nil
}

// CPUUsage blocks for the sampling window and returns the aggregate busy percentage.
func (r *Resources) CPUUsage(ctx context.Context) (float64, error) {
	values, err := r.cpuCollector(ctx, r.cpuWindow, false)
	if err != nil {
		return 0, fmt.Errorf("cpu usage: %w", err)
	}
	if len(values) == 0 {
		return 0, errNoCPUSample
	}
	return clampPercent(values[0]), nil
}

func (r *Resources) MemoryUsage(ctx context.Context) (float64, error) {
	stat, err := r.memCollector(ctx)
	if err != nil {
		return 0, fmt.Errorf("memory usage: %w", err)
	}
	return clampPercent(stat.UsedPercent), nil
}

func (r *Resources) HostSummary(ctx context.Context) (models.HostSummary, error) {
	info, err := r.hostCollector(ctx)
	if err != nil {
		return models.HostSummary{}, fmt.Errorf("host info: %w", err)
	}
	return models.HostSummary{
		Hostname: info.Hostname,
		OS:       info.OS,
		Platform: info.Platform,
		Uptime:   info.Uptime,
	}, nil
}

func clampPercent(v float64) float64 {
	switch {
	case v != v || v < 0: // NaN or negative
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}

package models

import (
	"fmt"
	"time"
)

type ResourceKind string

const (
	ResourceDisk   ResourceKind = "disk"
	ResourceCPU    ResourceKind = "cpu"
	ResourceMemory ResourceKind = "memory"
)

// ResourceSample is a single utilization reading checked against its threshold.
// For disk the threshold is the free-space headroom, for CPU and memory it is
// the maximum tolerated usage.
type ResourceSample struct {
	Kind        ResourceKind
	UsedPercent float64
	Threshold   float64
}

// Limit returns the usage percentage at which the sample is considered breached.
func (s ResourceSample) Limit() float64 {
	if s.Kind == ResourceDisk {
		return 100 - s.Threshold
	}
	return s.Threshold
}

// Breached reports whether the sample warrants a notification. Disk fires at or
// above the limit, CPU and memory only strictly above it.
func (s ResourceSample) Breached() bool {
	if s.Kind == ResourceDisk {
		return s.UsedPercent >= s.Limit()
	}
	return s.UsedPercent > s.Limit()
}

type HostSummary struct {
	Hostname string
	OS       string
	Platform string
	Uptime   uint64
}

// String renders the summary as "host (os platform), up 1h2m3s".
func (h HostSummary) String() string {
	uptime := time.Duration(h.Uptime) * time.Second
	return fmt.Sprintf("%s (%s %s), up %s", h.Hostname, h.OS, h.Platform, uptime)
}

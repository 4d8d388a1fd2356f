package monitor

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/The-Promised-Neverland/hostwatch/internal/models"
	"github.com/The-Promised-Neverland/hostwatch/internal/notify"
	"github.com/The-Promised-Neverland/hostwatch/internal/state"
	"github.com/The-Promised-Neverland/hostwatch/pkg/logger"
)

type ServiceProber interface {
	Status(ctx context.Context, name string) models.ServiceStatus
}

type ResourceProber interface {
	DiskUsage(ctx context.Context, volume string) (float64, error)
	CPUUsage(ctx context.Context) (float64, error)
	MemoryUsage(ctx context.Context) (float64, error)
}

type StateTracker interface {
	Diff(current models.Snapshot) (state.Result, error)
}

// Settings is the static part of the monitoring configuration.
type Settings struct {
	ServerID      string
	Services      []string
	DiskPath      string
	DiskThreshold float64
	CPUThreshold  float64
	MemThreshold  float64
	Interval      time.Duration
}

type Monitor struct {
	settings  Settings
	services  ServiceProber
	resources ResourceProber
	tracker   StateTracker
	sink      notify.Sink
}

func New(settings Settings, services ServiceProber, resources ResourceProber, tracker StateTracker, sink notify.Sink) *Monitor {
	return &Monitor{
		settings:  settings,
		services:  services,
		resources: resources,
		tracker:   tracker,
		sink:      sink,
	}
}

// Run ticks once immediately and then every interval until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.settings.Interval)
	defer ticker.Stop()
	logger.Log.Info("Monitoring loop started", "interval", m.settings.Interval.String(), "services", m.settings.Services)
	for {
		m.Tick(ctx)
		select {
		case <-ctx.Done():
			logger.Log.Info("Stopping monitoring loop for shutdown initiation")
			return nil
		case <-ticker.C:
		}
	}
}

// Tick runs every check in order. A failing check is logged and never stops
// the checks after it.
func (m *Monitor) Tick(ctx context.Context) {
	checks := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"services", m.TestServices},
		{"disk", m.TestDisk},
		{"cpu", m.TestCPU},
		{"memory", m.TestMemory},
	}
	for _, check := range checks {
		if ctx.Err() != nil {
			return
		}
		m.runCheck(ctx, check.name, check.fn)
	}
}

func (m *Monitor) runCheck(ctx context.Context, name string, fn func(context.Context) error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Log.Error("Check panicked", "check", name, "panic", fmt.Sprint(r))
		}
	}()
	if err := fn(ctx); err != nil {
		logger.Log.Warn("Check skipped", "check", name, "err", err)
	}
}

// TestServices reports every monitored service when the composite state
// differs from the stored one.
func (m *Monitor) TestServices(ctx context.Context) error {
	var snap models.Snapshot
	for _, name := range m.settings.Services {
		snap.Add(name, m.services.Status(ctx, name))
	}
	res, err := m.tracker.Diff(snap)
	if err != nil {
		// The baseline is still updated in memory; report and move on.
		logger.Log.Error("Failed to persist service snapshot", "err", err)
	}
	if !res.Changed {
		return nil
	}
	logger.Log.Info("Service state changed", "previous", res.Previous, "current", snap.String(), "first", res.First)
	for _, entry := range snap.Entries {
		_ = m.sink.Notify(ctx, ServiceMessage(m.settings.ServerID, entry.Name, entry.Status))
	}
	return nil
}

func (m *Monitor) TestDisk(ctx context.Context) error {
	usage, err := m.resources.DiskUsage(ctx, m.settings.DiskPath)
	if err != nil {
		return err
	}
	return m.checkSample(ctx, models.ResourceSample{Kind: models.ResourceDisk, UsedPercent: usage, Threshold: m.settings.DiskThreshold})
}

func (m *Monitor) TestCPU(ctx context.Context) error {
	usage, err := m.resources.CPUUsage(ctx)
	if err != nil {
		return err
	}
	return m.checkSample(ctx, models.ResourceSample{Kind: models.ResourceCPU, UsedPercent: usage, Threshold: m.settings.CPUThreshold})
}

func (m *Monitor) TestMemory(ctx context.Context) error {
	usage, err := m.resources.MemoryUsage(ctx)
	if err != nil {
		return err
	}
	return m.checkSample(ctx, models.ResourceSample{Kind: models.ResourceMemory, UsedPercent: usage, Threshold: m.settings.MemThreshold})
}

func (m *Monitor) checkSample(ctx context.Context, sample models.ResourceSample) error {
	logger.Log.Debug("Resource sample", "kind", string(sample.Kind), "used", sample.UsedPercent, "limit", sample.Limit())
	if !sample.Breached() {
		return nil
	}
	_ = m.sink.Notify(ctx, ResourceMessage(m.settings.ServerID, sample))
	return nil
}

func ServiceMessage(serverID, name string, status models.ServiceStatus) string {
	if status.Active() {
		return fmt.Sprintf("🟢 [Server %s] Service %s is active.", serverID, name)
	}
	return fmt.Sprintf("🔴 [Server %s] Service %s is inactive.", serverID, name)
}

func ResourceMessage(serverID string, sample models.ResourceSample) string {
	limit := strconv.FormatFloat(sample.Limit(), 'f', -1, 64)
	switch sample.Kind {
	case models.ResourceDisk:
		return fmt.Sprintf("🔴 [Server %s] Disk usage is above %s%%: %.2f%% used.", serverID, limit, sample.UsedPercent)
	case models.ResourceCPU:
		return fmt.Sprintf("🔴 [Server %s] CPU load is above %s%%: %.2f%%.", serverID, limit, sample.UsedPercent)
	default:
		return fmt.Sprintf("🔴 [Server %s] Memory usage is above %s%%: %.2f%%.", serverID, limit, sample.UsedPercent)
	}
}

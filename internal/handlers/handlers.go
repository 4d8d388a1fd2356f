package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/The-Promised-Neverland/hostwatch/internal/models"
	"github.com/The-Promised-Neverland/hostwatch/internal/notify"
	"github.com/The-Promised-Neverland/hostwatch/pkg/logger"
	"github.com/The-Promised-Neverland/hostwatch/pkg/utils"
)

type ServiceController interface {
	Status(ctx context.Context, name string) models.ServiceStatus
	Start(ctx context.Context, name string) string
	Stop(ctx context.Context, name string) string
}

type ResourceReporter interface {
	DiskUsage(ctx context.Context, volume string) (float64, error)
	CPUUsage(ctx context.Context) (float64, error)
	MemoryUsage(ctx context.Context) (float64, error)
	HostSummary(ctx context.Context) (models.HostSummary, error)
}

// Settings is the slice of configuration the verb handlers need.
type Settings struct {
	ServerID string
	Services []string
	DiskPath string
	AllowRun bool
	Shell    utils.ShellOptions
}

type Handler struct {
	settings  Settings
	services  ServiceController
	resources ResourceReporter
	sink      notify.Sink
	runShell  func(ctx context.Context, command string, opts utils.ShellOptions) utils.ShellResult
}

func NewHandler(settings Settings, services ServiceController, resources ResourceReporter, sink notify.Sink) *Handler {
	return &Handler{
		settings:  settings,
		services:  services,
		resources: resources,
		sink:      sink,
		runShell:  utils.RunShell,
	}
}

func (h *Handler) reply(ctx context.Context, format string, args ...any) {
	_ = h.sink.Notify(ctx, fmt.Sprintf(format, args...))
}

func (h *Handler) ServerID(ctx context.Context, _ models.RemoteCommand) error {
	h.reply(ctx, "Server ID: %s", h.settings.ServerID)
	return nil
}

func (h *Handler) Help(ctx context.Context, _ models.RemoteCommand) error {
	_ = h.sink.Notify(ctx, HelpText())
	return nil
}

func (h *Handler) ListEnabledServices(ctx context.Context, _ models.RemoteCommand) error {
	for _, name := range h.settings.Services {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		status := h.services.Status(ctx, name)
		icon := "🔴"
		if status.Active() {
			icon = "🟢"
		}
		h.reply(ctx, "%s [Server %s] %s is %s.", icon, h.settings.ServerID, name, status)
	}
	return nil
}

func (h *Handler) StatusService(ctx context.Context, cmd models.RemoteCommand) error {
	if len(cmd.Args) == 0 {
		return ErrUsage
	}
	name := cmd.Args[0]
	h.reply(ctx, "Status of service %s on server %s: %s", name, h.settings.ServerID, h.services.Status(ctx, name))
	return nil
}

func (h *Handler) StartService(ctx context.Context, cmd models.RemoteCommand) error {
	if len(cmd.Args) == 0 {
		return ErrUsage
	}
	name := cmd.Args[0]
	outcome := h.services.Start(ctx, name)
	logger.Log.Info("Start service requested", "service", name, "outcome", outcome)
	h.reply(ctx, "Service %s start on server %s:\n%s", name, h.settings.ServerID, outcome)
	return nil
}

func (h *Handler) StopService(ctx context.Context, cmd models.RemoteCommand) error {
	if len(cmd.Args) == 0 {
		return ErrUsage
	}
	name := cmd.Args[0]
	outcome := h.services.Stop(ctx, name)
	logger.Log.Info("Stop service requested", "service", name, "outcome", outcome)
	h.reply(ctx, "Service %s stop on server %s:\n%s", name, h.settings.ServerID, outcome)
	return nil
}

// RestartService always attempts the start, even when the stop failed.
func (h *Handler) RestartService(ctx context.Context, cmd models.RemoteCommand) error {
	if len(cmd.Args) == 0 {
		return ErrUsage
	}
	name := cmd.Args[0]
	stopped := h.services.Stop(ctx, name)
	started := h.services.Start(ctx, name)
	logger.Log.Info("Restart service requested", "service", name, "stop", stopped, "start", started)
	h.reply(ctx, "Service %s restart on server %s.\nStop result: %s\nStart result: %s",
		name, h.settings.ServerID, stopped, started)
	return nil
}

func (h *Handler) Run(ctx context.Context, cmd models.RemoteCommand) error {
	if !h.settings.AllowRun {
		logger.Log.Warn("Rejected run command, execution disabled")
		h.reply(ctx, "Command execution is disabled on server %s.", h.settings.ServerID)
		return nil
	}
	if strings.TrimSpace(cmd.Rest) == "" {
		return ErrUsage
	}

	logger.Log.Info("Executing remote command", "command", cmd.Rest)
	result := h.runShell(ctx, cmd.Rest, h.settings.Shell)
	logger.Log.Info("Remote command finished", "exit_code", result.ExitCode, "truncated", result.Truncated, "err", result.Err)

	_ = h.sink.Notify(ctx, FormatShellResult(result))
	return nil
}

// FormatShellResult renders captured output for a chat reply.
func FormatShellResult(result utils.ShellResult) string {
	var b strings.Builder
	b.WriteString(strings.TrimRight(result.Stdout, "\n"))
	if result.Truncated {
		b.WriteString("\n…(output truncated)")
	}
	if result.Err != nil {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("Error: " + result.Err.Error())
		if stderr := strings.TrimSpace(result.Stderr); stderr != "" {
			b.WriteString("\n" + stderr)
		}
	}
	if strings.TrimSpace(b.String()) == "" {
		return "(no output)"
	}
	return b.String()
}

func (h *Handler) Metrics(ctx context.Context, _ models.RemoteCommand) error {
	percent := func(v float64, err error) string {
		if err != nil {
			logger.Log.Error("Metric collection failed", "err", err)
			return "n/a"
		}
		return fmt.Sprintf("%.2f%%", v)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📊 [Server %s]", h.settings.ServerID)
	if summary, err := h.resources.HostSummary(ctx); err != nil {
		logger.Log.Error("Host summary failed", "err", err)
	} else {
		fmt.Fprintf(&b, " %s", summary)
	}
	fmt.Fprintf(&b, "\nDisk (%s): %s", h.settings.DiskPath, percent(h.resources.DiskUsage(ctx, h.settings.DiskPath)))
	fmt.Fprintf(&b, "\nCPU: %s", percent(h.resources.CPUUsage(ctx)))
	fmt.Fprintf(&b, "\nMemory: %s", percent(h.resources.MemoryUsage(ctx)))
	_ = h.sink.Notify(ctx, b.String())
	return nil
}

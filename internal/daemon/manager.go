package daemon

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	kardianos "github.com/kardianos/service"

	"github.com/The-Promised-Neverland/hostwatch/internal/config"
	"github.com/The-Promised-Neverland/hostwatch/pkg/logger"
	"github.com/The-Promised-Neverland/hostwatch/pkg/policy"
)

const stopTimeout = 20 * time.Second

// Control actions accepted by DaemonManager.Control.
const (
	ActionInstall   = "install"
	ActionUninstall = "uninstall"
	ActionStart     = "start"
	ActionStop      = "stop"
	ActionRestart   = "restart"
	ActionStatus    = "status"
)

var (
	ErrUnknownAction  = errors.New("unknown service action")
	ErrAlreadyRunning = errors.New("application is already running")
)

// DaemonManager adapts Application to the OS service manager.
type DaemonManager struct {
	cfg  *config.Config
	app  Runner
	args []string

	mu        sync.Mutex
	appCancel context.CancelFunc
	done      chan struct{} // nil until the first Start
}

// NewDaemonManager wraps app. args are passed to the binary when the service
// manager launches it.
func NewDaemonManager(cfg *config.Config, app Runner, args []string) *DaemonManager {
	return &DaemonManager{
		cfg:  cfg,
		app:  app,
		args: args,
	}
}

func (m *DaemonManager) serviceConfig() *kardianos.Config {
	svcCfg := &kardianos.Config{
		Name:        m.cfg.ServiceName(),
		DisplayName: m.cfg.ServiceDisplayName(),
		Description: m.cfg.ServiceDescription(),
		Arguments:   m.args,
	}
	policy.ForOS(runtime.GOOS).Apply(svcCfg)
	return svcCfg
}

func (m *DaemonManager) newService() (kardianos.Service, error) {
	if m.app == nil {
		return nil, fmt.Errorf("application cannot be nil")
	}
	return kardianos.New(m, m.serviceConfig())
}

// kardianos.Interface implementation. Each Start runs the application under
// a fresh context; a Start while a previous run is live is rejected.
func (m *DaemonManager) Start(s kardianos.Service) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running() {
		return ErrAlreadyRunning
	}
	logger.Log.Info("Kardianos starting service", "service", s.String(), "platform", s.Platform())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	m.appCancel, m.done = cancel, done
	go func() {
		defer close(done)
		if err := m.app.Run(ctx); err != nil {
			logger.Log.Error("Application exited with error", "err", err)
		}
	}()
	return nil
}

func (m *DaemonManager) Stop(s kardianos.Service) error {
	m.mu.Lock()
	cancel, done := m.appCancel, m.done
	m.mu.Unlock()
	logger.Log.Info("Kardianos stopping service", "service", s.String())
	if done == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
	case <-time.After(stopTimeout):
		logger.Log.Warn("Application did not stop in time", "timeout", stopTimeout.String())
	}
	return nil
}

// running reports whether the last started run is still live. Callers hold mu.
func (m *DaemonManager) running() bool {
	if m.done == nil {
		return false
	}
	select {
	case <-m.done:
		return false
	default:
		return true
	}
}

// RunDaemon blocks until the service manager (or an interrupt in the
// foreground) stops the agent.
func (m *DaemonManager) RunDaemon() error {
	s, err := m.newService()
	if err != nil {
		return err
	}
	return s.Run()
}

// Control performs one service management action and returns a status line.
func (m *DaemonManager) Control(action string) (string, error) {
	s, err := m.newService()
	if err != nil {
		return "", err
	}
	name := m.cfg.ServiceName()
	switch action {
	case ActionInstall:
		if err := s.Install(); err != nil {
			if runtime.GOOS == "windows" {
				return "", fmt.Errorf("failed to install Windows service (requires administrator privileges): %w", err)
			}
			return "", fmt.Errorf("failed to install service: %w", err)
		}
		return fmt.Sprintf("Service %s installed", name), nil
	case ActionUninstall:
		if err := s.Stop(); err != nil {
			logger.Log.Warn("Failed to stop service before uninstall", "err", err)
		}
		if err := s.Uninstall(); err != nil {
			return "", fmt.Errorf("failed to uninstall service: %w", err)
		}
		return fmt.Sprintf("Service %s uninstalled", name), nil
	case ActionStart, ActionStop, ActionRestart:
		if err := kardianos.Control(s, action); err != nil {
			return "", err
		}
		return fmt.Sprintf("Service %s %s requested", name, action), nil
	case ActionStatus:
		status, err := s.Status()
		if err != nil {
			return "", fmt.Errorf("failed to query service status: %w", err)
		}
		return fmt.Sprintf("Service %s is %s", name, statusText(status)), nil
	default:
		return "", fmt.Errorf("%w %q", ErrUnknownAction, action)
	}
}

func statusText(status kardianos.Status) string {
	switch status {
	case kardianos.StatusRunning:
		return "running"
	case kardianos.StatusStopped:
		return "stopped"
	default:
		return "in an unknown state"
	}
}

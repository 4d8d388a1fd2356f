package probe

import (
	"context"
	"fmt"

	"github.com/The-Promised-Neverland/hostwatch/internal/models"
	kardianos "github.com/kardianos/service"
)

// NativeBackend drives services through the platform service manager that
// kardianos/service detects (systemd, launchd, upstart, sysv or the Windows SCM).
type NativeBackend struct {
	open func(name string) (kardianos.Service, error)
}

func NewNativeBackend() *NativeBackend {
	return &NativeBackend{open: openNative}
}

// controlOnly satisfies kardianos.Interface for services we never run ourselves.
type controlOnly struct{}

func (controlOnly) Start(kardianos.Service) error { return nil }
func (controlOnly) Stop(kardianos.Service) error  { return nil }

func openNative(name string) (kardianos.Service, error) {
	return kardianos.New(controlOnly{}, &kardianos.Config{Name: name})
}

func (b *NativeBackend) Status(_ context.Context, name string) (models.ServiceState, error) {
	svc, err := b.open(name)
	if err != nil {
		return models.StateUnknown, fmt.Errorf("open service %s: %w", name, err)
	}
	status, err := svc.Status()
	if err != nil {
		return models.StateUnknown, err
	}
	switch status {
	case kardianos.StatusRunning:
		return models.StateRunning, nil
	case kardianos.StatusStopped:
		return models.StateStopped, nil
	default:
		return models.StateUnknown, nil
	}
}

func (b *NativeBackend) Start(_ context.Context, name string) error {
	svc, err := b.open(name)
	if err != nil {
		return fmt.Errorf("open service %s: %w", name, err)
	}
	return svc.Start()
}

func (b *NativeBackend) Stop(_ context.Context, name string) error {
	svc, err := b.open(name)
	if err != nil {
		return fmt.Errorf("open service %s: %w", name, err)
	}
	return svc.Stop()
}

package probe

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/The-Promised-Neverland/hostwatch/internal/models"
	"github.com/The-Promised-Neverland/hostwatch/pkg/logger"
)

const (
	maxServiceNameLength = 256
	defaultPollInterval  = 500 * time.Millisecond
)

var (
	// validServiceName allows alphanumerics, hyphens, underscores, periods and
	// the "@" of templated systemd units.
	validServiceName = regexp.MustCompile(`^[a-zA-Z0-9\-_.@]+$`)

	ErrInvalidServiceName = errors.New("invalid service name")
)

// ServiceBackend is the OS-specific mechanism used to query and control services.
type ServiceBackend interface {
	Status(ctx context.Context, name string) (models.ServiceState, error)
	Start(ctx context.Context, name string) error
	Stop(ctx context.Context, name string) error
}

// Services queries and controls named OS services. No method returns an error:
// failures are folded into the returned status or outcome text.
type Services struct {
	backend      ServiceBackend
	timeout      time.Duration
	pollInterval time.Duration
}

func NewServices(backend ServiceBackend, timeout time.Duration) *Services {
	return &Services{
		backend:      backend,
		timeout:      timeout,
		pollInterval: defaultPollInterval,
	}
}

func ValidateServiceName(name string) error {
	if len(name) == 0 || len(name) > maxServiceNameLength {
		return fmt.Errorf("%w: length must be 1-%d", ErrInvalidServiceName, maxServiceNameLength)
	}
	if !validServiceName.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidServiceName, name)
	}
	return nil
}

func (s *Services) Status(ctx context.Context, name string) models.ServiceStatus {
	if err := ValidateServiceName(name); err != nil {
		return models.StatusError(err)
	}
	state, err := s.backend.Status(ctx, name)
	if err != nil {
		logger.Log.Warn("Service status query failed", "service", name, "err", err)
		return models.StatusError(err)
	}
	return models.ServiceStatus{State: state}
}

func (s *Services) Start(ctx context.Context, name string) string {
	return s.control(ctx, name, "started", models.StateRunning, s.backend.Start)
}

func (s *Services) Stop(ctx context.Context, name string) string {
	return s.control(ctx, name, "stopped", models.StateStopped, s.backend.Stop)
}

func (s *Services) control(
	ctx context.Context,
	name string,
	verb string,
	want models.ServiceState,
	op func(context.Context, string) error,
) string {
	if err := ValidateServiceName(name); err != nil {
		return "Error: " + err.Error()
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := op(ctx, name); err != nil {
		logger.Log.Error("Service control failed", "service", name, "want", want.String(), "err", err)
		return "Error: " + err.Error()
	}
	if err := s.waitFor(ctx, name, want); err != nil {
		logger.Log.Error("Service did not reach desired state", "service", name, "want", want.String(), "err", err)
		return "Error: " + err.Error()
	}
	logger.Log.Info("Service state changed", "service", name, "state", want.String())
	return fmt.Sprintf("Service %s %s successfully.", name, verb)
}

// waitFor polls the backend until name reports want or ctx expires.
func (s *Services) waitFor(ctx context.Context, name string, want models.ServiceState) error {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	var lastErr error
	for {
		state, err := s.backend.Status(ctx, name)
		if err == nil && state == want {
			return nil
		}
		lastErr = err
		select {
		case <-ctx.Done():
			if lastErr != nil {
				return fmt.Errorf("timed out after %s waiting for %s to reach %s: %w", s.timeout, name, want, lastErr)
			}
			return fmt.Errorf("timed out after %s waiting for %s to reach %s", s.timeout, name, want)
		case <-ticker.C:
		}
	}
}

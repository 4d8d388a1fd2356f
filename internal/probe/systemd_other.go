//go:build !linux

package probe

import (
	"context"
	"errors"

	"github.com/The-Promised-Neverland/hostwatch/internal/models"
)

var errSystemdUnsupported = errors.New("systemd backend is only available on linux")

type SystemdBackend struct{}

func NewSystemdBackend() (*SystemdBackend, error) {
	return nil, errSystemdUnsupported
}

func (b *SystemdBackend) Status(context.Context, string) (models.ServiceState, error) {
	return models.StateUnknown, errSystemdUnsupported
}

func (b *SystemdBackend) Start(context.Context, string) error { return errSystemdUnsupported }

func (b *SystemdBackend) Stop(context.Context, string) error { return errSystemdUnsupported }

func (b *SystemdBackend) Close() {}

//go:build linux

package probe

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/The-Promised-Neverland/hostwatch/internal/models"
	"github.com/coreos/go-systemd/v22/dbus"
)

// SystemdBackend talks to systemd over D-Bus. The connection is opened lazily
// and re-opened after it breaks.
type SystemdBackend struct {
	mu   sync.Mutex
	conn *dbus.Conn
}

func NewSystemdBackend() (*SystemdBackend, error) {
	return &SystemdBackend{}, nil
}

func unitName(name string) string {
	if strings.Contains(name, ".") {
		return name
	}
	return name + ".service"
}

func (b *SystemdBackend) connection(ctx context.Context) (*dbus.Conn, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn != nil && b.conn.Connected() {
		return b.conn, nil
	}
	if b.conn != nil {
		b.conn.Close()
	}
	conn, err := dbus.NewSystemConnectionContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to systemd: %w", err)
	}
	b.conn = conn
	return conn, nil
}

func stringProperty(props map[string]interface{}, key string) string {
	v, _ := props[key].(string)
	return v
}

func (b *SystemdBackend) Status(ctx context.Context, name string) (models.ServiceState, error) {
	conn, err := b.connection(ctx)
	if err != nil {
		return models.StateUnknown, err
	}
	props, err := conn.GetUnitPropertiesContext(ctx, unitName(name))
	if err != nil {
		return models.StateUnknown, fmt.Errorf("get unit properties %s: %w", name, err)
	}
	if stringProperty(props, "LoadState") == "not-found" {
		return models.StateUnknown, fmt.Errorf("service %s not found", name)
	}
	switch stringProperty(props, "ActiveState") {
	case "active", "reloading":
		return models.StateRunning, nil
	case "inactive", "failed":
		return models.StateStopped, nil
	default:
		// activating, deactivating: still in transition.
		return models.StateUnknown, nil
	}
}

func (b *SystemdBackend) Start(ctx context.Context, name string) error {
	return b.job(ctx, name, func(conn *dbus.Conn, ch chan<- string) (int, error) {
		return conn.StartUnitContext(ctx, unitName(name), "replace", ch)
	})
}

func (b *SystemdBackend) Stop(ctx context.Context, name string) error {
	return b.job(ctx, name, func(conn *dbus.Conn, ch chan<- string) (int, error) {
		return conn.StopUnitContext(ctx, unitName(name), "replace", ch)
	})
}

// job enqueues a unit job and waits for systemd to report its result.
func (b *SystemdBackend) job(ctx context.Context, name string, enqueue func(*dbus.Conn, chan<- string) (int, error)) error {
	conn, err := b.connection(ctx)
	if err != nil {
		return err
	}
	ch := make(chan string, 1)
	if _, err := enqueue(conn, ch); err != nil {
		return fmt.Errorf("enqueue job for %s: %w", name, err)
	}
	select {
	case result := <-ch:
		if result != "done" {
			return fmt.Errorf("job for %s finished with result %q", name, result)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *SystemdBackend) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn != nil {
		b.conn.Close()
		b.conn = nil
	}
}

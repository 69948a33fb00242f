//go:build linux

package systemdmanager

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/dbus"
)

// Manager holds one system bus connection.
type Manager struct {
	mu   sync.RWMutex
	conn *dbus.Conn
}

// New connects to the system bus using ctx for the initial handshake.
func New(ctx context.Context) (*Manager, error) {
	conn, err := dbus.NewSystemConnectionContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to systemd: %w", err)
	}
	return &Manager{conn: conn}, nil
}

func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	return nil
}

func (m *Manager) current() (*dbus.Conn, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.conn == nil {
		return nil, fmt.Errorf("systemd connection is closed")
	}
	return m.conn, nil
}

// Status fetches the core state of unit. Missing units are reported with
// LoadState "not-found" rather than an error.
func (m *Manager) Status(ctx context.Context, unit string) (*UnitStatus, error) {
	conn, err := m.current()
	if err != nil {
		return nil, err
	}
	name := UnitName(unit)
	props, err := conn.GetUnitPropertiesContext(ctx, name)
	if err != nil {
		if isNoSuchUnitErr(err) {
			return notFound(name), nil
		}
		return nil, fmt.Errorf("failed to get status for %s: %w", name, err)
	}

	loadState, _ := props["LoadState"].(string)
	if loadState == "not-found" {
		return notFound(name), nil
	}
	active, _ := props["ActiveState"].(string)
	sub, _ := props["SubState"].(string)

	st := &UnitStatus{Name: name, Active: active, SubState: sub, LoadState: loadState}
	if ts, ok := props["StateChangeTimestamp"].(uint64); ok && ts > 0 {
		// microseconds since the Unix epoch
		st.StateChange = time.UnixMicro(int64(ts))
	}
	return st, nil
}

// Restart queues a restart job and waits for it to finish or ctx to end.
func (m *Manager) Restart(ctx context.Context, unit string) error {
	conn, err := m.current()
	if err != nil {
		return err
	}
	name := UnitName(unit)
	done := make(chan string, 1)
	if _, err := conn.RestartUnitContext(ctx, name, "replace", done); err != nil {
		return fmt.Errorf("failed to restart %s: %w", name, err)
	}
	select {
	case res := <-done:
		if res != "done" {
			return fmt.Errorf("restart %s: job %s", name, res)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

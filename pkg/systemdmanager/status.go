package systemdmanager

import (
	"errors"
	"strings"
	"time"
)

var ErrUnsupported = errors.New("systemd is not supported on this platform")

// UnitStatus is the core state of one unit.
type UnitStatus struct {
	Name        string
	Active      string // active, inactive, failed, activating, ...
	SubState    string // running, dead, exited, ...
	LoadState   string // loaded, not-found, ...
	StateChange time.Time
}

func (s UnitStatus) IsActive() bool { return s.Active == "active" }
func (s UnitStatus) IsFailed() bool { return s.Active == "failed" }
func (s UnitStatus) Exists() bool   { return s.LoadState != "not-found" }

// UnitName appends ".service" when name has no unit suffix.
func UnitName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" || strings.Contains(name, ".") {
		return name
	}
	return name + ".service"
}

func notFound(name string) *UnitStatus {
	return &UnitStatus{Name: name, Active: "unknown", SubState: "not-found", LoadState: "not-found"}
}

func isNoSuchUnitErr(err error) bool {
	if err == nil {
		return false
	}
	es := err.Error()
	return strings.Contains(es, "NoSuchUnit") || strings.Contains(es, "not-found")
}

// Package systemdmanager queries and restarts systemd units over D-Bus.
//
// It is only functional on Linux; other platforms get a stub whose
// constructor returns ErrUnsupported.
package systemdmanager

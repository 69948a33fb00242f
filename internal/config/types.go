package config

// Config is the on-disk configuration (JSON or YAML).
//
// Only the logging section is applied on hot reload. Driver, tree, metrics
// and systemd are read once at startup; changing them requires a restart.
type Config struct {
	Logging LoggingConfig `json:"logging"`
	Driver  DriverConfig  `json:"driver"`
	Metrics MetricsConfig `json:"metrics,omitempty"`
	Systemd SystemdConfig `json:"systemd,omitempty"`
	Tree    []NodeConfig  `json:"tree"`
}

// DriverConfig controls the root control loop.
//
// All durations are Go duration strings (e.g. "500ms", "10s").
//
// Defaults (when fields are omitted/zero):
//   - name: "ticktree"
//   - update_rate: 100 ticks/s
//   - interval: "" (the driver itself never fires; it only drives the tree)
//   - stop_timeout: "0s" (wait for the stop pass)
type DriverConfig struct {
	Name        string `json:"name,omitempty"`
	UpdateRate  int    `json:"update_rate,omitempty"`
	Interval    string `json:"interval,omitempty"`
	StopTimeout string `json:"stop_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled    bool   `json:"enabled"`
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty"`
	MaxBackups int    `json:"max_backups,omitempty"`
	MaxAgeDays int    `json:"max_age_days,omitempty"`
	Compress   bool   `json:"compress,omitempty"`
}

// MetricsConfig controls the optional Prometheus endpoint.
//
// Prefer binding to localhost (e.g. "127.0.0.1:9464").
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default: "127.0.0.1:9464"
	Path    string `json:"path,omitempty"` // default: "/metrics"
	Pprof   bool   `json:"pprof,omitempty"`
}

// SystemdConfig appends a systemd notifier as the last top-level node.
// Watchdog overrides the keepalive interval; by default it is half of
// WATCHDOG_USEC, or disabled when systemd did not set one.
type SystemdConfig struct {
	Enabled  bool   `json:"enabled"`
	Watchdog string `json:"watchdog,omitempty"`
}

// Node kinds.
const (
	KindGroup     = "group"
	KindHeartbeat = "heartbeat"
	KindExec      = "exec"
	KindUnit      = "unit"
)

// NodeConfig declares one tree node. Children keep their declared order.
//
// schedule accepts an interval ("250ms", "01:30", "tick") or a cron
// expression ("*/5 * * * *", "@hourly"). Cron nodes are checked every
// check_every (default "1s"). Groups take no schedule.
type NodeConfig struct {
	Name     string `json:"name,omitempty"`
	Kind     string `json:"kind"`
	Schedule string `json:"schedule,omitempty"`

	CheckEvery string `json:"check_every,omitempty"`

	// exec only
	Command []string `json:"command,omitempty"`
	Timeout string   `json:"timeout,omitempty"`

	// unit only: systemd units to check ("nginx" means "nginx.service").
	Units         []string `json:"units,omitempty"`
	RestartFailed bool     `json:"restart_failed,omitempty"`

	// exec and unit: log failures instead of ending the run.
	ContinueOnError bool `json:"continue_on_error,omitempty"`

	Children []NodeConfig `json:"children,omitempty"`
}

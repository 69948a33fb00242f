package config

import (
	"fmt"
	"strings"

	"ticktree/internal/task/scheduler"
)

// Validate checks everything that can be checked without building the tree.
// The config manager runs it before committing a hot reload.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.Driver.UpdateRate < 0 {
		return fmt.Errorf("driver.update_rate must be >= 0")
	}
	if _, err := ParseDurationField("driver.interval", cfg.Driver.Interval); err != nil {
		return err
	}
	if _, err := ParseDurationField("driver.stop_timeout", cfg.Driver.StopTimeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("systemd.watchdog", cfg.Systemd.Watchdog); err != nil {
		return err
	}
	if cfg.Logging.File.MaxSizeMB < 0 || cfg.Logging.File.MaxBackups < 0 || cfg.Logging.File.MaxAgeDays < 0 {
		return fmt.Errorf("logging.file rotation limits must be >= 0")
	}
	for i := range cfg.Tree {
		if err := validateNode(fmt.Sprintf("tree[%d]", i), &cfg.Tree[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateNode(path string, n *NodeConfig) error {
	if n.Name != "" {
		path = path + "(" + n.Name + ")"
	}
	kind := strings.ToLower(strings.TrimSpace(n.Kind))
	switch kind {
	case KindGroup:
		if strings.TrimSpace(n.Schedule) != "" {
			return fmt.Errorf("%s: group nodes take no schedule", path)
		}
	case KindHeartbeat, KindExec, KindUnit:
		if strings.TrimSpace(n.Schedule) == "" {
			return fmt.Errorf("%s: schedule required for kind %q", path, kind)
		}
	default:
		return fmt.Errorf("%s: unknown kind %q (use group, heartbeat, exec or unit)", path, n.Kind)
	}

	if s := strings.TrimSpace(n.Schedule); s != "" {
		if _, err := scheduler.ParseSchedule(s); err != nil {
			return fmt.Errorf("%s.schedule: %w", path, err)
		}
	}
	if _, err := ParseDurationField(path+".check_every", n.CheckEvery); err != nil {
		return err
	}
	if _, err := ParseDurationField(path+".timeout", n.Timeout); err != nil {
		return err
	}
	if kind == KindExec && (len(n.Command) == 0 || strings.TrimSpace(n.Command[0]) == "") {
		return fmt.Errorf("%s: exec nodes need a command", path)
	}
	if kind != KindExec && len(n.Command) > 0 {
		return fmt.Errorf("%s: command is only valid for exec nodes", path)
	}
	if kind == KindUnit && len(n.Units) == 0 {
		return fmt.Errorf("%s: unit nodes need units", path)
	}
	if kind != KindUnit && (len(n.Units) > 0 || n.RestartFailed) {
		return fmt.Errorf("%s: units/restart_failed are only valid for unit nodes", path)
	}
	for i := range n.Children {
		if err := validateNode(fmt.Sprintf("%s.children[%d]", path, i), &n.Children[i]); err != nil {
			return err
		}
	}
	return nil
}

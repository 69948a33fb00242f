package app

import (
	"fmt"
	"strings"
	"time"

	"ticktree/internal/config"
	"ticktree/internal/task/nodes"
	"ticktree/internal/task/scheduler"
	logx "ticktree/pkg/logx"
)

const (
	defaultRootName   = "ticktree"
	defaultCheckEvery = time.Second
)

// BuildTree turns the config into a node tree rooted at the driver's node.
//
// Top-level nodes keep their declared order. When systemd is enabled the
// notifier is appended last so READY=1 follows every sibling's start.
func BuildTree(cfg *config.Config, log logx.Logger) (*scheduler.Node, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	children := make([]*scheduler.Node, 0, len(cfg.Tree)+1)
	for i := range cfg.Tree {
		n, err := buildNode(fmt.Sprintf("tree[%d]", i), &cfg.Tree[i], log)
		if err != nil {
			return nil, err
		}
		children = append(children, n)
	}

	if cfg.Systemd.Enabled {
		n, err := buildSystemd(cfg.Systemd, log)
		if err != nil {
			return nil, err
		}
		children = append(children, n)
	}

	name := strings.TrimSpace(cfg.Driver.Name)
	if name == "" {
		name = defaultRootName
	}
	opts := []scheduler.NodeOption{scheduler.WithChildren(children...)}

	interval, err := config.ParseDurationField("driver.interval", cfg.Driver.Interval)
	if err != nil {
		return nil, err
	}
	if interval > 0 {
		opts = append(opts,
			scheduler.WithInterval(interval),
			scheduler.WithUpdater(nodes.NewHeartbeat(log.With(logx.String("node", name)))),
		)
	}
	return scheduler.NewNode(name, opts...)
}

func buildNode(path string, nc *config.NodeConfig, log logx.Logger) (*scheduler.Node, error) {
	kind := strings.ToLower(strings.TrimSpace(nc.Kind))
	name := strings.TrimSpace(nc.Name)
	if name == "" {
		name = kind
	}
	nlog := log.With(logx.String("node", name))

	children := make([]*scheduler.Node, 0, len(nc.Children))
	for i := range nc.Children {
		c, err := buildNode(fmt.Sprintf("%s.children[%d]", path, i), &nc.Children[i], log)
		if err != nil {
			return nil, err
		}
		children = append(children, c)
	}
	opts := []scheduler.NodeOption{scheduler.WithChildren(children...)}

	var job scheduler.Updater
	switch kind {
	case config.KindGroup:
		return scheduler.NewNode(name, opts...)
	case config.KindHeartbeat:
		job = nodes.NewHeartbeat(nlog)
	case config.KindExec:
		timeout, err := config.ParseDurationField(path+".timeout", nc.Timeout)
		if err != nil {
			return nil, err
		}
		e, err := nodes.NewExec(nc.Command, timeout, nc.ContinueOnError, nlog)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		job = e
	case config.KindUnit:
		u, err := nodes.NewUnitWatch(nc.Units, nc.RestartFailed, nc.ContinueOnError, nlog)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		job = u
	default:
		return nil, fmt.Errorf("%s: unknown kind %q", path, nc.Kind)
	}

	sched, err := scheduler.ParseSchedule(nc.Schedule)
	if err != nil {
		return nil, fmt.Errorf("%s.schedule: %w", path, err)
	}
	switch sched.Kind {
	case scheduler.ScheduleCron:
		every, err := config.ParseDurationOrDefault(path+".check_every", nc.CheckEvery, defaultCheckEvery)
		if err != nil {
			return nil, err
		}
		c, err := nodes.NewCron(sched.Cron, job, nlog)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		nlog.Debug("cron node", logx.String("expr", sched.Expr), logx.Duration("check_every", every))
		opts = append(opts, scheduler.WithInterval(every), scheduler.WithUpdater(c))
	default:
		opts = append(opts, scheduler.WithInterval(sched.Every), scheduler.WithUpdater(job))
	}
	return scheduler.NewNode(name, opts...)
}

func buildSystemd(sc config.SystemdConfig, log logx.Logger) (*scheduler.Node, error) {
	s := nodes.NewSystemd(log.With(logx.String("node", "systemd")))

	every, err := config.ParseDurationField("systemd.watchdog", sc.Watchdog)
	if err != nil {
		return nil, err
	}
	if every <= 0 {
		every, _ = nodes.WatchdogInterval()
	}
	opts := []scheduler.NodeOption{scheduler.WithUpdater(s)}
	if every > 0 {
		opts = append(opts, scheduler.WithInterval(every))
	}
	// Without a watchdog the node only reports READY and STOPPING.
	return scheduler.NewNode("systemd", opts...)
}

package config

import (
	"encoding/json"
	"hash/fnv"
	"reflect"

	logx "ticktree/pkg/logx"
)

// Change summarizes a config reload.
type Change struct {
	// Sections lists changed top-level sections in a stable order.
	Sections []string
	// Fields are safe structured attrs for logging the new values.
	Fields []logx.Field
	// RestartRequired is set when anything other than logging changed.
	RestartRequired bool
}

// SummarizeChange compares two configs section by section.
func SummarizeChange(oldCfg, newCfg *Config) Change {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	var ch Change
	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		ch.Sections = append(ch.Sections, "logging")
		ch.Fields = append(ch.Fields,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}
	if !reflect.DeepEqual(oldCfg.Driver, newCfg.Driver) {
		ch.Sections = append(ch.Sections, "driver")
		ch.Fields = append(ch.Fields,
			logx.String("driver.name", newCfg.Driver.Name),
			logx.Int("driver.update_rate", newCfg.Driver.UpdateRate),
		)
		ch.RestartRequired = true
	}
	if !reflect.DeepEqual(oldCfg.Metrics, newCfg.Metrics) {
		ch.Sections = append(ch.Sections, "metrics")
		ch.Fields = append(ch.Fields, logx.Bool("metrics.enabled", newCfg.Metrics.Enabled))
		ch.RestartRequired = true
	}
	if !reflect.DeepEqual(oldCfg.Systemd, newCfg.Systemd) {
		ch.Sections = append(ch.Sections, "systemd")
		ch.RestartRequired = true
	}
	if hashTree(oldCfg.Tree) != hashTree(newCfg.Tree) {
		ch.Sections = append(ch.Sections, "tree")
		ch.Fields = append(ch.Fields, logx.Int("tree.nodes", countNodes(newCfg.Tree)))
		ch.RestartRequired = true
	}
	return ch
}

func countNodes(nodes []NodeConfig) int {
	n := 0
	for i := range nodes {
		n += 1 + countNodes(nodes[i].Children)
	}
	return n
}

func hashTree(nodes []NodeConfig) uint64 {
	b, err := json.Marshal(nodes)
	if err != nil {
		return 0
	}
	return hashBytes(b)
}

// hashBytes returns a stable 64-bit hash of bytes. Empty input returns 0.
func hashBytes(b []byte) uint64 {
	if len(b) == 0 {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}

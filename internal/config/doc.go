// Package config loads ticktree's JSON/YAML configuration and watches it for
// changes (fsnotify, debounced, validated before publish).
package config

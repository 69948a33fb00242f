// Package nodes provides ready-made Updaters for the scheduler tree:
// a heartbeat logger, a synchronous command runner, a cron-gated job, a
// systemd unit watcher and a systemd notifier.
package nodes

// Package scheduler drives a tree of independently-timed periodic tasks from a
// single fixed-rate control loop.
//
// The package is split in two parts:
//   - Node: a tree element with an optional interval and owned children. Every
//     Poll accumulates elapsed time per node and fires the node's Updater once
//     the interval is reached, then polls every child in declaration order.
//   - Driver: the root loop. It starts the tree, ticks it at most UpdateRate
//     times per second, and guarantees a single Stop on every exit path,
//     including SIGINT/SIGTERM.
//
// Execution is cooperative: one goroutine (the caller of Driver.Run) owns the
// whole traversal. Updaters run synchronously; a slow Updater delays every
// node after it and the next tick. Nothing here preempts or isolates siblings.
//
// Schedule strings used by the config layer ("500ms", "01:30", "*/5 * * * *")
// are parsed by ParseSchedule.
package scheduler

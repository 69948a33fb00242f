package scheduler

import (
	"context"
	"fmt"
	"reflect"
	"slices"
	"time"

	logx "ticktree/pkg/logx"
)

// Node is one element of the update tree.
//
// A node owns its children exclusively; there is no parent pointer. Child
// order is fixed at construction and defines start, stop and poll order.
//
// Timing state (elapsed, lastTick) is only touched by Poll and must only be
// driven from one goroutine.
type Node struct {
	name     string
	interval time.Duration
	timed    bool

	elapsed  time.Duration
	lastTick time.Duration

	children []*Node
	updater  Updater

	log      logx.Logger
	observer UpdateObserver

	// owned is set once the node is attached to a parent or a Driver.
	owned bool
}

type NodeOption func(*Node) error

// WithInterval makes the node fire its Updater once at least d has
// accumulated since it last fired. d == 0 fires on every poll.
func WithInterval(d time.Duration) NodeOption {
	return func(n *Node) error {
		if d < 0 {
			return fmt.Errorf("%w: got %s", ErrInvalidInterval, d)
		}
		n.interval = d
		n.timed = true
		return nil
	}
}

func WithUpdater(u Updater) NodeOption {
	return func(n *Node) error {
		n.updater = u
		return nil
	}
}

// WithChildren appends children in the given order. A node can have only
// one owner: a child that already belongs to another node (or a Driver), or
// that is listed twice, is rejected with ErrNodeOwned.
func WithChildren(children ...*Node) NodeOption {
	return func(n *Node) error {
		for i, c := range children {
			if c == nil {
				return fmt.Errorf("child %d is nil", i)
			}
			if c.owned || slices.Contains(n.children, c) {
				return fmt.Errorf("child %d (%s): %w", i, c.name, ErrNodeOwned)
			}
			n.children = append(n.children, c)
		}
		return nil
	}
}

// NewNode builds a node. An empty name is derived from the Updater's type
// ("Node" for pure containers). Names are for diagnostics only.
func NewNode(name string, opts ...NodeOption) (*Node, error) {
	n := &Node{}
	for _, o := range opts {
		if o == nil {
			continue
		}
		if err := o(n); err != nil {
			return nil, fmt.Errorf("node %q: %w", name, err)
		}
	}
	if n.timed && n.updater == nil {
		return nil, fmt.Errorf("node %q: %w", name, ErrNoUpdater)
	}
	if name == "" {
		name = typeName(n.updater)
	}
	n.name = name
	// Claim children only once construction can no longer fail.
	for _, c := range n.children {
		c.owned = true
	}
	return n, nil
}

// MustNode is NewNode for static trees built in code; it panics on error.
func MustNode(name string, opts ...NodeOption) *Node {
	n, err := NewNode(name, opts...)
	if err != nil {
		panic(err)
	}
	return n
}

func typeName(v any) string {
	if v == nil {
		return "Node"
	}
	t := reflect.TypeOf(v)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() == "" {
		return "Node"
	}
	return t.Name()
}

func (n *Node) Name() string { return n.name }

// Interval returns the configured interval and whether the node is timed.
func (n *Node) Interval() (time.Duration, bool) { return n.interval, n.timed }

// Elapsed returns the time accumulated since the node last fired.
func (n *Node) Elapsed() time.Duration { return n.elapsed }

// Children returns a copy of the child list.
func (n *Node) Children() []*Node { return append([]*Node(nil), n.children...) }

// Updater returns the node's Updater (nil for pure containers).
func (n *Node) Updater() Updater { return n.updater }

// Walk visits n and all descendants in pre-order (declaration order).
func (n *Node) Walk(fn func(depth int, node *Node)) {
	n.walk(0, fn)
}

func (n *Node) walk(depth int, fn func(int, *Node)) {
	fn(depth, n)
	for _, c := range n.children {
		c.walk(depth+1, fn)
	}
}

// Start starts every child in declaration order, each one fully before the
// next, then runs the node's own Starter hook (if any). The first error
// aborts the sequence.
func (n *Node) Start(ctx context.Context) error {
	for _, c := range n.children {
		n.log.Debug("starting child", logx.String("node", n.name), logx.String("child", c.name))
		if err := c.Start(ctx); err != nil {
			return err
		}
	}
	if s, ok := n.updater.(Starter); ok {
		if err := s.Start(ctx); err != nil {
			return &LifecycleError{Node: n.name, Phase: "start", Err: err}
		}
	}
	return nil
}

// Stop runs the node's own Stopper hook (if any), then stops every child in
// declaration order. There is no isolation: the first error aborts the
// remaining sequence.
func (n *Node) Stop(ctx context.Context) error {
	if s, ok := n.updater.(Stopper); ok {
		if err := s.Stop(ctx); err != nil {
			return &LifecycleError{Node: n.name, Phase: "stop", Err: err}
		}
	}
	for _, c := range n.children {
		n.log.Debug("stopping child", logx.String("node", n.name), logx.String("child", c.name))
		if err := c.Stop(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Poll advances the node's clock to now (a monotonic offset from the
// driver's epoch), fires the Updater if the interval has been reached, and
// then polls every child regardless of whether this node fired.
//
// An Updater error is returned immediately as *UpdateError; the elapsed
// accumulator is left untouched and the remaining traversal is skipped.
func (n *Node) Poll(ctx context.Context, now time.Duration) error {
	delta := now - n.lastTick
	if delta < 0 {
		// Clock went backwards (caller bug); keep elapsed monotonic.
		delta = 0
	}
	n.lastTick = now
	n.elapsed += delta

	if n.timed && n.elapsed >= n.interval {
		elapsed := n.elapsed
		began := time.Now()
		err := n.updater.Update(ctx, elapsed)
		if n.observer != nil {
			n.observer.ObserveUpdate(n.name, elapsed, time.Since(began), err)
		}
		if err != nil {
			return &UpdateError{Node: n.name, Err: err}
		}
		n.elapsed = 0
	}

	for _, c := range n.children {
		if err := c.Poll(ctx, now); err != nil {
			return err
		}
	}
	return nil
}

// setup installs the logger and observer on the whole subtree.
func (n *Node) setup(log logx.Logger, obs UpdateObserver) {
	n.Walk(func(_ int, node *Node) {
		node.log = log
		node.observer = obs
	})
}

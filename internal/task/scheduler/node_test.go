package scheduler

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"
)

// recorder is a test Updater that logs lifecycle calls into a shared journal.
type recorder struct {
	name    string
	journal *[]string

	fired    []time.Duration
	startErr error
	stopErr  error
	failOn   int // fail the Nth update (1-based), 0 = never
}

func (r *recorder) Update(_ context.Context, elapsed time.Duration) error {
	r.fired = append(r.fired, elapsed)
	if r.journal != nil {
		*r.journal = append(*r.journal, "update:"+r.name)
	}
	if r.failOn > 0 && len(r.fired) == r.failOn {
		return errors.New("boom")
	}
	return nil
}

func (r *recorder) Start(context.Context) error {
	*r.journal = append(*r.journal, "start:"+r.name)
	return r.startErr
}

func (r *recorder) Stop(context.Context) error {
	*r.journal = append(*r.journal, "stop:"+r.name)
	return r.stopErr
}

func TestPollFiresOnEveryTenthCall(t *testing.T) {
	t.Parallel()
	var journal []string
	rec := &recorder{name: "a", journal: &journal}
	n := MustNode("a", WithInterval(100*time.Millisecond), WithUpdater(rec))

	var firedOn []int
	for call := 1; call <= 35; call++ {
		before := len(rec.fired)
		if err := n.Poll(context.Background(), time.Duration(call)*10*time.Millisecond); err != nil {
			t.Fatalf("poll %d: %v", call, err)
		}
		if len(rec.fired) > before {
			firedOn = append(firedOn, call)
			if n.Elapsed() != 0 {
				t.Fatalf("elapsed after firing = %v, want 0", n.Elapsed())
			}
		}
	}
	if want := []int{10, 20, 30}; !reflect.DeepEqual(firedOn, want) {
		t.Fatalf("fired on calls %v, want %v", firedOn, want)
	}
	for _, e := range rec.fired {
		if e != 100*time.Millisecond {
			t.Fatalf("update elapsed = %v, want 100ms", e)
		}
	}
}

func TestPollFiringCountMatchesFloor(t *testing.T) {
	t.Parallel()
	tests := []struct {
		interval, step, total time.Duration
	}{
		{interval: 500 * time.Millisecond, step: 100 * time.Millisecond, total: 10 * time.Second},
		{interval: 250 * time.Millisecond, step: 30 * time.Millisecond, total: 3 * time.Second},
		{interval: time.Second, step: 70 * time.Millisecond, total: 20 * time.Second},
	}
	for _, tt := range tests {
		rec := &recorder{}
		n := MustNode("", WithInterval(tt.interval), WithUpdater(rec))
		for now := tt.step; now <= tt.total; now += tt.step {
			if err := n.Poll(context.Background(), now); err != nil {
				t.Fatal(err)
			}
		}
		want := int(tt.total / tt.interval)
		if got := len(rec.fired); got < want-1 || got > want+1 {
			t.Fatalf("interval %v step %v: fired %d, want %d±1", tt.interval, tt.step, got, want)
		}
	}
}

func TestPollPassesAccumulatedElapsedWhenLate(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	n := MustNode("late", WithInterval(100*time.Millisecond), WithUpdater(rec))

	_ = n.Poll(context.Background(), 40*time.Millisecond)
	_ = n.Poll(context.Background(), 340*time.Millisecond) // delayed tick

	if len(rec.fired) != 1 || rec.fired[0] != 340*time.Millisecond {
		t.Fatalf("fired = %v, want [340ms]", rec.fired)
	}
}

func TestChildrenPolledRegardlessOfParentFiring(t *testing.T) {
	t.Parallel()
	var journal []string
	parent := &recorder{name: "parent", journal: &journal}
	child := &recorder{name: "child", journal: &journal}
	root := MustNode("root",
		WithInterval(time.Second),
		WithUpdater(parent),
		WithChildren(MustNode("child", WithInterval(0), WithUpdater(child))),
	)

	for i := 1; i <= 5; i++ {
		if err := root.Poll(context.Background(), time.Duration(i)*10*time.Millisecond); err != nil {
			t.Fatal(err)
		}
	}
	if len(parent.fired) != 0 {
		t.Fatalf("parent fired %d times, want 0", len(parent.fired))
	}
	if len(child.fired) != 5 {
		t.Fatalf("child fired %d times, want 5 (interval 0 fires every poll)", len(child.fired))
	}
}

func TestContainerNodeStillPollsChildren(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	root := MustNode("", WithChildren(MustNode("leaf", WithInterval(20*time.Millisecond), WithUpdater(rec))))
	if root.Name() != "Node" {
		t.Fatalf("container name = %q, want Node", root.Name())
	}
	if _, timed := root.Interval(); timed {
		t.Fatal("container should not be timed")
	}
	for i := 1; i <= 4; i++ {
		_ = root.Poll(context.Background(), time.Duration(i)*10*time.Millisecond)
	}
	if len(rec.fired) != 2 {
		t.Fatalf("leaf fired %d times, want 2", len(rec.fired))
	}
}

func TestStartAndStopVisitChildrenInDeclarationOrder(t *testing.T) {
	t.Parallel()
	var journal []string
	a := &recorder{name: "A", journal: &journal}
	b := &recorder{name: "B", journal: &journal}
	self := &recorder{name: "root", journal: &journal}
	root := MustNode("root",
		WithUpdater(self),
		WithChildren(
			MustNode("A", WithUpdater(a)),
			MustNode("B", WithInterval(50*time.Millisecond), WithUpdater(b)),
		),
	)

	if err := root.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if want := []string{"start:A", "start:B", "start:root"}; !reflect.DeepEqual(journal, want) {
		t.Fatalf("start order = %v, want %v", journal, want)
	}

	journal = journal[:0]
	if err := root.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
	if want := []string{"stop:root", "stop:A", "stop:B"}; !reflect.DeepEqual(journal, want) {
		t.Fatalf("stop order = %v, want %v", journal, want)
	}
}

func TestStopFailureAbortsRemainingSiblings(t *testing.T) {
	t.Parallel()
	var journal []string
	a := &recorder{name: "A", journal: &journal, stopErr: errors.New("port busy")}
	b := &recorder{name: "B", journal: &journal}
	root := MustNode("root", WithChildren(MustNode("A", WithUpdater(a)), MustNode("B", WithUpdater(b))))

	err := root.Stop(context.Background())
	var le *LifecycleError
	if !errors.As(err, &le) || le.Node != "A" || le.Phase != "stop" {
		t.Fatalf("err = %v, want stop LifecycleError for A", err)
	}
	if want := []string{"stop:A"}; !reflect.DeepEqual(journal, want) {
		t.Fatalf("journal = %v, want %v", journal, want)
	}
}

func TestUpdateErrorAbortsTraversal(t *testing.T) {
	t.Parallel()
	var journal []string
	a := &recorder{name: "A", journal: &journal, failOn: 1}
	b := &recorder{name: "B", journal: &journal}
	root := MustNode("root", WithChildren(
		MustNode("A", WithInterval(0), WithUpdater(a)),
		MustNode("B", WithInterval(0), WithUpdater(b)),
	))

	err := root.Poll(context.Background(), time.Millisecond)
	var ue *UpdateError
	if !errors.As(err, &ue) || ue.Node != "A" {
		t.Fatalf("err = %v, want UpdateError for A", err)
	}
	if len(b.fired) != 0 {
		t.Fatal("sibling after the failing node must not be polled")
	}
	if got := root.Children()[0].Elapsed(); got != time.Millisecond {
		t.Fatalf("failing node elapsed = %v, want it kept at 1ms", got)
	}
}

func TestNewNodeValidation(t *testing.T) {
	t.Parallel()
	if _, err := NewNode("neg", WithInterval(-time.Second), WithUpdater(&recorder{})); !errors.Is(err, ErrInvalidInterval) {
		t.Fatalf("negative interval err = %v, want ErrInvalidInterval", err)
	}
	if _, err := NewNode("bare", WithInterval(time.Second)); !errors.Is(err, ErrNoUpdater) {
		t.Fatalf("interval without updater err = %v, want ErrNoUpdater", err)
	}
	if _, err := NewNode("nil-child", WithChildren(nil)); err == nil {
		t.Fatal("expected error for nil child")
	}
}

func TestDefaultNameFromUpdaterType(t *testing.T) {
	t.Parallel()
	if got := MustNode("", WithUpdater(&recorder{})).Name(); got != "recorder" {
		t.Fatalf("name = %q, want recorder", got)
	}
	fn := UpdateFunc(func(context.Context, time.Duration) error { return nil })
	if got := MustNode("", WithUpdater(fn)).Name(); got != "UpdateFunc" {
		t.Fatalf("name = %q, want UpdateFunc", got)
	}
}

func TestWalkIsPreOrder(t *testing.T) {
	t.Parallel()
	root := MustNode("root", WithChildren(
		MustNode("a", WithChildren(MustNode("a1"))),
		MustNode("b"),
	))
	var got []string
	root.Walk(func(depth int, n *Node) {
		got = append(got, n.Name())
		if n.Name() == "a1" && depth != 2 {
			t.Fatalf("a1 depth = %d, want 2", depth)
		}
	})
	if want := []string{"root", "a", "a1", "b"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("walk = %v, want %v", got, want)
	}
}

func TestChildHasOneOwner(t *testing.T) {
	t.Parallel()
	var journal []string
	r := &recorder{name: "leaf", journal: &journal}
	leaf := MustNode("leaf", WithInterval(0), WithUpdater(r))
	root := MustNode("root", WithChildren(leaf))

	if _, err := NewNode("g", WithChildren(leaf)); !errors.Is(err, ErrNodeOwned) {
		t.Fatalf("second parent err = %v, want ErrNodeOwned", err)
	}
	if _, err := NewNode("dup", WithChildren(MustNode("x"), root.Children()[0])); !errors.Is(err, ErrNodeOwned) {
		t.Fatalf("owned child err = %v, want ErrNodeOwned", err)
	}
	free := MustNode("free")
	if _, err := NewNode("twice", WithChildren(free, free)); !errors.Is(err, ErrNodeOwned) {
		t.Fatalf("duplicate child err = %v, want ErrNodeOwned", err)
	}

	ctx := context.Background()
	if err := root.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := root.Poll(ctx, 10*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if err := root.Stop(ctx); err != nil {
		t.Fatal(err)
	}
	want := []string{"start:leaf", "update:leaf", "stop:leaf"}
	if !reflect.DeepEqual(journal, want) {
		t.Fatalf("journal = %v, want %v", journal, want)
	}
}

func TestFailedConstructionLeavesChildrenFree(t *testing.T) {
	t.Parallel()
	child := MustNode("child")
	if _, err := NewNode("bad", WithChildren(child), WithInterval(time.Second)); !errors.Is(err, ErrNoUpdater) {
		t.Fatalf("err = %v, want ErrNoUpdater", err)
	}
	if _, err := NewNode("good", WithChildren(child)); err != nil {
		t.Fatalf("child should still be attachable: %v", err)
	}
}

package command

import (
	"testing"

	"github.com/anvil-platform/simnode/internal/errs"
	"github.com/anvil-platform/simnode/internal/module"
)

func TestEnqueueDrainFIFOOrder(t *testing.T) {
	q := NewQueue("c1", 10)
	for _, name := range []string{"a", "b", "c"} {
		if err := q.Enqueue(module.Command{Name: name}); err != nil {
			t.Fatalf("enqueue %s: %v", name, err)
		}
	}
	drained := q.Drain(10)
	if len(drained) != 3 {
		t.Fatalf("expected 3 commands drained, got %d", len(drained))
	}
	for i, want := range []string{"a", "b", "c"} {
		if drained[i].Name != want {
			t.Fatalf("expected FIFO order, position %d expected %s got %s", i, want, drained[i].Name)
		}
	}
	if q.Len() != 0 {
		t.Fatalf("expected queue empty after full drain")
	}
}

func TestDrainRespectsMaxPerTick(t *testing.T) {
	q := NewQueue("c1", 10)
	for i := 0; i < 5; i++ {
		if err := q.Enqueue(module.Command{Name: "x"}); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}
	first := q.Drain(2)
	if len(first) != 2 {
		t.Fatalf("expected 2 drained, got %d", len(first))
	}
	if q.Len() != 3 {
		t.Fatalf("expected 3 remaining, got %d", q.Len())
	}
}

func TestEnqueueOverflow(t *testing.T) {
	q := NewQueue("c1", 2)
	if err := q.Enqueue(module.Command{Name: "a"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := q.Enqueue(module.Command{Name: "b"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	err := q.Enqueue(module.Command{Name: "c"})
	if err == nil || !errs.Is(err, errs.Overflow) {
		t.Fatalf("expected Overflow, got %v", err)
	}
}

func TestDrainOnEmptyQueueReturnsNil(t *testing.T) {
	q := NewQueue("c1", 2)
	drained := q.Drain(5)
	if len(drained) != 0 {
		t.Fatalf("expected no commands drained from empty queue, got %d", len(drained))
	}
}

package logicunit

import (
	"errors"
	"testing"
)

type countingUnit struct {
	ticks   []uint64
	failAll bool
}

func (u *countingUnit) OnTick(tick uint64) error {
	u.ticks = append(u.ticks, tick)
	if u.failAll {
		return errors.New("boom")
	}
	return nil
}

func TestLazyInstantiationOnFirstTick(t *testing.T) {
	var created int
	m := NewManager("c1", 0)
	m.RegisterFactory("ai", func(matchID string) Unit {
		created++
		return &countingUnit{}
	})

	if m.Exists("ai", "m1") {
		t.Fatalf("should not exist before first onTick")
	}
	m.OnTick("m1", []string{"ai"}, 1, nil)
	if !m.Exists("ai", "m1") {
		t.Fatalf("expected instance after first onTick")
	}
	m.OnTick("m1", []string{"ai"}, 2, nil)
	if created != 1 {
		t.Fatalf("expected factory invoked once, got %d", created)
	}
}

func TestErrorsAreIsolatedAndLogged(t *testing.T) {
	m := NewManager("c1", 0)
	var logged []string
	m.RegisterFactory("bad", func(matchID string) Unit { return &countingUnit{failAll: true} })
	m.RegisterFactory("good", func(matchID string) Unit { return &countingUnit{} })

	m.OnTick("m1", []string{"bad", "good"}, 1, func(unitName string, err error) {
		logged = append(logged, unitName)
	})
	if len(logged) != 1 || logged[0] != "bad" {
		t.Fatalf("expected only the failing unit logged, got %v", logged)
	}
}

func TestPoisonedAfterConsecutiveErrorCeiling(t *testing.T) {
	m := NewManager("c1", 2)
	m.RegisterFactory("bad", func(matchID string) Unit { return &countingUnit{failAll: true} })

	m.OnTick("m1", []string{"bad"}, 1, nil)
	if m.Poisoned("bad", "m1") {
		t.Fatalf("should not be poisoned after 1 error with ceiling 2")
	}
	m.OnTick("m1", []string{"bad"}, 2, nil)
	if !m.Poisoned("bad", "m1") {
		t.Fatalf("expected poisoned after 2 consecutive errors")
	}
}

func TestUnlimitedCeilingNeverPoisons(t *testing.T) {
	m := NewManager("c1", 0)
	m.RegisterFactory("bad", func(matchID string) Unit { return &countingUnit{failAll: true} })
	for tick := uint64(1); tick <= 50; tick++ {
		m.OnTick("m1", []string{"bad"}, tick, nil)
	}
	if m.Poisoned("bad", "m1") {
		t.Fatalf("ceiling 0 must never poison")
	}
}

func TestInvalidateMatchDropsOnlyThatMatch(t *testing.T) {
	m := NewManager("c1", 0)
	m.RegisterFactory("ai", func(matchID string) Unit { return &countingUnit{} })
	m.OnTick("m1", []string{"ai"}, 1, nil)
	m.OnTick("m2", []string{"ai"}, 1, nil)

	m.InvalidateMatch("m1")
	if m.Exists("ai", "m1") {
		t.Fatalf("expected m1 instance dropped")
	}
	if !m.Exists("ai", "m2") {
		t.Fatalf("expected m2 instance preserved")
	}
}

func TestInvalidateAllDropsEverything(t *testing.T) {
	m := NewManager("c1", 0)
	m.RegisterFactory("ai", func(matchID string) Unit { return &countingUnit{} })
	m.OnTick("m1", []string{"ai"}, 1, nil)
	m.InvalidateAll()
	if m.Exists("ai", "m1") {
		t.Fatalf("expected all instances dropped")
	}
}

func TestInvalidateUnitDropsOnlyThatUnit(t *testing.T) {
	m := NewManager("c1", 0)
	m.RegisterFactory("ai", func(matchID string) Unit { return &countingUnit{} })
	m.RegisterFactory("physics-ai", func(matchID string) Unit { return &countingUnit{} })
	m.OnTick("m1", []string{"ai", "physics-ai"}, 1, nil)

	m.InvalidateUnit("ai", "m1")
	if m.Exists("ai", "m1") {
		t.Fatalf("expected ai instance dropped")
	}
	if !m.Exists("physics-ai", "m1") {
		t.Fatalf("expected physics-ai instance preserved")
	}
}

func TestUnknownFactoryLogsAndContinues(t *testing.T) {
	m := NewManager("c1", 0)
	var logged []string
	m.OnTick("m1", []string{"missing"}, 1, func(unitName string, err error) {
		logged = append(logged, unitName)
	})
	if len(logged) != 1 || logged[0] != "missing" {
		t.Fatalf("expected missing factory logged, got %v", logged)
	}
}

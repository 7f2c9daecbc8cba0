package player

import (
	"testing"

	"github.com/anvil-platform/simnode/internal/errs"
)

func TestCreateDuplicatePlayerConflicts(t *testing.T) {
	r := NewRegistry()
	if err := r.Create("p1"); err != nil {
		t.Fatalf("create: %v", err)
	}
	err := r.Create("p1")
	if err == nil || !errs.Is(err, errs.Conflict) {
		t.Fatalf("expected Conflict, got %v", err)
	}
}

func TestDeleteUnknownPlayerNotFound(t *testing.T) {
	r := NewRegistry()
	err := r.Delete("ghost")
	if err == nil || !errs.Is(err, errs.NotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestDeleteThenExists(t *testing.T) {
	r := NewRegistry()
	if err := r.Create("p1"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := r.Delete("p1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if r.Exists("p1") {
		t.Fatalf("expected player gone")
	}
}

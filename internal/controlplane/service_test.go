package controlplane

import (
	"context"
	"testing"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/anvil-platform/simnode/internal/container"
)

func newTestServer(t *testing.T) (*Server, *container.Manager) {
	t.Helper()
	mgr := container.NewManager(container.ManagerConfig{MaxEntities: 8, MaxComponents: 8})
	return NewServer(mgr), mgr
}

func TestCreateMatchProvisionsContainer(t *testing.T) {
	s, mgr := newTestServer(t)
	req, err := structpb.NewStruct(map[string]any{
		"matchId":     "m1",
		"moduleNames": []any{},
	})
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	resp, err := s.CreateMatch(context.Background(), req)
	if err != nil {
		t.Fatalf("createMatch: %v", err)
	}
	containerID := resp.Fields["containerId"].GetStringValue()
	c, err := mgr.Get(containerID)
	if err != nil {
		t.Fatalf("expected provisioned container: %v", err)
	}
	if !c.Matches.Exists("m1") {
		t.Fatalf("expected match m1 to exist")
	}
}

func TestDeleteMatchRemovesMatch(t *testing.T) {
	s, mgr := newTestServer(t)
	c, err := mgr.Create("c1", nil)
	if err != nil {
		t.Fatalf("create container: %v", err)
	}
	if err := c.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := c.Matches.Create(matchLocator("m1", nil), func(string) bool { return true }); err != nil {
		t.Fatalf("create match: %v", err)
	}

	req, err := structpb.NewStruct(map[string]any{"containerId": c.ID, "matchId": "m1"})
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if _, err := s.DeleteMatch(context.Background(), req); err != nil {
		t.Fatalf("deleteMatch: %v", err)
	}
	if c.Matches.Exists("m1") {
		t.Fatalf("expected match deleted")
	}
}

func TestFinishMatchRequiresExistingMatch(t *testing.T) {
	s, mgr := newTestServer(t)
	c, err := mgr.Create("c1", nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	req, err := structpb.NewStruct(map[string]any{"containerId": c.ID, "matchId": "ghost"})
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if _, err := s.FinishMatch(context.Background(), req); err == nil {
		t.Fatalf("expected error for unknown match")
	}
}

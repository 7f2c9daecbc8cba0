// Package resource implements ResourceStore (spec.md §4, §6): per-container
// binary blobs identified by a server-assigned id, optionally persisted
// under <root>/resources/<containerId>/<resourceId>.
package resource

import (
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/anvil-platform/simnode/internal/errs"
)

// Resource is {resourceId, name, type, blob} (spec.md §3).
type Resource struct {
	ResourceID string
	Name       string
	Type       string
	Blob       []byte
}

// Store holds resources for one container, optionally persisting each
// upload to disk.
type Store struct {
	mu          sync.RWMutex
	containerID string
	root        string // "" disables persistence
	resources   map[string]Resource
}

// NewStore creates a resource store for containerID. If root is
// non-empty, every upload is mirrored under
// <root>/resources/<containerID>/<resourceId>; the directory is created
// on first write and a missing blob file is tolerated on delete, per
// spec.md §6's persisted-state-layout contract.
func NewStore(containerID, root string) *Store {
	return &Store{containerID: containerID, root: root, resources: make(map[string]Resource)}
}

func (s *Store) dir() string {
	return filepath.Join(s.root, "resources", s.containerID)
}

// Upload stores blob under a freshly assigned resource id.
func (s *Store) Upload(name, resourceType string, blob []byte) (string, error) {
	id := uuid.NewString()
	res := Resource{ResourceID: id, Name: name, Type: resourceType, Blob: blob}

	if s.root != "" {
		if err := os.MkdirAll(s.dir(), 0o755); err != nil {
			return "", errs.Wrap(errs.Internal, "resource store: creating directory", err)
		}
		if err := os.WriteFile(filepath.Join(s.dir(), id), blob, 0o644); err != nil {
			return "", errs.Wrap(errs.Internal, "resource store: writing blob", err)
		}
	}

	s.mu.Lock()
	s.resources[id] = res
	s.mu.Unlock()
	return id, nil
}

// Download returns the resource by id.
func (s *Store) Download(id string) (Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res, ok := s.resources[id]
	if !ok {
		return Resource{}, errs.Newf(errs.NotFound, "resource store: resource %q not found", id)
	}
	return res, nil
}

// List returns every resource, sorted by id.
func (s *Store) List() []Resource {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Resource, 0, len(s.resources))
	for _, r := range s.resources {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ResourceID < out[j].ResourceID })
	return out
}

// Delete removes a resource, including its on-disk copy if persistence is
// enabled.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.resources[id]; !ok {
		return errs.Newf(errs.NotFound, "resource store: resource %q not found", id)
	}
	delete(s.resources, id)
	if s.root != "" {
		if err := os.Remove(filepath.Join(s.dir(), id)); err != nil && !os.IsNotExist(err) {
			return errs.Wrap(errs.Internal, "resource store: removing blob", err)
		}
	}
	return nil
}

// Package ecs implements the component store: a fixed-capacity, columnar
// store of 32-bit float attributes keyed by (entity, component).
//
// Grounded on the teacher's examples/booklet-bindery-sample physics engine,
// which keeps per-world entity state behind a single mutex and advances it
// one tick at a time; here the per-entity map is replaced by a dense
// row/column slab per spec.md §3/§4.1.
package ecs

import (
	"math"
	"sync"

	"github.com/anvil-platform/simnode/internal/errs"
)

// Sentinel is the "absent" value for every stored cell.
var Sentinel = float32(math.NaN())

// ComponentID identifies a component globally within a container.
type ComponentID uint64

// EntityID identifies an entity, unique within the ComponentStore that
// allocated it.
type EntityID uint64

// Store is a fixed-capacity two-dimensional slab indexed by
// (row, internal-component-index). Row capacity is maxEntities; column
// capacity is maxComponents.
type Store struct {
	mu sync.RWMutex

	maxEntities   int
	maxComponents int

	slab []float32 // flat, row-major: slab[row*maxComponents+col]

	entityToRow map[EntityID]int32
	rowToEntity []EntityID // -1 sentinel (math.MaxUint64) marks an unallocated/free row
	freeRows    []int32    // FIFO of reclaimed rows
	nextFresh   int32      // next never-allocated row

	componentToCol map[ComponentID]int32
	nextCol        int32
}

const freeRowSentinel = EntityID(math.MaxUint64)

// NewStore allocates a store with the given row/column capacity.
func NewStore(maxEntities, maxComponents int) *Store {
	s := &Store{
		maxEntities:    maxEntities,
		maxComponents:  maxComponents,
		componentToCol: make(map[ComponentID]int32),
		entityToRow:    make(map[EntityID]int32),
	}
	s.resetLocked()
	return s
}

func (s *Store) resetLocked() {
	s.slab = make([]float32, s.maxEntities*s.maxComponents)
	for i := range s.slab {
		s.slab[i] = Sentinel
	}
	s.entityToRow = make(map[EntityID]int32, s.maxEntities)
	s.rowToEntity = make([]EntityID, s.maxEntities)
	for i := range s.rowToEntity {
		s.rowToEntity[i] = freeRowSentinel
	}
	s.freeRows = s.freeRows[:0]
	s.nextFresh = 0
	s.componentToCol = make(map[ComponentID]int32)
	s.nextCol = 0
}

// Reset clears all state. It is a write operation and invalidates any
// column indices a caller may have cached.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
}

// ReclaimedRows reports how many rows are currently on the free queue,
// available for diagnostics (spec.md S4: "store reports reclaimed row
// count").
func (s *Store) ReclaimedRows() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.freeRows)
}

// RowsInUse reports the number of live entities.
func (s *Store) RowsInUse() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entityToRow)
}

func (s *Store) allocateRowLocked() (int32, error) {
	if n := len(s.freeRows); n > 0 {
		row := s.freeRows[0]
		s.freeRows = s.freeRows[1:]
		return row, nil
	}
	if int(s.nextFresh) < s.maxEntities {
		row := s.nextFresh
		s.nextFresh++
		return row, nil
	}
	return 0, errs.New(errs.OutOfMemory, "component store: no free row available")
}

func (s *Store) columnForLocked(cid ComponentID) (int32, error) {
	if col, ok := s.componentToCol[cid]; ok {
		return col, nil
	}
	if int(s.nextCol) >= s.maxComponents {
		return 0, errs.New(errs.Overflow, "component store: component capacity exhausted")
	}
	col := s.nextCol
	s.nextCol++
	s.componentToCol[cid] = col
	return col, nil
}

// columnLookupLocked returns the column for cid without allocating one.
func (s *Store) columnLookupLocked(cid ComponentID) (int32, bool) {
	col, ok := s.componentToCol[cid]
	return col, ok
}

// CreateEntity allocates a row for id. It fails with OutOfMemory when every
// row is in use and none is reclaimable.
func (s *Store) CreateEntity(id EntityID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entityToRow[id]; exists {
		return errs.Newf(errs.Conflict, "component store: entity %d already exists", id)
	}
	return s.createEntityLocked(id)
}

func (s *Store) createEntityLocked(id EntityID) error {
	row, err := s.allocateRowLocked()
	if err != nil {
		return err
	}
	s.entityToRow[id] = row
	s.rowToEntity[row] = id
	return nil
}

// DeleteEntity releases id's row. Idempotent: deleting an unknown id is a
// no-op.
func (s *Store) DeleteEntity(id EntityID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.entityToRow[id]
	if !ok {
		return nil
	}
	s.clearRowLocked(row)
	delete(s.entityToRow, id)
	s.rowToEntity[row] = freeRowSentinel
	s.freeRows = append(s.freeRows, row)
	return nil
}

func (s *Store) clearRowLocked(row int32) {
	base := int(row) * s.maxComponents
	for i := 0; i < s.maxComponents; i++ {
		s.slab[base+i] = Sentinel
	}
}

// Attach writes v at (id, cid), creating the entity lazily if absent and
// allocating an internal column index for cid on first use.
func (s *Store) Attach(id EntityID, cid ComponentID, v float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.entityToRow[id]
	if !ok {
		if err := s.createEntityLocked(id); err != nil {
			return err
		}
		row = s.entityToRow[id]
	}
	col, err := s.columnForLocked(cid)
	if err != nil {
		return err
	}
	s.slab[int(row)*s.maxComponents+int(col)] = v
	return nil
}

// AttachMany writes multiple (cid, value) pairs for id in a single critical
// section.
func (s *Store) AttachMany(id EntityID, cids []ComponentID, vals []float32) error {
	if len(cids) != len(vals) {
		return errs.New(errs.InvalidArgument, "component store: cids and vals length mismatch")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.entityToRow[id]
	if !ok {
		if err := s.createEntityLocked(id); err != nil {
			return err
		}
		row = s.entityToRow[id]
	}
	for i, cid := range cids {
		col, err := s.columnForLocked(cid)
		if err != nil {
			return err
		}
		s.slab[int(row)*s.maxComponents+int(col)] = vals[i]
	}
	return nil
}

// Remove writes the NaN sentinel to (id, cid). Tolerates a missing entity
// or component.
func (s *Store) Remove(id EntityID, cid ComponentID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.entityToRow[id]
	if !ok {
		return nil
	}
	col, ok := s.componentToCol[cid]
	if !ok {
		return nil
	}
	s.slab[int(row)*s.maxComponents+int(col)] = Sentinel
	return nil
}

// Get returns the value at (id, cid), or the NaN sentinel if either is
// absent.
func (s *Store) Get(id EntityID, cid ComponentID) float32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getLocked(id, cid)
}

func (s *Store) getLocked(id EntityID, cid ComponentID) float32 {
	row, ok := s.entityToRow[id]
	if !ok {
		return Sentinel
	}
	col, ok := s.componentToCol[cid]
	if !ok {
		return Sentinel
	}
	return s.slab[int(row)*s.maxComponents+int(col)]
}

// GetMany reads len(cids) values into outBuf. outBuf must be the same
// length as cids, else InvalidArgument. If id does not exist, outBuf is
// left untouched (documented open question in spec.md §9).
func (s *Store) GetMany(id EntityID, cids []ComponentID, outBuf []float32) error {
	if len(outBuf) != len(cids) {
		return errs.New(errs.InvalidArgument, "component store: outBuf and cids length mismatch")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.entityToRow[id]; !ok {
		return nil
	}
	for i, cid := range cids {
		outBuf[i] = s.getLocked(id, cid)
	}
	return nil
}

// Has reports whether id exists and holds a non-NaN value for cid.
func (s *Store) Has(id EntityID, cid ComponentID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !isNaN32(s.getLocked(id, cid))
}

// QueryAll returns the set of entities holding a non-NaN value for every
// cid given. An unregistered component yields an empty result.
func (s *Store) QueryAll(cids ...ComponentID) map[EntityID]struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[EntityID]struct{})
	if len(cids) == 0 {
		return result
	}

	cols := make([]int32, len(cids))
	for i, cid := range cids {
		col, ok := s.columnLookupLocked(cid)
		if !ok {
			return result
		}
		cols[i] = col
	}

	for id, row := range s.entityToRow {
		base := int(row) * s.maxComponents
		match := true
		for _, col := range cols {
			if isNaN32(s.slab[base+int(col)]) {
				match = false
				break
			}
		}
		if match {
			result[id] = struct{}{}
		}
	}
	return result
}

func isNaN32(f float32) bool {
	return f != f
}

package property

import (
	"context"
	"errors"
	"math/big"
	"sort"
	"sync"
)

// ErrDirectoryUnavailable reports that the directory could not answer a lookup.
var ErrDirectoryUnavailable = errors.New("property: directory unavailable")

// Land is the read-only view of a directory entry consulted at escrow creation.
type Land struct {
	ID      uint64
	Owner   [20]byte
	Price   *big.Int
	ForSale bool
}

// Clone returns a deep copy of the land record.
func (l Land) Clone() Land {
	out := l
	if l.Price != nil {
		out.Price = new(big.Int).Set(l.Price)
	}
	return out
}

// Directory answers existence, ownership and price queries for land ids. A
// false second return means the land does not exist.
type Directory interface {
	Land(ctx context.Context, id uint64) (Land, bool, error)
}

// Static is an in-memory directory. It is safe for concurrent use.
type Static struct {
	mu    sync.RWMutex
	lands map[uint64]Land
}

// NewStatic returns a directory seeded with the supplied lands.
func NewStatic(lands ...Land) *Static {
	s := &Static{lands: make(map[uint64]Land, len(lands))}
	for _, land := range lands {
		s.lands[land.ID] = land.Clone()
	}
	return s
}

// Put inserts or replaces a land entry.
func (s *Static) Put(land Land) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lands[land.ID] = land.Clone()
}

// Land implements Directory.
func (s *Static) Land(ctx context.Context, id uint64) (Land, bool, error) {
	if err := ctx.Err(); err != nil {
		return Land{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	land, ok := s.lands[id]
	if !ok {
		return Land{}, false, nil
	}
	return land.Clone(), true, nil
}

// IDs returns the known land ids in ascending order.
func (s *Static) IDs() []uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]uint64, 0, len(s.lands))
	for id := range s.lands {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

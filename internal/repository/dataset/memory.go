package dataset

import (
	"context"
	"strconv"
	"sync"
)

// MemoryStore keeps datasets in process. It honours version checks the same
// way the remote backends do.
type MemoryStore struct {
	mu      sync.Mutex
	tables  map[string]Table
	counter int
}

// NewMemoryStore builds an empty store seeded with the given tables.
func NewMemoryStore(seed ...Table) *MemoryStore {
	s := &MemoryStore{tables: make(map[string]Table)}
	for _, t := range seed {
		s.put(t)
	}
	return s
}

// Load returns a copy of the named dataset.
func (s *MemoryStore) Load(_ context.Context, name string) (Table, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tables[name]
	if !ok {
		return Table{Name: name}, nil
	}
	return t.Clone(), nil
}

// Save replaces the dataset when the caller's version matches.
func (s *MemoryStore) Save(_ context.Context, table Table, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if current, ok := s.tables[table.Name]; ok && current.Version != table.Version {
		return ErrVersionConflict
	}
	s.put(table)
	return nil
}

func (s *MemoryStore) put(t Table) {
	s.counter++
	stored := t.Clone()
	stored.Version = strconv.Itoa(s.counter)
	s.tables[t.Name] = stored
}

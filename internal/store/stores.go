package store

import (
	"sync"

	"github.com/Borislavv/go-tier-cache/config"
)

// Stores owns one Store per configured tier. Loading a dump snapshot may
// surface stores for tiers that no longer exist; lifecycle activation
// drops those through Drop.
type Stores struct {
	mu     sync.RWMutex
	byName map[string]*Store
	order  []string
}

func NewStores(cfg *config.Cache) *Stores {
	s := &Stores{byName: make(map[string]*Store, len(cfg.Tiers))}
	for _, t := range cfg.Tiers {
		s.byName[t.Name] = NewStore(t.Name)
		s.order = append(s.order, t.Name)
	}
	return s
}

// Get returns the named tier store.
func (s *Stores) Get(name string) (*Store, bool) {
	s.mu.RLock()
	st, ok := s.byName[name]
	s.mu.RUnlock()
	return st, ok
}

// Ensure returns the named store, creating it if absent. Used when a
// dump snapshot carries a tier the running config doesn't know.
func (s *Stores) Ensure(name string) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.byName[name]; ok {
		return st
	}
	st := NewStore(name)
	s.byName[name] = st
	s.order = append(s.order, name)
	return st
}

// Names returns store names in creation order.
func (s *Stores) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.order...)
}

// Drop removes a named store entirely.
func (s *Stores) Drop(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byName[name]; !ok {
		return false
	}
	delete(s.byName, name)
	for i, n := range s.order {
		if n == name {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

// ClearAll empties every store without dropping it.
func (s *Stores) ClearAll() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, st := range s.byName {
		st.Clear()
	}
}

// Len is the total entry count across stores.
func (s *Stores) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int
	for _, st := range s.byName {
		n += st.Len()
	}
	return n
}

// Mem is the total payload size across stores.
func (s *Stores) Mem() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, st := range s.byName {
		n += st.Mem()
	}
	return n
}

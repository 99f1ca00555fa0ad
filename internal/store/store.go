package store

import (
	"sync"
	"sync/atomic"

	"github.com/zeebo/xxh3"
)

const shardCount = 16 // power of two, xxh3-striped

type shard struct {
	mu    sync.RWMutex
	items map[string]*Entry
}

// Store is one named tier's key->entry mapping. Keys are normalized
// request URLs. Reads touch the entry's access stamp; freshness is left
// to callers. Mutation is atomic from the caller's perspective.
type Store struct {
	name   string
	seq    atomic.Uint64
	shards [shardCount]*shard
	mem    atomic.Int64
}

func NewStore(name string) *Store {
	s := &Store{name: name}
	for i := range s.shards {
		s.shards[i] = &shard{items: make(map[string]*Entry)}
	}
	return s
}

func (s *Store) Name() string { return s.name }

func (s *Store) shardFor(key string) *shard {
	return s.shards[xxh3.HashString(key)&(shardCount-1)]
}

// Get returns the entry and renews its access stamp.
func (s *Store) Get(key string) (*Entry, bool) {
	sh := s.shardFor(key)
	sh.mu.RLock()
	e, ok := sh.items[key]
	sh.mu.RUnlock()
	if !ok {
		return nil, false
	}
	e.Touch()
	return e, true
}

// Peek returns the entry without touching it. Eviction scans and
// fallback reads use it so they don't distort the LRU ordering.
func (s *Store) Peek(key string) (*Entry, bool) {
	sh := s.shardFor(key)
	sh.mu.RLock()
	e, ok := sh.items[key]
	sh.mu.RUnlock()
	return e, ok
}

// Put stores the entry under its key, assigning the write sequence.
func (s *Store) Put(e *Entry) {
	e.seq = s.seq.Add(1)
	sh := s.shardFor(e.key)
	sh.mu.Lock()
	old := sh.items[e.key]
	sh.items[e.key] = e
	sh.mu.Unlock()

	s.mem.Add(e.Weight())
	if old != nil {
		s.mem.Add(-old.Weight())
	}
}

// Delete removes the entry. Reports whether it existed.
func (s *Store) Delete(key string) bool {
	sh := s.shardFor(key)
	sh.mu.Lock()
	e, ok := sh.items[key]
	if ok {
		delete(sh.items, key)
	}
	sh.mu.Unlock()

	if ok {
		s.mem.Add(-e.Weight())
	}
	return ok
}

// Keys lists every stored key.
func (s *Store) Keys() []string {
	keys := make([]string, 0, s.Len())
	for _, sh := range s.shards {
		sh.mu.RLock()
		for k := range sh.items {
			keys = append(keys, k)
		}
		sh.mu.RUnlock()
	}
	return keys
}

// Entries snapshots every stored entry.
func (s *Store) Entries() []*Entry {
	entries := make([]*Entry, 0, s.Len())
	for _, sh := range s.shards {
		sh.mu.RLock()
		for _, e := range sh.items {
			entries = append(entries, e)
		}
		sh.mu.RUnlock()
	}
	return entries
}

func (s *Store) Len() int {
	var n int
	for _, sh := range s.shards {
		sh.mu.RLock()
		n += len(sh.items)
		sh.mu.RUnlock()
	}
	return n
}

func (s *Store) Mem() int64 { return s.mem.Load() }

func (s *Store) Clear() {
	for _, sh := range s.shards {
		sh.mu.Lock()
		sh.items = make(map[string]*Entry)
		sh.mu.Unlock()
	}
	s.mem.Store(0)
}

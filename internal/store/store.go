package store

import (
	"sync"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/ElliotLearnsThings/KVOpt/internal/wire"
)

// Store holds the cache contents in two projections of the same data: the
// raw wire bytes for lookups and persistence, and the decoded entries for
// expiration scans. Writers mutate both under mu; the entries map is
// additionally safe to range without the lock, so the sweep can scan while
// reads and writes proceed.
type Store struct {
	mu  sync.RWMutex
	raw map[wire.Key]wire.RawValue

	entries *xsync.MapOf[wire.Key, wire.Entry]

	dirty atomic.Bool
}

func New() *Store {
	return &Store{
		raw:     make(map[wire.Key]wire.RawValue),
		entries: xsync.NewMapOf[wire.Key, wire.Entry](),
	}
}

// Get returns the stored raw value. Expired entries stay visible until a
// sweep removes them.
func (s *Store) Get(key wire.Key) (wire.RawValue, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.raw[key]
	return v, ok
}

// Insert stores the raw value and its decoded entry, replacing any previous
// pair under the key.
func (s *Store) Insert(key wire.Key, value wire.RawValue) {
	entry := wire.DecodeValue(value)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.raw[key] = value
	s.entries.Store(key, entry)
}

// Remove deletes the pair under the key and reports whether it was present.
func (s *Store) Remove(key wire.Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.raw[key]
	if ok {
		delete(s.raw, key)
		s.entries.Delete(key)
	}
	return ok
}

// Len returns the number of stored pairs.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.raw)
}

// Pair returns both projections of a key. It reports false unless the key
// is present in both maps.
func (s *Store) Pair(key wire.Key) (wire.RawValue, wire.Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.raw[key]
	if !ok {
		return wire.RawValue{}, wire.Entry{}, false
	}
	e, ok := s.entries.Load(key)
	if !ok {
		return wire.RawValue{}, wire.Entry{}, false
	}
	return v, e, true
}

// Snapshot copies the raw map for persistence. The copy is detached; later
// mutations do not affect it.
func (s *Store) Snapshot() map[wire.Key]wire.RawValue {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[wire.Key]wire.RawValue, len(s.raw))
	for k, v := range s.raw {
		out[k] = v
	}
	return out
}

// Dirty reports whether the contents changed since the last successful save.
func (s *Store) Dirty() bool { return s.dirty.Load() }

func (s *Store) MarkDirty() { s.dirty.Store(true) }

func (s *Store) ClearDirty() { s.dirty.Store(false) }

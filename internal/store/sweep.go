package store

import "github.com/ElliotLearnsThings/KVOpt/internal/wire"

// Sweep removes every entry expired at now and returns how many it removed.
// It scans the entries map without the lock, then takes the write lock and
// re-checks each candidate before deleting it, so an insert that replaced
// the pair after the scan survives. Sweeping an already swept store removes
// nothing.
func (s *Store) Sweep(now int64) int {
	var candidates []wire.Key
	s.entries.Range(func(key wire.Key, e wire.Entry) bool {
		if e.Expired(now) {
			candidates = append(candidates, key)
		}
		return true
	})
	if len(candidates) == 0 {
		return 0
	}

	removed := 0
	s.mu.Lock()
	for _, key := range candidates {
		e, ok := s.entries.Load(key)
		if !ok || !e.Expired(now) {
			continue
		}
		delete(s.raw, key)
		s.entries.Delete(key)
		removed++
	}
	s.mu.Unlock()

	if removed > 0 {
		s.MarkDirty()
	}
	return removed
}

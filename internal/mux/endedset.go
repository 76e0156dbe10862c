package mux

import "sync"

// endedSetCap bounds the ended-sessions set; once it grows past this, the
// oldest half is dropped rather than evicting by recency (an ended sub-id
// has no notion of "hot"), per SPEC_FULL.md §4.3.
const endedSetCap = 256

// endedSet remembers sub-ids that were recently ended or rejected, so a
// stray Keep/End referencing them is swallowed instead of producing a
// duplicate End (the keep-end ping-pong described in §9).
type endedSet struct {
	mu    sync.Mutex
	order []uint16
	set   map[uint16]struct{}
}

func newEndedSet() *endedSet {
	return &endedSet{set: map[uint16]struct{}{}}
}

// Add records id as ended. A no-op if id is already recorded.
func (s *endedSet) Add(id uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.set[id]; exists {
		return
	}
	s.set[id] = struct{}{}
	s.order = append(s.order, id)

	if len(s.order) > endedSetCap {
		half := len(s.order) / 2
		for _, old := range s.order[:half] {
			delete(s.set, old)
		}
		s.order = s.order[half:]
	}
}

// Remove un-marks id, used when a New frame reuses a previously-ended id.
// It also drops id from order so a later re-Add doesn't leave a stale
// duplicate behind — left in place, that duplicate would count twice
// against endedSetCap and could cause the halve-on-overflow to evict a
// still-live id while the duplicate kept it in order.
func (s *endedSet) Remove(id uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.set[id]; !exists {
		return
	}
	delete(s.set, id)

	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Contains reports whether id was recently ended or rejected.
func (s *endedSet) Contains(id uint16) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.set[id]
	return ok
}

// Len returns the number of currently-tracked ended ids, for tests.
func (s *endedSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.set)
}

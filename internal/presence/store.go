package presence

import (
	"sync"
	"time"

	"proximity-service/internal/models"
)

// Store is the authoritative in-memory last-known-position table. Updates are
// accepted per key with compare-and-swap semantics on the record timestamp:
// only strictly newer timestamps win, so retries and network reordering can
// never roll a user's position back.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

type entry struct {
	mu  sync.Mutex
	rec models.PresenceRecord
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{entries: make(map[string]*entry)}
}

// Upsert applies the record if its UpdatedAt is strictly newer than the
// stored one. It returns the record now held for the user and whether the
// update was accepted.
func (s *Store) Upsert(rec models.PresenceRecord) (models.PresenceRecord, bool) {
	e := s.entry(rec.UserID)

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.rec.UpdatedAt.IsZero() && !rec.UpdatedAt.After(e.rec.UpdatedAt) {
		return e.rec, false
	}
	e.rec = rec
	return e.rec, true
}

// Get returns the most recently accepted record for the user.
func (s *Store) Get(userID string) (models.PresenceRecord, bool) {
	s.mu.RLock()
	e, ok := s.entries[userID]
	s.mu.RUnlock()
	if !ok {
		return models.PresenceRecord{}, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.rec.UpdatedAt.IsZero() {
		return models.PresenceRecord{}, false
	}
	return e.rec, true
}

// GetMany returns the records present for the given users, keyed by user id.
func (s *Store) GetMany(userIDs []string) map[string]models.PresenceRecord {
	out := make(map[string]models.PresenceRecord, len(userIDs))
	for _, id := range userIDs {
		if rec, ok := s.Get(id); ok {
			out[id] = rec
		}
	}
	return out
}

// Remove clears the user's presence. It returns the removal time and whether
// a record was actually present.
func (s *Store) Remove(userID string) (time.Time, bool) {
	s.mu.Lock()
	e, ok := s.entries[userID]
	if ok {
		delete(s.entries, userID)
	}
	s.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.rec.UpdatedAt.IsZero() {
		return time.Time{}, false
	}
	return time.Now(), true
}

// Snapshot returns a copy of every record currently held.
func (s *Store) Snapshot() []models.PresenceRecord {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	out := make([]models.PresenceRecord, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if !e.rec.UpdatedAt.IsZero() {
			out = append(out, e.rec)
		}
		e.mu.Unlock()
	}
	return out
}

func (s *Store) entry(userID string) *entry {
	s.mu.RLock()
	e, ok := s.entries[userID]
	s.mu.RUnlock()
	if ok {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok = s.entries[userID]; ok {
		return e
	}
	e = &entry{}
	s.entries[userID] = e
	return e
}

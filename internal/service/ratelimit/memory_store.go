package ratelimit

import (
	"context"
	"sync"
	"time"

	"X402Chat/internal/domain/models"
	"X402Chat/internal/domain/repository"
)

var _ repository.WindowStore = (*MemoryStore)(nil)

type entry struct {
	mu      sync.Mutex
	w       models.RateWindow
	removed bool // set by Prune; holders of a stale pointer must look up again
}

// MemoryStore keeps windows in process memory. The map lock is held only to
// find the entry; updates serialize on the entry's own lock.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*entry)}
}

func (s *MemoryStore) lookup(key string, create bool) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok && create {
		e = &entry{}
		s.entries[key] = e
	}
	return e
}

func (s *MemoryStore) Get(_ context.Context, key string) (models.RateWindow, bool, error) {
	e := s.lookup(key, false)
	if e == nil {
		return models.RateWindow{}, false, nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.w, e.w.Count > 0, nil
}

func (s *MemoryStore) IncrementOrReset(_ context.Context, key string, now time.Time, window time.Duration) (models.RateWindow, error) {
	for {
		if w, ok := s.increment(s.lookup(key, true), now, window); ok {
			return w, nil
		}
	}
}

// increment updates e unless Prune removed it after it was looked up.
func (s *MemoryStore) increment(e *entry, now time.Time, window time.Duration) (models.RateWindow, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return models.RateWindow{}, false
	}

	if e.w.Count == 0 || now.Sub(e.w.Start) > window {
		e.w = models.RateWindow{Count: 1, Start: now}
	} else {
		e.w.Count++
	}
	return e.w, true
}

// Prune drops windows that started before cutoff and returns how many were removed.
func (s *MemoryStore) Prune(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, e := range s.entries {
		e.mu.Lock()
		stale := e.w.Start.Before(cutoff)
		if stale {
			e.removed = true
			delete(s.entries, k)
			n++
		}
		e.mu.Unlock()
	}
	return n
}

// RunPruner calls Prune every interval until ctx ends, dropping windows
// older than twice window.
func (s *MemoryStore) RunPruner(ctx context.Context, interval, window time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.Prune(now.Add(-2 * window))
		}
	}
}

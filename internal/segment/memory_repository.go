package segment

import (
	"context"
	"sort"
	"sync"
)

// InMemoryRepository is an in-memory implementation of Repository.
// This is intended for testing. Production should use PostgresRepository.
type InMemoryRepository struct {
	mu       sync.RWMutex
	segments map[string]*State
	history  map[string][]*HistoryEntry
}

// NewInMemoryRepository creates a new in-memory segment repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		segments: make(map[string]*State),
		history:  make(map[string][]*HistoryEntry),
	}
}

// Get retrieves a segment by ID.
func (r *InMemoryRepository) Get(_ context.Context, segmentID string) (*State, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.segments[segmentID]
	if !ok {
		return nil, ErrSegmentNotFound
	}

	// Return a copy
	cpy := *s
	return &cpy, nil
}

// List retrieves the most recently updated segments.
func (r *InMemoryRepository) List(_ context.Context, opts ListOptions) ([]*State, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var states []*State
	for _, s := range r.segments {
		if opts.Source != "" && s.Source != opts.Source {
			continue
		}
		cpy := *s
		states = append(states, &cpy)
	}

	return sortAndLimit(states, opts.Limit), nil
}

// ListInArea retrieves segments inside the bounding box.
func (r *InMemoryRepository) ListInArea(_ context.Context, area Area, opts ListOptions) ([]*State, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var states []*State
	for _, s := range r.segments {
		if !area.Contains(s.Coordinates) {
			continue
		}
		if opts.Source != "" && s.Source != opts.Source {
			continue
		}
		cpy := *s
		states = append(states, &cpy)
	}

	return sortAndLimit(states, opts.Limit), nil
}

// Upsert creates or replaces a segment state.
func (r *InMemoryRepository) Upsert(_ context.Context, state *State) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cpy := *state
	r.segments[state.SegmentID] = &cpy
	return nil
}

// Delete removes a segment and all of its history rows.
func (r *InMemoryRepository) Delete(_ context.Context, segmentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.segments[segmentID]; !ok {
		return ErrSegmentNotFound
	}

	delete(r.segments, segmentID)
	delete(r.history, segmentID)
	return nil
}

// AppendHistory records one speed observation for a segment.
func (r *InMemoryRepository) AppendHistory(_ context.Context, entry *HistoryEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cpy := *entry
	r.history[entry.SegmentID] = append(r.history[entry.SegmentID], &cpy)
	return nil
}

// RecentHistory retrieves up to limit history entries, newest first.
func (r *InMemoryRepository) RecentHistory(_ context.Context, segmentID string, limit int) ([]*HistoryEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if limit <= 0 {
		limit = AverageWindow
	}

	entries := r.history[segmentID]
	out := make([]*HistoryEntry, 0, limit)
	// Entries are appended in order; walk backwards for newest first.
	for i := len(entries) - 1; i >= 0 && len(out) < limit; i-- {
		cpy := *entries[i]
		out = append(out, &cpy)
	}

	return out, nil
}

func sortAndLimit(states []*State, limit int) []*State {
	if limit <= 0 {
		limit = 50
	}

	sort.Slice(states, func(i, j int) bool {
		return states[i].UpdatedAt.After(states[j].UpdatedAt)
	})

	if len(states) > limit {
		states = states[:limit]
	}
	return states
}

// Ensure InMemoryRepository implements Repository interface.
var _ Repository = (*InMemoryRepository)(nil)

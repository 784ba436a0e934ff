package segment

import "context"

// ListOptions contains options for listing segments.
type ListOptions struct {
	// Limit caps the number of returned segments (default 50).
	Limit int

	// Source filters by the provider tag when non-empty.
	Source string
}

// Repository defines the interface for segment state persistence.
type Repository interface {
	// Get retrieves a segment by ID.
	// Returns ErrSegmentNotFound if the segment doesn't exist.
	Get(ctx context.Context, segmentID string) (*State, error)

	// List retrieves the most recently updated segments.
	List(ctx context.Context, opts ListOptions) ([]*State, error)

	// ListInArea retrieves segments whose coordinates fall inside the
	// bounding box, most recently updated first.
	ListInArea(ctx context.Context, area Area, opts ListOptions) ([]*State, error)

	// Upsert creates or replaces a segment state.
	Upsert(ctx context.Context, state *State) error

	// Delete removes a segment and all of its history rows.
	Delete(ctx context.Context, segmentID string) error

	// AppendHistory records one speed observation for a segment.
	AppendHistory(ctx context.Context, entry *HistoryEntry) error

	// RecentHistory retrieves up to limit history entries for a
	// segment, newest first.
	RecentHistory(ctx context.Context, segmentID string, limit int) ([]*HistoryEntry, error)
}

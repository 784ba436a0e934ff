package segment

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL segment repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const segmentColumns = `
	segment_id, location, lat, lng,
	current_speed, average_speed, max_speed, is_moving,
	source, updated_at, created_at
`

// Get retrieves a segment by ID.
func (r *PostgresRepository) Get(ctx context.Context, segmentID string) (*State, error) {
	query := `SELECT` + segmentColumns + `FROM segments WHERE segment_id = $1`

	var state State
	err := r.pool.QueryRow(ctx, query, segmentID).Scan(
		&state.SegmentID,
		&state.Location,
		&state.Coordinates.Lat,
		&state.Coordinates.Lng,
		&state.CurrentSpeed,
		&state.AverageSpeed,
		&state.MaxSpeed,
		&state.IsMoving,
		&state.Source,
		&state.UpdatedAt,
		&state.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSegmentNotFound
		}
		return nil, err
	}

	return &state, nil
}

// List retrieves the most recently updated segments.
func (r *PostgresRepository) List(ctx context.Context, opts ListOptions) ([]*State, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT` + segmentColumns + `
		FROM segments
		WHERE ($1 = '' OR source = $1)
		ORDER BY updated_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, opts.Source, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanStates(rows)
}

// ListInArea retrieves segments inside the bounding box.
func (r *PostgresRepository) ListInArea(ctx context.Context, area Area, opts ListOptions) ([]*State, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT` + segmentColumns + `
		FROM segments
		WHERE lat BETWEEN $1 AND $2
		  AND lng BETWEEN $3 AND $4
		  AND ($5 = '' OR source = $5)
		ORDER BY updated_at DESC
		LIMIT $6
	`

	rows, err := r.pool.Query(ctx, query,
		area.MinLat, area.MaxLat, area.MinLng, area.MaxLng, opts.Source, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanStates(rows)
}

// Upsert creates or replaces a segment state.
func (r *PostgresRepository) Upsert(ctx context.Context, state *State) error {
	query := `
		INSERT INTO segments (
			segment_id, location, lat, lng,
			current_speed, average_speed, max_speed, is_moving,
			source, updated_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (segment_id) DO UPDATE SET
			location = EXCLUDED.location,
			lat = EXCLUDED.lat,
			lng = EXCLUDED.lng,
			current_speed = EXCLUDED.current_speed,
			average_speed = EXCLUDED.average_speed,
			max_speed = EXCLUDED.max_speed,
			is_moving = EXCLUDED.is_moving,
			source = EXCLUDED.source,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.pool.Exec(ctx, query,
		state.SegmentID,
		state.Location,
		state.Coordinates.Lat,
		state.Coordinates.Lng,
		state.CurrentSpeed,
		state.AverageSpeed,
		state.MaxSpeed,
		state.IsMoving,
		state.Source,
		state.UpdatedAt,
		state.CreatedAt,
	)
	return err
}

// Delete removes a segment and all of its history rows. History is
// removed first so a failure never leaves orphaned rows behind a
// deleted segment.
func (r *PostgresRepository) Delete(ctx context.Context, segmentID string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM speed_history WHERE segment_id = $1`, segmentID); err != nil {
		return err
	}

	result, err := tx.Exec(ctx, `DELETE FROM segments WHERE segment_id = $1`, segmentID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrSegmentNotFound
	}

	return tx.Commit(ctx)
}

// AppendHistory records one speed observation for a segment.
func (r *PostgresRepository) AppendHistory(ctx context.Context, entry *HistoryEntry) error {
	query := `
		INSERT INTO speed_history (segment_id, speed, lat, lng, recorded_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.pool.Exec(ctx, query,
		entry.SegmentID, entry.Speed,
		entry.Coordinates.Lat, entry.Coordinates.Lng,
		entry.RecordedAt)
	return err
}

// RecentHistory retrieves up to limit history entries, newest first.
func (r *PostgresRepository) RecentHistory(ctx context.Context, segmentID string, limit int) ([]*HistoryEntry, error) {
	if limit <= 0 {
		limit = AverageWindow
	}

	query := `
		SELECT segment_id, speed, lat, lng, recorded_at
		FROM speed_history
		WHERE segment_id = $1
		ORDER BY recorded_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, segmentID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*HistoryEntry
	for rows.Next() {
		var entry HistoryEntry
		if err := rows.Scan(&entry.SegmentID, &entry.Speed,
			&entry.Coordinates.Lat, &entry.Coordinates.Lng, &entry.RecordedAt); err != nil {
			return nil, err
		}
		entries = append(entries, &entry)
	}

	return entries, rows.Err()
}

func scanStates(rows pgx.Rows) ([]*State, error) {
	var states []*State
	for rows.Next() {
		var state State
		err := rows.Scan(
			&state.SegmentID,
			&state.Location,
			&state.Coordinates.Lat,
			&state.Coordinates.Lng,
			&state.CurrentSpeed,
			&state.AverageSpeed,
			&state.MaxSpeed,
			&state.IsMoving,
			&state.Source,
			&state.UpdatedAt,
			&state.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		states = append(states, &state)
	}

	return states, rows.Err()
}

// Ensure PostgresRepository implements Repository interface.
var _ Repository = (*PostgresRepository)(nil)

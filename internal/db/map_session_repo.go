package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"chargemap/internal/types"
)

// MapSessionRepository provides data access for the map_sessions table.
type MapSessionRepository struct {
	db DBTX
}

// NewMapSessionRepository creates a repository backed by the given
// connection (pool or transaction).
func NewMapSessionRepository(db DBTX) *MapSessionRepository {
	return &MapSessionRepository{db: db}
}

const mapSessionColumns = `id, latitude, longitude, latitude_delta, longitude_delta,
	obfuscated_filter, reserved_filter, private_filter, created_at, updated_at`

// Save upserts the session. created_at is only written on insert.
func (r *MapSessionRepository) Save(ctx context.Context, s *types.MapSession) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO map_sessions (`+mapSessionColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (id) DO UPDATE SET
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			latitude_delta = EXCLUDED.latitude_delta,
			longitude_delta = EXCLUDED.longitude_delta,
			obfuscated_filter = EXCLUDED.obfuscated_filter,
			reserved_filter = EXCLUDED.reserved_filter,
			private_filter = EXCLUDED.private_filter,
			updated_at = EXCLUDED.updated_at`,
		s.ID,
		s.Region.Latitude,
		s.Region.Longitude,
		s.Region.LatitudeDelta,
		s.Region.LongitudeDelta,
		s.Filters.ObfuscatedFilter.BoolPtr(),
		s.Filters.ReservedFilter.BoolPtr(),
		s.Filters.PrivateFilter.BoolPtr(),
		s.CreatedAt,
		s.UpdatedAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to save map session", err)
	}
	return nil
}

// Get retrieves a session by id.
func (r *MapSessionRepository) Get(ctx context.Context, id string) (*types.MapSession, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+mapSessionColumns+` FROM map_sessions WHERE id = $1`, id)

	var (
		s             types.MapSession
		obf, res, pri *bool
	)
	err := row.Scan(
		&s.ID,
		&s.Region.Latitude,
		&s.Region.Longitude,
		&s.Region.LatitudeDelta,
		&s.Region.LongitudeDelta,
		&obf,
		&res,
		&pri,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppErrorWithDetails(types.ErrCodeNotFoundSession, "map session not found", nil,
				map[string]any{"session_id": id})
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get map session", err)
	}

	s.Filters = types.Filters{
		ObfuscatedFilter: types.FilterFromBoolPtr(obf),
		ReservedFilter:   types.FilterFromBoolPtr(res),
		PrivateFilter:    types.FilterFromBoolPtr(pri),
	}
	return &s, nil
}

// Delete removes a session.
func (r *MapSessionRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM map_sessions WHERE id = $1`, id)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete map session", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppErrorWithDetails(types.ErrCodeNotFoundSession, "map session not found", nil,
			map[string]any{"session_id": id})
	}
	return nil
}

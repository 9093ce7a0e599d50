package presence

import (
	"context"

	"github.com/jmoiron/sqlx"

	"proximity-service/internal/models"
)

// Repository persists the presence columns the user table carries. The user
// rows themselves belong to the profile service; this repo only touches
// latitude, longitude, accuracy and the update timestamp.
type Repository interface {
	SavePresence(ctx context.Context, rec models.PresenceRecord) error
	ClearPresence(ctx context.Context, userID string) error
	ListKnown(ctx context.Context, excludeUserID string) ([]models.PresenceRecord, error)
}

// Repo is a sqlx implementation of Repository.
type Repo struct {
	db *sqlx.DB
}

// NewRepo constructs a Repo.
func NewRepo(db *sqlx.DB) *Repo {
	return &Repo{db: db}
}

// SavePresence writes the presence columns, guarded by the same
// newer-timestamp rule the in-memory store enforces.
func (r *Repo) SavePresence(ctx context.Context, rec models.PresenceRecord) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO users (id, latitude, longitude, location_accuracy_m, location_updated_at)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (id) DO UPDATE SET
            latitude = EXCLUDED.latitude,
            longitude = EXCLUDED.longitude,
            location_accuracy_m = EXCLUDED.location_accuracy_m,
            location_updated_at = EXCLUDED.location_updated_at
        WHERE users.location_updated_at IS NULL OR users.location_updated_at < EXCLUDED.location_updated_at`,
		rec.UserID, rec.Latitude, rec.Longitude, rec.AccuracyMeters, rec.UpdatedAt)
	return err
}

// ClearPresence nulls the presence columns for the user.
func (r *Repo) ClearPresence(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE users SET latitude = NULL, longitude = NULL,
        location_accuracy_m = NULL, location_updated_at = NULL WHERE id = $1`, userID)
	return err
}

// ListKnown returns every user with a known position, excluding the caller.
func (r *Repo) ListKnown(ctx context.Context, excludeUserID string) ([]models.PresenceRecord, error) {
	var recs []models.PresenceRecord
	err := r.db.SelectContext(ctx, &recs, `SELECT id AS user_id, latitude, longitude,
        COALESCE(location_accuracy_m, 0) AS location_accuracy_m, location_updated_at
        FROM users
        WHERE latitude IS NOT NULL AND longitude IS NOT NULL AND id != $1`, excludeUserID)
	return recs, err
}

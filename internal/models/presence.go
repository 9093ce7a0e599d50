package models

import "time"

// PresenceRecord is the authoritative last-known position for one user.
// There is exactly one record per active user; it is overwritten in place.
type PresenceRecord struct {
	UserID         string    `db:"user_id" json:"user_id"`
	Latitude       float64   `db:"latitude" json:"latitude"`
	Longitude      float64   `db:"longitude" json:"longitude"`
	AccuracyMeters float64   `db:"location_accuracy_m" json:"accuracy_meters"`
	UpdatedAt      time.Time `db:"location_updated_at" json:"updated_at"`
}

// Presence event types delivered to subscribers.
const (
	PresenceEventSnapshot = "snapshot"
	PresenceEventUpdate   = "update"
	PresenceEventRemove   = "remove"
)

// PresenceEvent is emitted for every accepted mutation of the presence store.
// Remove events carry only UserID and UpdatedAt (the removal time).
type PresenceEvent struct {
	Type   string         `json:"type"`
	Record PresenceRecord `json:"record"`
}

package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"proximity-service/internal/broadcast"
	"proximity-service/internal/models"
	"proximity-service/internal/observability"
	"proximity-service/internal/presence"
)

// LocationHandler manages presence ingestion endpoints.
type LocationHandler struct {
	store       *presence.Store
	repo        presence.Repository
	broadcaster *broadcast.Broadcaster
	logger      *zap.Logger
}

// NewLocationHandler builds a LocationHandler.
func NewLocationHandler(store *presence.Store, repo presence.Repository, broadcaster *broadcast.Broadcaster, logger *zap.Logger) *LocationHandler {
	return &LocationHandler{
		store:       store,
		repo:        repo,
		broadcaster: broadcaster,
		logger:      logger,
	}
}

// UpdateLocation ingests one position fix for the authenticated user. A fix
// older than the stored one is acknowledged but changes nothing, so retried
// and reordered syncs stay harmless.
func (h *LocationHandler) UpdateLocation(c *gin.Context) {
	userID := c.GetString("userID")

	var req struct {
		Latitude       *float64  `json:"latitude" binding:"required"`
		Longitude      *float64  `json:"longitude" binding:"required"`
		AccuracyMeters float64   `json:"accuracy_meters"`
		RecordedAt     time.Time `json:"recorded_at"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if *req.Latitude < -90 || *req.Latitude > 90 || *req.Longitude < -180 || *req.Longitude > 180 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "coordinates out of range"})
		return
	}
	// Accuracy gating is the client controller's job; the server accepts
	// whatever passed the client-side ceiling.
	if req.RecordedAt.IsZero() {
		req.RecordedAt = time.Now().UTC()
	}

	rec := models.PresenceRecord{
		UserID:         userID,
		Latitude:       *req.Latitude,
		Longitude:      *req.Longitude,
		AccuracyMeters: req.AccuracyMeters,
		UpdatedAt:      req.RecordedAt,
	}

	applied, ok := h.store.Upsert(rec)
	if !ok {
		// Stale by timestamp: not an error, just a no-op.
		observability.IncPresenceUpdate("stale")
		c.JSON(http.StatusOK, gin.H{"applied": false})
		return
	}
	observability.IncPresenceUpdate("applied")

	// Durable presence is best-effort; the in-memory store is authoritative
	// for the realtime path.
	if err := h.repo.SavePresence(c.Request.Context(), applied); err != nil {
		h.logger.Warn("presence persist failed", zap.String("user_id", userID), zap.Error(err))
	}

	h.broadcaster.Publish(models.PresenceEvent{Type: models.PresenceEventUpdate, Record: applied})
	c.JSON(http.StatusOK, gin.H{"applied": true})
}

// ClearLocation removes the authenticated user's presence.
func (h *LocationHandler) ClearLocation(c *gin.Context) {
	userID := c.GetString("userID")

	removedAt, existed := h.store.Remove(userID)
	if err := h.repo.ClearPresence(c.Request.Context(), userID); err != nil {
		h.logger.Warn("presence clear failed", zap.String("user_id", userID), zap.Error(err))
	}

	if existed {
		h.broadcaster.Publish(models.PresenceEvent{Type: models.PresenceEventRemove, Record: models.PresenceRecord{
			UserID:    userID,
			UpdatedAt: removedAt,
		}})
	}
	c.Status(http.StatusNoContent)
}

// ListLocations returns the current presence of everyone except the caller.
func (h *LocationHandler) ListLocations(c *gin.Context) {
	userID := c.GetString("userID")

	records := h.store.Snapshot()
	out := make([]models.PresenceRecord, 0, len(records))
	for _, rec := range records {
		if rec.UserID == userID {
			continue
		}
		out = append(out, rec)
	}
	c.JSON(http.StatusOK, gin.H{"locations": out})
}

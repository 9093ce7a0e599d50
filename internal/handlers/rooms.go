package handlers

import (
	"errors"
	"net/http"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"proximity-service/internal/observability"
	"proximity-service/internal/repositories"
	"proximity-service/internal/telemetry"
)

const (
	maxTitleRunes         = 30
	maxDescriptionRunes   = 300
	minMemberLimit        = 2
	defaultMaxMemberLimit = 100
)

// RoomHandler manages chat room endpoints.
type RoomHandler struct {
	repo           repositories.RoomRepository
	audit          *telemetry.AuditEmitter
	maxMemberLimit int
	logger         *zap.Logger
}

// NewRoomHandler builds a RoomHandler. maxMemberLimit caps requested room
// sizes; values below the minimum fall back to the default cap.
func NewRoomHandler(repo repositories.RoomRepository, audit *telemetry.AuditEmitter, maxMemberLimit int, logger *zap.Logger) *RoomHandler {
	if maxMemberLimit < minMemberLimit {
		maxMemberLimit = defaultMaxMemberLimit
	}
	return &RoomHandler{repo: repo, audit: audit, maxMemberLimit: maxMemberLimit, logger: logger}
}

// StartDirectRoom creates or returns the direct room for the caller and the
// target user. Existing rooms come back with 200 and "existed": true, fresh
// ones with 201, so a double-tap on a match banner never yields two rooms.
func (h *RoomHandler) StartDirectRoom(c *gin.Context) {
	userID := c.GetString("userID")

	var req struct {
		TargetUserID string `json:"target_user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.TargetUserID == userID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot start a room with yourself"})
		return
	}

	room, existed, err := h.repo.CreateOrGetDirectRoom(c.Request.Context(), userID, req.TargetUserID)
	if err != nil {
		observability.IncRoomOperation("create_direct", "error")
		h.logger.Error("direct room create failed", zap.String("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create room"})
		return
	}

	status := http.StatusCreated
	if existed {
		status = http.StatusOK
		observability.IncRoomOperation("create_direct", "existed")
	} else {
		observability.IncRoomOperation("create_direct", "created")
		h.audit.Emit(c.Request.Context(), "info", "direct room created", requestID(c), &userID)
	}
	c.JSON(status, gin.H{"room": room, "existed": existed})
}

// CreateLocationRoom creates a new location-based group room.
func (h *RoomHandler) CreateLocationRoom(c *gin.Context) {
	userID := c.GetString("userID")

	var req struct {
		TargetUserID string `json:"target_user_id" binding:"required"`
		Title        string `json:"title" binding:"required"`
		Description  string `json:"description"`
		ThumbnailURL string `json:"thumbnail_url"`
		MemberLimit  int    `json:"member_limit"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.TargetUserID == userID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot start a room with yourself"})
		return
	}
	if utf8.RuneCountInString(req.Title) > maxTitleRunes {
		c.JSON(http.StatusBadRequest, gin.H{"error": "title too long"})
		return
	}
	if utf8.RuneCountInString(req.Description) > maxDescriptionRunes {
		c.JSON(http.StatusBadRequest, gin.H{"error": "description too long"})
		return
	}

	limit := req.MemberLimit
	if limit < minMemberLimit {
		limit = minMemberLimit
	}
	if limit > h.maxMemberLimit {
		limit = h.maxMemberLimit
	}

	room, err := h.repo.CreateLocationRoom(c.Request.Context(), repositories.LocationRoomParams{
		CreatorID:    userID,
		TargetID:     req.TargetUserID,
		Title:        req.Title,
		Description:  req.Description,
		ThumbnailURL: req.ThumbnailURL,
		MemberLimit:  limit,
	})
	if err != nil {
		observability.IncRoomOperation("create_location", "error")
		h.logger.Error("location room create failed", zap.String("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create room"})
		return
	}

	observability.IncRoomOperation("create_location", "created")
	h.audit.Emit(c.Request.Context(), "info", "location room created", requestID(c), &userID)
	c.JSON(http.StatusCreated, gin.H{"room": room})
}

// ListRooms returns the rooms the caller belongs to.
func (h *RoomHandler) ListRooms(c *gin.Context) {
	userID := c.GetString("userID")

	rooms, err := h.repo.ListRoomsForUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load rooms"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"rooms": rooms})
}

// ListMembers returns the member list of a room the caller belongs to.
func (h *RoomHandler) ListMembers(c *gin.Context) {
	userID := c.GetString("userID")
	roomID := c.Param("room_id")

	member, err := h.repo.IsMember(c.Request.Context(), roomID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify membership"})
		return
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a room member"})
		return
	}

	members, err := h.repo.ListMembers(c.Request.Context(), roomID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load members"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"members": members})
}

// InviteMember admits another user into the room. Capacity is re-checked
// inside the repository transaction, so a full room answers 409 even under
// concurrent invites.
func (h *RoomHandler) InviteMember(c *gin.Context) {
	userID := c.GetString("userID")
	roomID := c.Param("room_id")

	var req struct {
		UserID string `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	member, err := h.repo.IsMember(c.Request.Context(), roomID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify membership"})
		return
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a room member"})
		return
	}

	err = h.repo.AddMember(c.Request.Context(), roomID, req.UserID)
	switch {
	case errors.Is(err, repositories.ErrRoomFull):
		observability.IncRoomOperation("invite", "full")
		c.JSON(http.StatusConflict, gin.H{"error": "room is full"})
	case errors.Is(err, repositories.ErrRoomNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
	case err != nil:
		observability.IncRoomOperation("invite", "error")
		h.logger.Error("invite failed", zap.String("room_id", roomID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not invite"})
	default:
		observability.IncRoomOperation("invite", "ok")
		c.Status(http.StatusNoContent)
	}
}

// KickMember removes another user from the room. Restricted to members.
func (h *RoomHandler) KickMember(c *gin.Context) {
	userID := c.GetString("userID")
	roomID := c.Param("room_id")

	var req struct {
		UserID string `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	member, err := h.repo.IsMember(c.Request.Context(), roomID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify membership"})
		return
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a room member"})
		return
	}

	err = h.repo.RemoveMember(c.Request.Context(), roomID, req.UserID)
	switch {
	case errors.Is(err, repositories.ErrMemberNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "member not found"})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not remove member"})
	default:
		observability.IncRoomOperation("kick", "ok")
		c.Status(http.StatusNoContent)
	}
}

// LeaveRoom removes the caller from the room. The last member out (or
// either party of a direct room) takes the room and its messages with them.
func (h *RoomHandler) LeaveRoom(c *gin.Context) {
	userID := c.GetString("userID")
	roomID := c.Param("room_id")

	deleted, err := h.repo.Leave(c.Request.Context(), roomID, userID)
	switch {
	case errors.Is(err, repositories.ErrRoomNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	case errors.Is(err, repositories.ErrNotMember):
		c.JSON(http.StatusForbidden, gin.H{"error": "not a room member"})
		return
	case err != nil:
		observability.IncRoomOperation("leave", "error")
		h.logger.Error("leave failed", zap.String("room_id", roomID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not leave room"})
		return
	}

	observability.IncRoomOperation("leave", "ok")
	if deleted {
		h.audit.Emit(c.Request.Context(), "info", "room deleted on leave", requestID(c), &userID)
	}
	c.JSON(http.StatusOK, gin.H{"room_deleted": deleted})
}

func requestID(c *gin.Context) string {
	return c.GetHeader("X-Request-Id")
}

package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"proximity-service/internal/models"
)

var (
	ErrRoomNotFound   = errors.New("room not found")
	ErrRoomFull       = errors.New("room member limit reached")
	ErrNotMember      = errors.New("not a room member")
	ErrSelfRoom       = errors.New("cannot create a room with yourself")
	ErrMemberNotFound = errors.New("member not found")
)

const uniqueViolation = "23505"

// RoomRepository abstracts room and membership persistence.
type RoomRepository interface {
	CreateOrGetDirectRoom(ctx context.Context, userID, targetID string) (models.Room, bool, error)
	CreateLocationRoom(ctx context.Context, params LocationRoomParams) (models.Room, error)
	GetRoom(ctx context.Context, roomID string) (models.Room, error)
	ListRoomsForUser(ctx context.Context, userID string) ([]models.Room, error)
	ListMembers(ctx context.Context, roomID string) ([]models.Membership, error)
	IsMember(ctx context.Context, roomID, userID string) (bool, error)
	AddMember(ctx context.Context, roomID, userID string) error
	RemoveMember(ctx context.Context, roomID, userID string) error
	Leave(ctx context.Context, roomID, userID string) (bool, error)
}

// LocationRoomParams describes a new location-based group room.
type LocationRoomParams struct {
	CreatorID    string
	TargetID     string
	Title        string
	Description  string
	ThumbnailURL string
	MemberLimit  int
}

// RoomRepo is a sqlx implementation of RoomRepository.
type RoomRepo struct {
	db *sqlx.DB
}

// NewRoomRepo constructs a RoomRepo.
func NewRoomRepo(db *sqlx.DB) *RoomRepo {
	return &RoomRepo{db: db}
}

const roomColumns = `id, room_type, user_a_id, user_b_id, title, description, thumbnail_url, member_limit, created_at, updated_at`

// normalizePair orders two user ids so the unordered pair maps to exactly
// one (user_a, user_b) row, which the partial unique index enforces.
func normalizePair(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}

// CreateOrGetDirectRoom returns the direct room for the unordered user pair,
// creating it when absent. The second result reports whether the room
// already existed. Concurrent creation attempts converge on one row: the
// loser of the unique-constraint race re-reads and returns the winner's row.
// Room and membership rows land in one transaction, so a direct room without
// members can never be observed and blind retries stay safe.
func (r *RoomRepo) CreateOrGetDirectRoom(ctx context.Context, userID, targetID string) (models.Room, bool, error) {
	if userID == targetID {
		return models.Room{}, false, ErrSelfRoom
	}
	userA, userB := normalizePair(userID, targetID)

	lookup := `SELECT ` + roomColumns + ` FROM rooms WHERE room_type = $1 AND user_a_id = $2 AND user_b_id = $3`

	var room models.Room
	err := r.db.GetContext(ctx, &room, lookup, models.RoomTypeDirect, userA, userB)
	if err == nil {
		return room, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.Room{}, false, err
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Room{}, false, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	err = tx.GetContext(ctx, &room, `INSERT INTO rooms (id, room_type, user_a_id, user_b_id, member_limit)
        VALUES ($1, $2, $3, $4, 2)
        RETURNING `+roomColumns,
		uuid.NewString(), models.RoomTypeDirect, userA, userB)
	if err != nil {
		if isUniqueViolation(err) {
			// Someone else created it first; that is the success path.
			tx.Rollback()
			if lookupErr := r.db.GetContext(ctx, &room, lookup, models.RoomTypeDirect, userA, userB); lookupErr != nil {
				return models.Room{}, false, lookupErr
			}
			return room, true, nil
		}
		return models.Room{}, false, err
	}

	for _, member := range []struct {
		userID string
		role   string
	}{
		{userID, models.RoleOwner},
		{targetID, models.RoleMember},
	} {
		if _, err = tx.ExecContext(ctx, `INSERT INTO room_members (room_id, user_id, role) VALUES ($1, $2, $3)
            ON CONFLICT (room_id, user_id) DO NOTHING`, room.ID, member.userID, member.role); err != nil {
			return models.Room{}, false, err
		}
	}

	if err = tx.Commit(); err != nil {
		return models.Room{}, false, err
	}
	return room, false, nil
}

// CreateLocationRoom always creates a new room; there is no pairwise dedup
// for group rooms. The member limit must already be validated by the caller.
func (r *RoomRepo) CreateLocationRoom(ctx context.Context, params LocationRoomParams) (models.Room, error) {
	if params.CreatorID == params.TargetID {
		return models.Room{}, ErrSelfRoom
	}
	if params.MemberLimit < 2 {
		return models.Room{}, fmt.Errorf("member limit must be at least 2, got %d", params.MemberLimit)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Room{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var room models.Room
	err = tx.GetContext(ctx, &room, `INSERT INTO rooms (id, room_type, title, description, thumbnail_url, member_limit)
        VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6)
        RETURNING `+roomColumns,
		uuid.NewString(), models.RoomTypeLocation, params.Title, params.Description, params.ThumbnailURL, params.MemberLimit)
	if err != nil {
		return models.Room{}, err
	}

	for _, member := range []struct {
		userID string
		role   string
	}{
		{params.CreatorID, models.RoleOwner},
		{params.TargetID, models.RoleMember},
	} {
		if _, err = tx.ExecContext(ctx, `INSERT INTO room_members (room_id, user_id, role) VALUES ($1, $2, $3)
            ON CONFLICT (room_id, user_id) DO NOTHING`, room.ID, member.userID, member.role); err != nil {
			return models.Room{}, err
		}
	}

	if err = tx.Commit(); err != nil {
		return models.Room{}, err
	}
	return room, nil
}

// GetRoom fetches a room by id.
func (r *RoomRepo) GetRoom(ctx context.Context, roomID string) (models.Room, error) {
	var room models.Room
	err := r.db.GetContext(ctx, &room, `SELECT `+roomColumns+` FROM rooms WHERE id = $1`, roomID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Room{}, ErrRoomNotFound
	}
	return room, err
}

// ListRoomsForUser returns rooms the user belongs to, newest first.
func (r *RoomRepo) ListRoomsForUser(ctx context.Context, userID string) ([]models.Room, error) {
	var rooms []models.Room
	err := r.db.SelectContext(ctx, &rooms, `SELECT `+roomColumnsPrefixed("r")+` FROM rooms r
        INNER JOIN room_members rm ON rm.room_id = r.id
        WHERE rm.user_id = $1
        ORDER BY r.updated_at DESC`, userID)
	return rooms, err
}

// ListMembers returns the room's members in join order.
func (r *RoomRepo) ListMembers(ctx context.Context, roomID string) ([]models.Membership, error) {
	var members []models.Membership
	err := r.db.SelectContext(ctx, &members, `SELECT room_id, user_id, role, joined_at
        FROM room_members WHERE room_id = $1 ORDER BY joined_at ASC`, roomID)
	return members, err
}

// IsMember checks membership.
func (r *RoomRepo) IsMember(ctx context.Context, roomID, userID string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM room_members WHERE room_id = $1 AND user_id = $2)`, roomID, userID)
	return exists, err
}

// AddMember admits a user, re-checking capacity atomically: the room row is
// locked for the duration of the count so concurrent invites serialize and
// member_count can never exceed member_limit.
func (r *RoomRepo) AddMember(ctx context.Context, roomID, userID string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var limit int
	err = tx.GetContext(ctx, &limit, `SELECT member_limit FROM rooms WHERE id = $1 FOR UPDATE`, roomID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrRoomNotFound
	}
	if err != nil {
		return err
	}

	var count int
	if err = tx.GetContext(ctx, &count, `SELECT COUNT(*) FROM room_members WHERE room_id = $1`, roomID); err != nil {
		return err
	}
	if count >= limit {
		err = ErrRoomFull
		return err
	}

	if _, err = tx.ExecContext(ctx, `INSERT INTO room_members (room_id, user_id, role) VALUES ($1, $2, $3)
        ON CONFLICT (room_id, user_id) DO NOTHING`, roomID, userID, models.RoleMember); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, `UPDATE rooms SET updated_at = NOW() WHERE id = $1`, roomID); err != nil {
		return err
	}
	return tx.Commit()
}

// RemoveMember kicks a user from the room.
func (r *RoomRepo) RemoveMember(ctx context.Context, roomID, userID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM room_members WHERE room_id = $1 AND user_id = $2`, roomID, userID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrMemberNotFound
	}
	_, err = r.db.ExecContext(ctx, `UPDATE rooms SET updated_at = NOW() WHERE id = $1`, roomID)
	return err
}

// Leave removes the user's membership. A direct room is torn down whole as
// soon as either party leaves; a group room is torn down when its last
// member leaves. Room and message deletion happen in one transaction, so a
// half-deleted room (messages gone, room present) cannot be observed.
// The returned bool reports whether the room was deleted.
func (r *RoomRepo) Leave(ctx context.Context, roomID, userID string) (bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var roomType string
	err = tx.GetContext(ctx, &roomType, `SELECT room_type FROM rooms WHERE id = $1 FOR UPDATE`, roomID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrRoomNotFound
	}
	if err != nil {
		return false, err
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM room_members WHERE room_id = $1 AND user_id = $2`, roomID, userID)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected == 0 {
		err = ErrNotMember
		return false, err
	}

	var remaining int
	if err = tx.GetContext(ctx, &remaining, `SELECT COUNT(*) FROM room_members WHERE room_id = $1`, roomID); err != nil {
		return false, err
	}

	if roomType == models.RoomTypeDirect || remaining == 0 {
		if _, err = tx.ExecContext(ctx, `DELETE FROM messages WHERE room_id = $1`, roomID); err != nil {
			return false, err
		}
		if _, err = tx.ExecContext(ctx, `DELETE FROM rooms WHERE id = $1`, roomID); err != nil {
			return false, err
		}
		if err = tx.Commit(); err != nil {
			return false, err
		}
		return true, nil
	}

	if _, err = tx.ExecContext(ctx, `INSERT INTO messages (room_id, sender_id, role, content)
        VALUES ($1, $2, 'system', $3)`, roomID, userID, "left the room"); err != nil {
		return false, err
	}
	if _, err = tx.ExecContext(ctx, `UPDATE rooms SET updated_at = NOW() WHERE id = $1`, roomID); err != nil {
		return false, err
	}
	if err = tx.Commit(); err != nil {
		return false, err
	}
	return false, nil
}

func roomColumnsPrefixed(alias string) string {
	return alias + `.id, ` + alias + `.room_type, ` + alias + `.user_a_id, ` + alias + `.user_b_id, ` +
		alias + `.title, ` + alias + `.description, ` + alias + `.thumbnail_url, ` +
		alias + `.member_limit, ` + alias + `.created_at, ` + alias + `.updated_at`
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

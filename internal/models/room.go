package models

import "time"

// Room types.
const (
	RoomTypeDirect   = "direct"
	RoomTypeLocation = "location_room"
)

// Member roles.
const (
	RoleOwner  = "owner"
	RoleMember = "member"
)

// Room is a chat room. Direct rooms are uniquely keyed by their unordered
// user pair (UserAID < UserBID); location rooms carry a member limit instead.
type Room struct {
	ID           string    `db:"id" json:"id"`
	RoomType     string    `db:"room_type" json:"room_type"`
	UserAID      *string   `db:"user_a_id" json:"user_a_id,omitempty"`
	UserBID      *string   `db:"user_b_id" json:"user_b_id,omitempty"`
	Title        string    `db:"title" json:"title"`
	Description  *string   `db:"description" json:"description,omitempty"`
	ThumbnailURL *string   `db:"thumbnail_url" json:"thumbnail_url,omitempty"`
	MemberLimit  int       `db:"member_limit" json:"member_limit"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Membership ties a user to a room.
type Membership struct {
	RoomID   string    `db:"room_id" json:"room_id"`
	UserID   string    `db:"user_id" json:"user_id"`
	Role     string    `db:"role" json:"role"`
	JoinedAt time.Time `db:"joined_at" json:"joined_at"`
}

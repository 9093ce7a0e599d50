package repositories

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proximity-service/internal/models"
)

func newMockRepo(t *testing.T) (*RoomRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewRoomRepo(sqlx.NewDb(db, "postgres")), mock
}

func directRoomRows(id string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "room_type", "user_a_id", "user_b_id", "title",
		"description", "thumbnail_url", "member_limit", "created_at", "updated_at",
	}).AddRow(id, models.RoomTypeDirect, "user-a", "user-b", "", nil, nil, 2, now, now)
}

func TestCreateOrGetDirectRoomReturnsExistingWithoutInsert(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("SELECT .* FROM rooms WHERE room_type").
		WithArgs(models.RoomTypeDirect, "user-a", "user-b").
		WillReturnRows(directRoomRows("room-1"))

	room, existed, err := repo.CreateOrGetDirectRoom(context.Background(), "user-a", "user-b")
	require.NoError(t, err)
	assert.True(t, existed)
	assert.Equal(t, "room-1", room.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateOrGetDirectRoomInsertsRoomAndMembersAtomically(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("SELECT .* FROM rooms WHERE room_type").
		WithArgs(models.RoomTypeDirect, "user-a", "user-b").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO rooms").
		WithArgs(sqlmock.AnyArg(), models.RoomTypeDirect, "user-a", "user-b").
		WillReturnRows(directRoomRows("room-1"))
	mock.ExpectExec("INSERT INTO room_members").
		WithArgs("room-1", "user-a", models.RoleOwner).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO room_members").
		WithArgs("room-1", "user-b", models.RoleMember).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	room, existed, err := repo.CreateOrGetDirectRoom(context.Background(), "user-a", "user-b")
	require.NoError(t, err)
	assert.False(t, existed)
	assert.Equal(t, "room-1", room.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateOrGetDirectRoomNormalizesPairOrder(t *testing.T) {
	repo, mock := newMockRepo(t)

	// Caller order is reversed; the lookup still uses the sorted pair.
	mock.ExpectQuery("SELECT .* FROM rooms WHERE room_type").
		WithArgs(models.RoomTypeDirect, "user-a", "user-b").
		WillReturnRows(directRoomRows("room-1"))

	room, existed, err := repo.CreateOrGetDirectRoom(context.Background(), "user-b", "user-a")
	require.NoError(t, err)
	assert.True(t, existed)
	assert.Equal(t, "room-1", room.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateOrGetDirectRoomUniqueViolationFallsBackToWinner(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("SELECT .* FROM rooms WHERE room_type").
		WithArgs(models.RoomTypeDirect, "user-a", "user-b").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO rooms").
		WithArgs(sqlmock.AnyArg(), models.RoomTypeDirect, "user-a", "user-b").
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()
	// The loser of the race re-reads the winner's row; that is a success.
	mock.ExpectQuery("SELECT .* FROM rooms WHERE room_type").
		WithArgs(models.RoomTypeDirect, "user-a", "user-b").
		WillReturnRows(directRoomRows("room-1"))

	room, existed, err := repo.CreateOrGetDirectRoom(context.Background(), "user-a", "user-b")
	require.NoError(t, err)
	assert.True(t, existed)
	assert.Equal(t, "room-1", room.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateOrGetDirectRoomRejectsSelf(t *testing.T) {
	repo, mock := newMockRepo(t)

	_, _, err := repo.CreateOrGetDirectRoom(context.Background(), "user-a", "user-a")
	assert.ErrorIs(t, err, ErrSelfRoom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAddMemberRejectsWhenAtLimit(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT member_limit FROM rooms").
		WithArgs("room-1").
		WillReturnRows(sqlmock.NewRows([]string{"member_limit"}).AddRow(2))
	mock.ExpectQuery("SELECT COUNT").
		WithArgs("room-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectRollback()

	err := repo.AddMember(context.Background(), "room-1", "user-c")
	assert.ErrorIs(t, err, ErrRoomFull)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAddMemberAdmitsBelowLimitUnderRowLock(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT member_limit FROM rooms").
		WithArgs("room-1").
		WillReturnRows(sqlmock.NewRows([]string{"member_limit"}).AddRow(3))
	mock.ExpectQuery("SELECT COUNT").
		WithArgs("room-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectExec("INSERT INTO room_members").
		WithArgs("room-1", "user-c", models.RoleMember).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE rooms SET updated_at").
		WithArgs("room-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.AddMember(context.Background(), "room-1", "user-c")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAddMemberUnknownRoom(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT member_limit FROM rooms").
		WithArgs("room-x").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	err := repo.AddMember(context.Background(), "room-x", "user-c")
	assert.ErrorIs(t, err, ErrRoomNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLeaveDirectRoomTearsDownRoomAndMessages(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT room_type FROM rooms").
		WithArgs("room-1").
		WillReturnRows(sqlmock.NewRows([]string{"room_type"}).AddRow(models.RoomTypeDirect))
	mock.ExpectExec("DELETE FROM room_members").
		WithArgs("room-1", "user-a").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT COUNT").
		WithArgs("room-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectExec("DELETE FROM messages").
		WithArgs("room-1").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("DELETE FROM rooms").
		WithArgs("room-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	deleted, err := repo.Leave(context.Background(), "room-1", "user-a")
	require.NoError(t, err)
	assert.True(t, deleted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLeaveNonFinalGroupMemberWritesSystemMessage(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT room_type FROM rooms").
		WithArgs("room-2").
		WillReturnRows(sqlmock.NewRows([]string{"room_type"}).AddRow(models.RoomTypeLocation))
	mock.ExpectExec("DELETE FROM room_members").
		WithArgs("room-2", "user-a").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT COUNT").
		WithArgs("room-2").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectExec("INSERT INTO messages").
		WithArgs("room-2", "user-a", "left the room").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE rooms SET updated_at").
		WithArgs("room-2").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	deleted, err := repo.Leave(context.Background(), "room-2", "user-a")
	require.NoError(t, err)
	assert.False(t, deleted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLeaveWithoutMembership(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT room_type FROM rooms").
		WithArgs("room-2").
		WillReturnRows(sqlmock.NewRows([]string{"room_type"}).AddRow(models.RoomTypeLocation))
	mock.ExpectExec("DELETE FROM room_members").
		WithArgs("room-2", "user-z").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := repo.Leave(context.Background(), "room-2", "user-z")
	assert.ErrorIs(t, err, ErrNotMember)
	require.NoError(t, mock.ExpectationsWereMet())
}

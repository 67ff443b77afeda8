package repository

import (
	"context"
	"database/sql"
	"errors"

	pkgerrors "github.com/pkg/errors"

	"github.com/iliyamo/class-reservation/internal/model"
)

// ChatRepo maintains chat rooms and their participant rosters.  Message
// storage and delivery belong to the chat service; this repository only
// touches the tables that decide who is in a room.
type ChatRepo struct {
	db *sql.DB
}

// NewChatRepo returns a ChatRepo bound to db.
func NewChatRepo(db *sql.DB) *ChatRepo { return &ChatRepo{db: db} }

// RoomBySessionTx returns the room attached to a session or ErrNotFound.
func (r *ChatRepo) RoomBySessionTx(ctx context.Context, tx *sql.Tx, sessionID uint64) (*model.ChatRoom, error) {
	const q = `SELECT id, session_id, COALESCE(title, ''), created_at FROM chat_rooms WHERE session_id = ?`
	var room model.ChatRoom
	err := tx.QueryRowContext(ctx, q, sessionID).Scan(&room.ID, &room.SessionID, &room.Title, &room.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, pkgerrors.Wrap(err, "load chat room")
	}
	room.CreatedAt = room.CreatedAt.UTC()
	return &room, nil
}

// CreateRoomTx inserts a room for room.SessionID and fills in its ID.
func (r *ChatRepo) CreateRoomTx(ctx context.Context, tx *sql.Tx, room *model.ChatRoom) error {
	res, err := tx.ExecContext(ctx, `INSERT INTO chat_rooms (session_id, title) VALUES (?, ?)`, room.SessionID, room.Title)
	if err != nil {
		if isDuplicate(err) {
			return ErrConflict
		}
		return pkgerrors.Wrap(err, "create chat room")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return pkgerrors.Wrap(err, "chat room id")
	}
	room.ID = uint64(id)
	return nil
}

// EnsureParticipantTx adds the member to the room.  Adding an existing
// member is a no-op.
func (r *ChatRepo) EnsureParticipantTx(ctx context.Context, tx *sql.Tx, roomID uint64, role model.Role, memberID uint64) error {
	const q = `INSERT INTO chat_room_participants (room_id, member_role, member_id) VALUES (?, ?, ?)
	           ON DUPLICATE KEY UPDATE member_id = member_id`
	if _, err := tx.ExecContext(ctx, q, roomID, role, memberID); err != nil {
		return pkgerrors.Wrap(err, "ensure chat participant")
	}
	return nil
}

// RemoveParticipantTx removes the member from the room.  Removing an
// absent member is a no-op.
func (r *ChatRepo) RemoveParticipantTx(ctx context.Context, tx *sql.Tx, roomID uint64, role model.Role, memberID uint64) error {
	const q = `DELETE FROM chat_room_participants WHERE room_id = ? AND member_role = ? AND member_id = ?`
	if _, err := tx.ExecContext(ctx, q, roomID, role, memberID); err != nil {
		return pkgerrors.Wrap(err, "remove chat participant")
	}
	return nil
}

// IsParticipantTx reports whether the member is in the room.
func (r *ChatRepo) IsParticipantTx(ctx context.Context, tx *sql.Tx, roomID uint64, role model.Role, memberID uint64) (bool, error) {
	const q = `SELECT EXISTS(SELECT 1 FROM chat_room_participants WHERE room_id = ? AND member_role = ? AND member_id = ?)`
	var ok bool
	if err := tx.QueryRowContext(ctx, q, roomID, role, memberID).Scan(&ok); err != nil {
		return false, pkgerrors.Wrap(err, "check chat participant")
	}
	return ok, nil
}

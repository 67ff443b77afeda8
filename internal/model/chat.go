package model

import "time"

// ChatRoom is the discussion room attached to a class session.
//
// Fields:
//
//	ID        – primary key identifier.
//	SessionID – class session the room belongs to (unique).
//	Title     – display title.
//	CreatedAt – creation timestamp.
type ChatRoom struct {
	ID        uint64    `json:"id"`         // chat_rooms.id
	SessionID uint64    `json:"session_id"` // chat_rooms.session_id
	Title     string    `json:"title"`      // chat_rooms.title
	CreatedAt time.Time `json:"created_at"` // chat_rooms.created_at
}

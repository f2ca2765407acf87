package types

import (
	"time"
)

// UserRef identifies one party of a message. The id is always set; the
// display fields are filled in by enrichment and may be empty when the
// profile lookup was unavailable.
type UserRef struct {
	Id   int    `json:"id"`
	Name string `json:"name,omitempty"`
	Role string `json:"role,omitempty"`
}

type Message struct {
	Id        int       `json:"id,omitempty"`
	Sender    UserRef   `json:"sender"`
	Receiver  UserRef   `json:"receiver"`
	SessionId int       `json:"session_id,omitempty"`
	Content   string    `json:"content"`
	Read      bool      `json:"read"`
	Timestamp time.Time `json:"timestamp"`
}

// ConversationSummary describes the state of one conversation partner:
// the most recent message exchanged and how many of their messages are
// still unread.
type ConversationSummary struct {
	Partner     UserRef `json:"partner"`
	LastMessage Message `json:"last_message"`
	UnreadCount int     `json:"unread_count"`
}

package database

import (
	"database/sql"
	"time"
)

type Account struct {
	Id           int
	Name         string
	Role         string
	EmailAddress string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Session struct {
	Id        int
	StudentId int
	TutorId   int
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Message struct {
	Id         int
	SenderId   int
	ReceiverId int
	SessionId  sql.NullInt64
	Content    string
	Read       bool
	CreatedAt  time.Time
}

type CreateMessageParams struct {
	SenderId   int
	ReceiverId int
	SessionId  int
	Content    string
}

// ConversationSummary is the per-partner projection backing the
// conversation list: the latest message exchanged with that partner and
// the number of their messages the account has not read yet.
type ConversationSummary struct {
	PartnerId   int
	LastMessage Message
	UnreadCount int
}

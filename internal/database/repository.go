package database

type ChatRepository interface {
	Ping() error
	GetAccountById(accountId int) (Account, error)
	GetSessionById(sessionId int) (Session, error)
	CreateMessage(params CreateMessageParams) (Message, error)
	GetConversation(accountId, partnerId int) ([]Message, error)
	GetSessionMessages(sessionId int) ([]Message, error)
	MarkConversationRead(readerId, senderId int) (int, error)
	UnreadCount(accountId int) (int, error)
	ConversationSummaries(accountId int) ([]ConversationSummary, error)
	DeleteConversation(accountId, partnerId int) error
	DeleteSessionMessages(sessionId int) error
}

package database

import (
	"database/sql"
	"fmt"
	"sort"
	"time"
)

const messageColumns = "id, sender_id, receiver_id, session_id, content, read, created_at"

func scanMessage(row interface{ Scan(...any) error }) (Message, error) {
	var m Message
	err := row.Scan(
		&m.Id,
		&m.SenderId,
		&m.ReceiverId,
		&m.SessionId,
		&m.Content,
		&m.Read,
		&m.CreatedAt,
	)
	return m, err
}

func (db *PgChatRepository) GetAccountById(accountId int) (Account, error) {
	row := db.conn.QueryRow(
		"SELECT id, name, role, email FROM accounts "+
			"WHERE id = $1 LIMIT 1",
		accountId,
	)

	var account Account
	err := row.Scan(
		&account.Id,
		&account.Name,
		&account.Role,
		&account.EmailAddress,
	)

	return account, err
}

func (db *PgChatRepository) GetSessionById(sessionId int) (Session, error) {
	row := db.conn.QueryRow(
		"SELECT id, student_id, tutor_id, status FROM sessions "+
			"WHERE id = $1 LIMIT 1",
		sessionId,
	)

	var session Session
	err := row.Scan(
		&session.Id,
		&session.StudentId,
		&session.TutorId,
		&session.Status,
	)

	return session, err
}

func (db *PgChatRepository) CreateMessage(params CreateMessageParams) (Message, error) {
	var sessionId sql.NullInt64
	if params.SessionId != 0 {
		sessionId = sql.NullInt64{Int64: int64(params.SessionId), Valid: true}
	}

	res := db.conn.QueryRow(
		"INSERT INTO messages (sender_id, receiver_id, session_id, content, read, created_at) "+
			"VALUES ($1, $2, $3, $4, FALSE, $5) RETURNING "+messageColumns,
		params.SenderId,
		params.ReceiverId,
		sessionId,
		params.Content,
		time.Now().UTC(),
	)

	return scanMessage(res)
}

func (db *PgChatRepository) GetConversation(accountId, partnerId int) ([]Message, error) {
	rows, err := db.conn.Query(
		"SELECT "+messageColumns+" FROM messages "+
			"WHERE (sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1) "+
			"ORDER BY created_at ASC, id ASC",
		accountId,
		partnerId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectMessages(rows)
}

func (db *PgChatRepository) GetSessionMessages(sessionId int) ([]Message, error) {
	rows, err := db.conn.Query(
		"SELECT "+messageColumns+" FROM messages "+
			"WHERE session_id = $1 "+
			"ORDER BY created_at ASC, id ASC",
		sessionId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectMessages(rows)
}

func collectMessages(rows *sql.Rows) ([]Message, error) {
	var messages []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return messages, nil
}

// MarkConversationRead flips every unread message sent by senderId to
// readerId and returns how many rows changed. Calling it again with
// nothing left to mark returns zero.
func (db *PgChatRepository) MarkConversationRead(readerId, senderId int) (int, error) {
	res, err := db.conn.Exec(
		"UPDATE messages SET read = TRUE "+
			"WHERE sender_id = $2 AND receiver_id = $1 AND read = FALSE",
		readerId,
		senderId,
	)
	if err != nil {
		return 0, err
	}

	count, err := res.RowsAffected()
	return int(count), err
}

func (db *PgChatRepository) UnreadCount(accountId int) (int, error) {
	row := db.conn.QueryRow(
		"SELECT COUNT(*) FROM messages "+
			"WHERE receiver_id = $1 AND read = FALSE",
		accountId,
	)

	var count int
	err := row.Scan(&count)
	return count, err
}

func (db *PgChatRepository) ConversationSummaries(accountId int) ([]ConversationSummary, error) {
	rows, err := db.conn.Query(
		"SELECT DISTINCT ON (partner_id) "+
			"CASE WHEN sender_id = $1 THEN receiver_id ELSE sender_id END AS partner_id, "+
			messageColumns+" FROM messages "+
			"WHERE sender_id = $1 OR receiver_id = $1 "+
			"ORDER BY partner_id, created_at DESC, id DESC",
		accountId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []ConversationSummary
	for rows.Next() {
		var s ConversationSummary
		err := rows.Scan(
			&s.PartnerId,
			&s.LastMessage.Id,
			&s.LastMessage.SenderId,
			&s.LastMessage.ReceiverId,
			&s.LastMessage.SessionId,
			&s.LastMessage.Content,
			&s.LastMessage.Read,
			&s.LastMessage.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		summaries = append(summaries, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	countRows, err := db.conn.Query(
		"SELECT sender_id, COUNT(*) FROM messages "+
			"WHERE receiver_id = $1 AND read = FALSE "+
			"GROUP BY sender_id",
		accountId,
	)
	if err != nil {
		return nil, err
	}
	defer countRows.Close()

	unread := make(map[int]int)
	for countRows.Next() {
		var senderId, count int
		if err := countRows.Scan(&senderId, &count); err != nil {
			return nil, fmt.Errorf("scan unread count: %w", err)
		}
		unread[senderId] = count
	}

	if err := countRows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	for i := range summaries {
		summaries[i].UnreadCount = unread[summaries[i].PartnerId]
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].LastMessage.CreatedAt.After(summaries[j].LastMessage.CreatedAt)
	})

	return summaries, nil
}

func (db *PgChatRepository) DeleteConversation(accountId, partnerId int) error {
	_, err := db.conn.Exec(
		"DELETE FROM messages "+
			"WHERE (sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1)",
		accountId,
		partnerId,
	)
	return err
}

func (db *PgChatRepository) DeleteSessionMessages(sessionId int) error {
	_, err := db.conn.Exec(
		"DELETE FROM messages WHERE session_id = $1",
		sessionId,
	)
	return err
}

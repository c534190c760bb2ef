package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// ErrRoomNameTaken is returned by CreateRoom when the room name is
// already in use.
var ErrRoomNameTaken = errors.New("room name already taken")

const uniqueViolation = "23505"

func (db *PgChatRepository) CreateAccount(accountParams CreateAccountParams) (User, error) {
	res := db.conn.QueryRow(
		"INSERT INTO accounts (username, email, password_hash, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $4) RETURNING id, username, email, created_at, updated_at",
		accountParams.Username,
		accountParams.EmailAddress,
		accountParams.PasswordHash,
		time.Now().UTC(),
	)

	var u User
	err := res.Scan(
		&u.Id,
		&u.Username,
		&u.EmailAddress,
		&u.CreatedAt,
		&u.UpdatedAt,
	)

	return u, err
}

func (db *PgChatRepository) GetAccountById(accountId int) (User, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, email, created_at, updated_at FROM accounts "+
			"WHERE id = $1 LIMIT 1",
		accountId,
	)

	var user User
	err := row.Scan(
		&user.Id,
		&user.Username,
		&user.EmailAddress,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	return user, err
}

func (db *PgChatRepository) GetAccountByEmail(email string) (User, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, email, password_hash, created_at, updated_at FROM accounts "+
			"WHERE email = $1 LIMIT 1",
		email,
	)

	var user User
	err := row.Scan(
		&user.Id,
		&user.Username,
		&user.EmailAddress,
		&user.PasswordHash,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	return user, err
}

// CreateRoom inserts the room and enrolls the creator as its first
// member in a single transaction.
func (db *PgChatRepository) CreateRoom(name string, creatorId int) (Room, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return Room{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	res := tx.QueryRow(
		"INSERT INTO chatrooms (name, creator_id, created_at) "+
			"VALUES ($1, $2, $3) RETURNING id, name, creator_id, created_at",
		name,
		creatorId,
		time.Now().UTC(),
	)

	var room Room
	err = res.Scan(
		&room.Id,
		&room.Name,
		&room.CreatorId,
		&room.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return Room{}, ErrRoomNameTaken
		}
		return Room{}, err
	}

	_, err = tx.Exec(
		"INSERT INTO chatroom_members (chatroom_id, account_id, joined_at) VALUES ($1, $2, $3)",
		room.Id,
		creatorId,
		time.Now().UTC(),
	)
	if err != nil {
		return Room{}, err
	}

	if err = tx.Commit(); err != nil {
		return Room{}, err
	}

	return room, nil
}

func (db *PgChatRepository) GetRoomById(roomId int) (Room, error) {
	row := db.conn.QueryRow(
		"SELECT id, name, creator_id, created_at FROM chatrooms WHERE id = $1 LIMIT 1",
		roomId,
	)

	var room Room
	err := row.Scan(
		&room.Id,
		&room.Name,
		&room.CreatorId,
		&room.CreatedAt,
	)

	return room, err
}

func (db *PgChatRepository) GetRoomByName(name string) (Room, error) {
	row := db.conn.QueryRow(
		"SELECT id, name, creator_id, created_at FROM chatrooms WHERE name = $1 LIMIT 1",
		name,
	)

	var room Room
	err := row.Scan(
		&room.Id,
		&room.Name,
		&room.CreatorId,
		&room.CreatedAt,
	)

	return room, err
}

func (db *PgChatRepository) GetRoomWithMembers(roomId int) (*Room, error) {
	query := `
		SELECT
				r.id,
				r.name,
				r.creator_id,
				r.created_at,
				m.account_id,
				a.username,
				m.joined_at
		FROM chatrooms r
		LEFT JOIN chatroom_members m ON r.id = m.chatroom_id
		LEFT JOIN accounts a ON m.account_id = a.id
		WHERE r.id = $1;
`

	rows, err := db.conn.Query(query, roomId)
	if err != nil {
		return nil, fmt.Errorf("fetch room with members: %w", err)
	}
	defer rows.Close()

	var room *Room
	for rows.Next() {
		var (
			id        int
			name      string
			creatorId int
			createdAt time.Time
			accountId sql.NullInt64
			username  sql.NullString
			joinedAt  sql.NullTime
		)

		err := rows.Scan(
			&id,
			&name,
			&creatorId,
			&createdAt,
			&accountId,
			&username,
			&joinedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		if room == nil {
			room = &Room{
				Id:        id,
				Name:      name,
				CreatorId: creatorId,
				CreatedAt: createdAt,
				Members:   make([]Member, 0),
			}
		}

		if accountId.Valid && username.Valid {
			room.Members = append(room.Members, Member{
				AccountId: int(accountId.Int64),
				Username:  username.String,
				JoinedAt:  joinedAt.Time,
			})
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	if room == nil {
		return nil, sql.ErrNoRows
	}

	return room, nil
}

func (db *PgChatRepository) AddRoomMember(roomId, accountId int) error {
	_, err := db.conn.Exec(
		"INSERT INTO chatroom_members (chatroom_id, account_id, joined_at) "+
			"VALUES ($1, $2, $3) ON CONFLICT (chatroom_id, account_id) DO NOTHING",
		roomId,
		accountId,
		time.Now().UTC(),
	)

	return err
}

func (db *PgChatRepository) IsRoomMember(roomId, accountId int) (bool, error) {
	row := db.conn.QueryRow(
		"SELECT 1 FROM chatroom_members WHERE chatroom_id = $1 AND account_id = $2 LIMIT 1",
		roomId,
		accountId,
	)

	var one int
	err := row.Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}

	return err == nil, err
}

// ListRoomsForAccount returns the rooms the account is a member of,
// each carrying the content of its most recent message for list
// previews.
func (db *PgChatRepository) ListRoomsForAccount(accountId int) ([]Room, error) {
	rows, err := db.conn.Query(
		"SELECT r.id, r.name, r.creator_id, r.created_at, "+
			"COALESCE((SELECT content FROM messages WHERE chatroom_id = r.id ORDER BY created_at DESC, id DESC LIMIT 1), '') "+
			"FROM chatroom_members m JOIN chatrooms r ON r.id = m.chatroom_id "+
			"WHERE m.account_id = $1 ORDER BY r.created_at",
		accountId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []Room
	for rows.Next() {
		var room Room
		if err = rows.Scan(&room.Id, &room.Name, &room.CreatorId, &room.CreatedAt, &room.LastMessage); err != nil {
			return nil, err
		}

		rooms = append(rooms, room)
	}

	return rooms, rows.Err()
}

// AppendMessage stores a new message and returns it with the
// store-assigned id and creation time.
func (db *PgChatRepository) AppendMessage(roomId, accountId int, content string) (Message, error) {
	res := db.conn.QueryRow(
		"INSERT INTO messages (chatroom_id, user_id, content, created_at) "+
			"VALUES ($1, $2, $3, $4) RETURNING id, created_at",
		roomId,
		accountId,
		content,
		time.Now().UTC(),
	)

	msg := Message{
		RoomId:  roomId,
		UserId:  accountId,
		Content: content,
	}
	err := res.Scan(&msg.Id, &msg.CreatedAt)

	return msg, err
}

// GetRoomMessages returns up to limit messages in the room older than
// earlierThan (all of the newest when earlierThan is nil), newest
// first. Ties on created_at are broken by id so pages never overlap.
func (db *PgChatRepository) GetRoomMessages(roomId, limit int, earlierThan *time.Time) ([]Message, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := db.conn.Query(
		"SELECT m.id, m.chatroom_id, m.user_id, a.username, m.content, m.created_at "+
			"FROM messages m JOIN accounts a ON m.user_id = a.id "+
			"WHERE m.chatroom_id = $1 AND ($2::timestamptz IS NULL OR m.created_at < $2) "+
			"ORDER BY m.created_at DESC, m.id DESC LIMIT $3",
		roomId,
		earlierThan,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages = make([]Message, 0, limit)
	for rows.Next() {
		var msg Message
		if err = rows.Scan(&msg.Id, &msg.RoomId, &msg.UserId, &msg.SenderUsername, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, err
		}

		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

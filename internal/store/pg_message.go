package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgMessageStore implements MessageStore. seq breaks ties between equal dates.
type PgMessageStore struct {
	db *pgxpool.Pool
}

var _ MessageStore = (*PgMessageStore)(nil)

func NewPgMessageStore(dbp *pgxpool.Pool) *PgMessageStore {
	return &PgMessageStore{db: dbp}
}

func (s *PgMessageStore) Create(ctx context.Context, msg Message) (*Message, error) {
	msg.ID = uuid.New()
	if msg.Date.IsZero() {
		msg.Date = time.Now()
	}
	err := s.db.QueryRow(ctx, `
		INSERT INTO messages (id, user_name, message, date) VALUES ($1, $2, $3, $4)
		RETURNING date`, msg.ID, msg.User, msg.Message, msg.Date).Scan(&msg.Date)
	if err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}
	return &msg, nil
}

func (s *PgMessageStore) FindAllSortedByDate(ctx context.Context) ([]Message, error) {
	rows, err := s.db.Query(ctx, `SELECT id, user_name, message, date FROM messages ORDER BY date, seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to find messages: %w", err)
	}
	defer rows.Close()

	messages := []Message{}
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.User, &m.Message, &m.Date); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read messages: %w", err)
	}
	return messages, nil
}

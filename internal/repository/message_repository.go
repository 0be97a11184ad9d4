package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"smartreply/internal/entities"
)

var ErrMessageNotFound = errors.New("message not found")

type MessageRepository struct {
	db *pgxpool.Pool
}

func NewMessageRepository(db *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) Save(ctx context.Context, msg *entities.Message) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO messages (id, user_id, platform, sender, content, thread_id, external_id)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''))
		RETURNING created_at
	`, msg.ID, msg.UserID, msg.Platform, msg.Sender, msg.Content, msg.ThreadID, msg.ExternalID).Scan(&msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (r *MessageRepository) GetByID(ctx context.Context, userID int, id string) (*entities.Message, error) {
	var msg entities.Message
	err := r.db.QueryRow(ctx, `
		SELECT id, user_id, platform, sender, content,
		       COALESCE(thread_id, ''), COALESCE(external_id, ''), created_at
		FROM messages
		WHERE id = $1 AND user_id = $2
	`, id, userID).Scan(&msg.ID, &msg.UserID, &msg.Platform, &msg.Sender,
		&msg.Content, &msg.ThreadID, &msg.ExternalID, &msg.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, ErrMessageNotFound
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// List returns the user's messages on one platform, most recent first.
func (r *MessageRepository) List(ctx context.Context, userID int, platform string) ([]entities.Message, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, platform, sender, content,
		       COALESCE(thread_id, ''), COALESCE(external_id, ''), created_at
		FROM messages
		WHERE user_id = $1 AND platform = $2
		ORDER BY created_at DESC
	`, userID, platform)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []entities.Message{}
	for rows.Next() {
		var msg entities.Message
		if err := rows.Scan(&msg.ID, &msg.UserID, &msg.Platform, &msg.Sender,
			&msg.Content, &msg.ThreadID, &msg.ExternalID, &msg.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// Delete removes the message; the replies FK cascades in the store.
func (r *MessageRepository) Delete(ctx context.Context, userID int, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM messages WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrMessageNotFound
	}
	return nil
}

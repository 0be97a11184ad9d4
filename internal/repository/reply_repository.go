package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"smartreply/internal/entities"
)

type ReplyRepository struct {
	db *pgxpool.Pool
}

func NewReplyRepository(db *pgxpool.Pool) *ReplyRepository {
	return &ReplyRepository{db: db}
}

// SaveBatch inserts every reply in one statement, all-or-nothing.
func (r *ReplyRepository) SaveBatch(ctx context.Context, replies []entities.Reply) error {
	if len(replies) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString("INSERT INTO replies (id, message_id, tone, content, confidence) VALUES ")
	args := make([]any, 0, len(replies)*5)
	for i, reply := range replies {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * 5
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d)", base+1, base+2, base+3, base+4, base+5)
		args = append(args, reply.ID, reply.MessageID, reply.Tone, reply.Content, reply.Confidence)
	}

	if _, err := r.db.Exec(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("insert replies: %w", err)
	}
	return nil
}

func (r *ReplyRepository) ListByMessage(ctx context.Context, messageID string) ([]entities.Reply, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, message_id, tone, content, confidence, is_sent, created_at
		FROM replies
		WHERE message_id = $1
		ORDER BY created_at ASC
	`, messageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	replies := []entities.Reply{}
	for rows.Next() {
		var reply entities.Reply
		if err := rows.Scan(&reply.ID, &reply.MessageID, &reply.Tone, &reply.Content,
			&reply.Confidence, &reply.IsSent, &reply.CreatedAt); err != nil {
			return nil, err
		}
		replies = append(replies, reply)
	}
	return replies, rows.Err()
}

// MarkSent flips is_sent. It does not reject replies already marked sent;
// re-sending an already-sent reply is not enforced server-side.
func (r *ReplyRepository) MarkSent(ctx context.Context, id string) error {
	_, err := r.db.Exec(ctx, `UPDATE replies SET is_sent = TRUE WHERE id = $1`, id)
	return err
}

package interfaces

import (
	"context"
	"smartreply/internal/entities"
)

// ReplyContext carries optional context for reply generation.
type ReplyContext struct {
	Subject string
}

type AIClient interface {
	// GenerateReplies returns exactly three reply candidates or an error.
	// There is no canned fallback: unparseable provider output fails.
	GenerateReplies(ctx context.Context, text string, rc ReplyContext, language string) ([]entities.ReplyCandidate, error)
}

type Messenger interface {
	SendMessage(ctx context.Context, to, body string) (map[string]any, error)
}

type MailClient interface {
	RefreshAccessToken(ctx context.Context) (string, error)
	FetchUnread(ctx context.Context, accessToken string) ([]entities.InboundEmail, error)
	SendReply(ctx context.Context, accessToken, threadID, replyText string) (map[string]any, error)
}

type MessageStore interface {
	Save(ctx context.Context, msg *entities.Message) error
	GetByID(ctx context.Context, userID int, id string) (*entities.Message, error)
	List(ctx context.Context, userID int, platform string) ([]entities.Message, error)
	Delete(ctx context.Context, userID int, id string) error
}

type ReplyStore interface {
	SaveBatch(ctx context.Context, replies []entities.Reply) error
	ListByMessage(ctx context.Context, messageID string) ([]entities.Reply, error)
	MarkSent(ctx context.Context, id string) error
}

type UserStore interface {
	Create(ctx context.Context, user *entities.User) error
	// GetByUsername returns (nil, nil) when no such user exists.
	GetByUsername(ctx context.Context, username string) (*entities.User, error)
}

type MetricsStore interface {
	Save(ctx context.Context, m *entities.Metrics) error
	Latest(ctx context.Context, userID int, platform string) (*entities.Metrics, error)
}

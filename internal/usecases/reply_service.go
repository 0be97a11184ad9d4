package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"smartreply/internal/entities"
	"smartreply/internal/interfaces"
)

var ErrChannelNotConfigured = errors.New("channel is not configured")

// ReplyService orchestrates the ingestion, generation and delivery pipeline:
// store the message, ask the AI provider for three replies, store them,
// record a metrics snapshot, and optionally send a chosen reply back out.
type ReplyService struct {
	AI        interfaces.AIClient
	WhatsApp  interfaces.Messenger
	Mail      interfaces.MailClient
	Messages  interfaces.MessageStore
	Replies   interfaces.ReplyStore
	Metrics   interfaces.MetricsStore
	Estimator *MetricsEstimator
	Logger    *slog.Logger
}

func NewReplyService(ai interfaces.AIClient, whatsapp interfaces.Messenger, mail interfaces.MailClient,
	messages interfaces.MessageStore, replies interfaces.ReplyStore, metrics interfaces.MetricsStore,
	logger *slog.Logger) *ReplyService {
	return &ReplyService{
		AI:        ai,
		WhatsApp:  whatsapp,
		Mail:      mail,
		Messages:  messages,
		Replies:   replies,
		Metrics:   metrics,
		Estimator: NewMetricsEstimator(),
		Logger:    logger,
	}
}

// GenerationResult is the outcome of one generation call.
type GenerationResult struct {
	Message *entities.Message  `json:"message"`
	Replies []entities.Reply   `json:"replies"`
	Metrics *entities.Metrics  `json:"metrics"`
}

// GenerateForText runs the pipeline for a manually entered message.
func (s *ReplyService) GenerateForText(ctx context.Context, userID int, platform, sender, content, language string) (*GenerationResult, error) {
	return s.generate(ctx, &entities.Message{
		ID:       uuid.NewString(),
		UserID:   userID,
		Platform: platform,
		Sender:   sender,
		Content:  content,
	}, interfaces.ReplyContext{}, language)
}

// HandleWhatsAppInbound runs the pipeline for a messaging webhook delivery.
// One valid webhook yields exactly one Message row and three Reply rows.
// There is no idempotency key: a re-delivered webhook creates a duplicate.
func (s *ReplyService) HandleWhatsAppInbound(ctx context.Context, userID int, inbound entities.InboundMessage) (*GenerationResult, error) {
	return s.generate(ctx, &entities.Message{
		ID:         uuid.NewString(),
		UserID:     userID,
		Platform:   entities.PlatformWhatsApp,
		Sender:     inbound.From,
		Content:    inbound.Body,
		ExternalID: inbound.ExternalID,
	}, interfaces.ReplyContext{}, "auto")
}

// GenerateForMessage regenerates replies for an already stored message,
// appending a fresh batch of three alongside any earlier ones.
func (s *ReplyService) GenerateForMessage(ctx context.Context, userID int, messageID, language string) (*GenerationResult, error) {
	msg, err := s.Messages.GetByID(ctx, userID, messageID)
	if err != nil {
		return nil, fmt.Errorf("load message: %w", err)
	}
	return s.generateReplies(ctx, msg, interfaces.ReplyContext{}, language)
}

func (s *ReplyService) generate(ctx context.Context, msg *entities.Message, rc interfaces.ReplyContext, language string) (*GenerationResult, error) {
	if err := s.Messages.Save(ctx, msg); err != nil {
		return nil, fmt.Errorf("save message: %w", err)
	}
	return s.generateReplies(ctx, msg, rc, language)
}

func (s *ReplyService) generateReplies(ctx context.Context, msg *entities.Message, rc interfaces.ReplyContext, language string) (*GenerationResult, error) {
	candidates, err := s.AI.GenerateReplies(ctx, msg.Content, rc, language)
	if err != nil {
		return nil, fmt.Errorf("generate replies: %w", err)
	}

	replies := make([]entities.Reply, len(candidates))
	for i, c := range candidates {
		replies[i] = entities.Reply{
			ID:         uuid.NewString(),
			MessageID:  msg.ID,
			Tone:       c.Tone,
			Content:    c.Text,
			Confidence: c.Confidence,
			CreatedAt:  time.Now(),
		}
	}
	if err := s.Replies.SaveBatch(ctx, replies); err != nil {
		return nil, fmt.Errorf("save replies: %w", err)
	}

	// Metrics are non-critical telemetry: a failed insert is logged and the
	// request still succeeds.
	scores := s.Estimator.Estimate(candidates)
	metrics := &entities.Metrics{
		ID:             uuid.NewString(),
		UserID:         msg.UserID,
		Platform:       msg.Platform,
		Accuracy:       scores.Accuracy,
		PrecisionScore: scores.Precision,
		RecallScore:    scores.Recall,
		F1Score:        scores.F1,
		CreatedAt:      time.Now(),
	}
	if err := s.Metrics.Save(ctx, metrics); err != nil {
		s.Logger.Warn("failed to save metrics", "message_id", msg.ID, "error", err)
	}

	return &GenerationResult{Message: msg, Replies: replies, Metrics: metrics}, nil
}

// SendWhatsAppReply sends a reply through the messaging provider and, when a
// persisted reply id is given, marks it sent.
func (s *ReplyService) SendWhatsAppReply(ctx context.Context, to, body, replyID string) (map[string]any, error) {
	if s.WhatsApp == nil {
		return nil, fmt.Errorf("whatsapp: %w", ErrChannelNotConfigured)
	}

	data, err := s.WhatsApp.SendMessage(ctx, to, body)
	if err != nil {
		return nil, err
	}
	s.markSent(ctx, replyID)
	return data, nil
}

// SendEmailReply sends a reply into an email thread. The access token is
// exchanged fresh for every send.
func (s *ReplyService) SendEmailReply(ctx context.Context, threadID, replyText, replyID string) (map[string]any, error) {
	if s.Mail == nil {
		return nil, fmt.Errorf("email: %w", ErrChannelNotConfigured)
	}

	accessToken, err := s.Mail.RefreshAccessToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("refresh access token: %w", err)
	}

	data, err := s.Mail.SendReply(ctx, accessToken, threadID, replyText)
	if err != nil {
		return nil, err
	}
	s.markSent(ctx, replyID)
	return data, nil
}

// markSent is best-effort: the outbound send already happened, so a failure
// to flip the flag is logged rather than surfaced as a send failure.
func (s *ReplyService) markSent(ctx context.Context, replyID string) {
	if replyID == "" {
		return
	}
	if err := s.Replies.MarkSent(ctx, replyID); err != nil {
		s.Logger.Warn("failed to mark reply sent", "reply_id", replyID, "error", err)
	}
}

// FetchEmails pulls unread emails, persists each as a Message and generates
// replies per email. A generation failure for one email is logged and leaves
// that email without replies instead of failing the whole fetch.
func (s *ReplyService) FetchEmails(ctx context.Context, userID int) ([]entities.InboundEmail, error) {
	if s.Mail == nil {
		return nil, fmt.Errorf("email: %w", ErrChannelNotConfigured)
	}

	accessToken, err := s.Mail.RefreshAccessToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("refresh access token: %w", err)
	}

	emails, err := s.Mail.FetchUnread(ctx, accessToken)
	if err != nil {
		return nil, fmt.Errorf("fetch unread: %w", err)
	}

	for i := range emails {
		email := &emails[i]
		content := email.Body
		if email.Subject != "" {
			content = email.Subject + "\n\n" + email.Body
		}
		result, err := s.generate(ctx, &entities.Message{
			ID:         uuid.NewString(),
			UserID:     userID,
			Platform:   entities.PlatformEmail,
			Sender:     email.From,
			Content:    content,
			ThreadID:   email.ThreadID,
			ExternalID: email.ID,
		}, interfaces.ReplyContext{Subject: email.Subject}, "auto")
		if err != nil {
			s.Logger.Warn("reply generation failed for email", "email_id", email.ID, "error", err)
			email.Replies = []entities.ReplyCandidate{}
			continue
		}
		email.Replies = make([]entities.ReplyCandidate, len(result.Replies))
		for j, r := range result.Replies {
			email.Replies[j] = entities.ReplyCandidate{Tone: r.Tone, Text: r.Content, Confidence: r.Confidence}
		}
	}
	return emails, nil
}

// Filters narrow a message listing. They are applied after the store query,
// matching the way the UI filtered rows.
type Filters struct {
	Sender  string    // substring match on sender
	Subject string    // substring match on content, email only
	From    time.Time // inclusive lower bound
	To      time.Time // inclusive through the end of the To day
}

// MessageWithReplies pairs a message with its stored replies.
type MessageWithReplies struct {
	entities.Message
	Replies []entities.Reply `json:"replies"`
}

func (s *ReplyService) ListMessages(ctx context.Context, userID int, platform string, f Filters) ([]MessageWithReplies, error) {
	messages, err := s.Messages.List(ctx, userID, platform)
	if err != nil {
		return nil, err
	}

	filtered := FilterMessages(messages, platform, f)
	out := make([]MessageWithReplies, 0, len(filtered))
	for _, msg := range filtered {
		replies, err := s.Replies.ListByMessage(ctx, msg.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, MessageWithReplies{Message: msg, Replies: replies})
	}
	return out, nil
}

// FilterMessages applies the optional listing filters. The To bound is
// inclusive through 23:59:59.999 of its day.
func FilterMessages(messages []entities.Message, platform string, f Filters) []entities.Message {
	var endOfDay time.Time
	if !f.To.IsZero() {
		y, m, d := f.To.Date()
		endOfDay = time.Date(y, m, d, 23, 59, 59, 999_000_000, f.To.Location())
	}

	out := make([]entities.Message, 0, len(messages))
	for _, msg := range messages {
		if f.Sender != "" && !strings.Contains(strings.ToLower(msg.Sender), strings.ToLower(f.Sender)) {
			continue
		}
		if f.Subject != "" && platform == entities.PlatformEmail &&
			!strings.Contains(strings.ToLower(msg.Content), strings.ToLower(f.Subject)) {
			continue
		}
		if !f.From.IsZero() && msg.CreatedAt.Before(f.From) {
			continue
		}
		if !endOfDay.IsZero() && msg.CreatedAt.After(endOfDay) {
			continue
		}
		out = append(out, msg)
	}
	return out
}

func (s *ReplyService) DeleteMessage(ctx context.Context, userID int, id string) error {
	return s.Messages.Delete(ctx, userID, id)
}

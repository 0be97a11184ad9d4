package usecases

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartreply/internal/entities"
	"smartreply/internal/interfaces"
	"smartreply/internal/repository"
)

// ---- fakes ----

type fakeAI struct {
	replies []entities.ReplyCandidate
	err     error
	calls   int
}

func (f *fakeAI) GenerateReplies(_ context.Context, _ string, _ interfaces.ReplyContext, _ string) ([]entities.ReplyCandidate, error) {
	f.calls++
	return f.replies, f.err
}

type fakeMessenger struct {
	to, body string
	err      error
}

func (f *fakeMessenger) SendMessage(_ context.Context, to, body string) (map[string]any, error) {
	f.to, f.body = to, body
	if f.err != nil {
		return nil, f.err
	}
	return map[string]any{"sid": "SM1"}, nil
}

type fakeMail struct {
	emails     []entities.InboundEmail
	sentThread string
	sentText   string
}

func (f *fakeMail) RefreshAccessToken(context.Context) (string, error) { return "at", nil }
func (f *fakeMail) FetchUnread(context.Context, string) ([]entities.InboundEmail, error) {
	return f.emails, nil
}
func (f *fakeMail) SendReply(_ context.Context, _, threadID, replyText string) (map[string]any, error) {
	f.sentThread, f.sentText = threadID, replyText
	return map[string]any{"id": "sent-1"}, nil
}

type fakeMessageStore struct {
	saved   []entities.Message
	listing []entities.Message
	deleted []string
}

func (f *fakeMessageStore) Save(_ context.Context, msg *entities.Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	f.saved = append(f.saved, *msg)
	return nil
}
func (f *fakeMessageStore) GetByID(_ context.Context, userID int, id string) (*entities.Message, error) {
	for i := range f.saved {
		if f.saved[i].ID == id && f.saved[i].UserID == userID {
			return &f.saved[i], nil
		}
	}
	return nil, repository.ErrMessageNotFound
}
func (f *fakeMessageStore) List(context.Context, int, string) ([]entities.Message, error) {
	return f.listing, nil
}
func (f *fakeMessageStore) Delete(_ context.Context, _ int, id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeReplyStore struct {
	saved      []entities.Reply
	marked     []string
	markErr    error
	saveBatchE error
}

func (f *fakeReplyStore) SaveBatch(_ context.Context, replies []entities.Reply) error {
	if f.saveBatchE != nil {
		return f.saveBatchE
	}
	f.saved = append(f.saved, replies...)
	return nil
}
func (f *fakeReplyStore) ListByMessage(_ context.Context, messageID string) ([]entities.Reply, error) {
	out := []entities.Reply{}
	for _, r := range f.saved {
		if r.MessageID == messageID {
			out = append(out, r)
		}
	}
	return out, nil
}
func (f *fakeReplyStore) MarkSent(_ context.Context, id string) error {
	if f.markErr != nil {
		return f.markErr
	}
	f.marked = append(f.marked, id)
	return nil
}

type fakeMetricsStore struct {
	saved []entities.Metrics
	err   error
}

func (f *fakeMetricsStore) Save(_ context.Context, m *entities.Metrics) error {
	if f.err != nil {
		return f.err
	}
	f.saved = append(f.saved, *m)
	return nil
}
func (f *fakeMetricsStore) Latest(context.Context, int, string) (*entities.Metrics, error) {
	return nil, nil
}

func threeCandidates() []entities.ReplyCandidate {
	return []entities.ReplyCandidate{
		{Tone: "casual", Text: "Sure!", Confidence: 0.9},
		{Tone: "friendly", Text: "Works for me.", Confidence: 0.85},
		{Tone: "professional", Text: "That suits my schedule.", Confidence: 0.8},
	}
}

func newTestService(ai *fakeAI, msgs *fakeMessageStore, reps *fakeReplyStore, mets *fakeMetricsStore) *ReplyService {
	return NewReplyService(ai, &fakeMessenger{}, &fakeMail{}, msgs, reps, mets, slog.New(slog.DiscardHandler))
}

// ---- tests ----

func TestReplyService_GenerateForText(t *testing.T) {
	t.Run("one message, three replies, metrics snapshot", func(t *testing.T) {
		ai := &fakeAI{replies: threeCandidates()}
		msgs := &fakeMessageStore{}
		reps := &fakeReplyStore{}
		mets := &fakeMetricsStore{}
		svc := newTestService(ai, msgs, reps, mets)

		result, err := svc.GenerateForText(context.Background(), 7, "email", "manual", "Can we reschedule to Friday?", "auto")
		require.NoError(t, err)

		require.Len(t, msgs.saved, 1)
		assert.Equal(t, "Can we reschedule to Friday?", msgs.saved[0].Content)
		assert.Equal(t, 7, msgs.saved[0].UserID)
		assert.Equal(t, "email", msgs.saved[0].Platform)

		require.Len(t, result.Replies, 3)
		for _, r := range result.Replies {
			assert.Equal(t, result.Message.ID, r.MessageID)
			assert.NotEmpty(t, r.Tone)
			assert.NotEmpty(t, r.Content)
			assert.GreaterOrEqual(t, r.Confidence, 0.0)
			assert.LessOrEqual(t, r.Confidence, 1.0)
			assert.False(t, r.IsSent)
		}

		require.Len(t, mets.saved, 1)
		require.NotNil(t, result.Metrics)
		assert.LessOrEqual(t, result.Metrics.Accuracy, 100.0)
	})

	t.Run("generation failure fails the call", func(t *testing.T) {
		ai := &fakeAI{err: errors.New("safety blocked")}
		msgs := &fakeMessageStore{}
		reps := &fakeReplyStore{}
		svc := newTestService(ai, msgs, reps, &fakeMetricsStore{})

		_, err := svc.GenerateForText(context.Background(), 7, "email", "manual", "hello", "auto")
		require.Error(t, err)
		// The message row was already written; there is no compensating delete.
		assert.Len(t, msgs.saved, 1)
		assert.Empty(t, reps.saved)
	})

	t.Run("metrics insert failure does not fail the call", func(t *testing.T) {
		ai := &fakeAI{replies: threeCandidates()}
		mets := &fakeMetricsStore{err: errors.New("metrics table unavailable")}
		svc := newTestService(ai, &fakeMessageStore{}, &fakeReplyStore{}, mets)

		result, err := svc.GenerateForText(context.Background(), 7, "whatsapp", "manual", "hello", "auto")
		require.NoError(t, err)
		assert.Len(t, result.Replies, 3)
	})
}

func TestReplyService_GenerateForMessage(t *testing.T) {
	t.Run("appends a fresh batch without a new message row", func(t *testing.T) {
		ai := &fakeAI{replies: threeCandidates()}
		msgs := &fakeMessageStore{}
		reps := &fakeReplyStore{}
		svc := newTestService(ai, msgs, reps, &fakeMetricsStore{})

		first, err := svc.GenerateForText(context.Background(), 7, "email", "manual", "hello", "auto")
		require.NoError(t, err)

		second, err := svc.GenerateForMessage(context.Background(), 7, first.Message.ID, "auto")
		require.NoError(t, err)

		assert.Len(t, msgs.saved, 1)
		assert.Len(t, reps.saved, 6)
		assert.Equal(t, first.Message.ID, second.Message.ID)
	})

	t.Run("unknown message id", func(t *testing.T) {
		svc := newTestService(&fakeAI{}, &fakeMessageStore{}, &fakeReplyStore{}, &fakeMetricsStore{})
		_, err := svc.GenerateForMessage(context.Background(), 7, "nope", "auto")
		assert.ErrorIs(t, err, repository.ErrMessageNotFound)
	})

	t.Run("another user's message is not visible", func(t *testing.T) {
		ai := &fakeAI{replies: threeCandidates()}
		msgs := &fakeMessageStore{}
		svc := newTestService(ai, msgs, &fakeReplyStore{}, &fakeMetricsStore{})

		first, err := svc.GenerateForText(context.Background(), 7, "email", "manual", "hello", "auto")
		require.NoError(t, err)

		_, err = svc.GenerateForMessage(context.Background(), 8, first.Message.ID, "auto")
		assert.ErrorIs(t, err, repository.ErrMessageNotFound)
	})
}

func TestReplyService_HandleWhatsAppInbound(t *testing.T) {
	ai := &fakeAI{replies: threeCandidates()}
	msgs := &fakeMessageStore{}
	reps := &fakeReplyStore{}
	svc := newTestService(ai, msgs, reps, &fakeMetricsStore{})

	inbound := entities.InboundMessage{From: "whatsapp:+1555", Body: "hey", ExternalID: "SM1"}
	result, err := svc.HandleWhatsAppInbound(context.Background(), 1, inbound)
	require.NoError(t, err)

	require.Len(t, msgs.saved, 1)
	assert.Equal(t, "whatsapp", msgs.saved[0].Platform)
	assert.Equal(t, "whatsapp:+1555", msgs.saved[0].Sender)
	assert.Equal(t, "SM1", msgs.saved[0].ExternalID)
	assert.Len(t, result.Replies, 3)
}

func TestReplyService_SendWhatsAppReply(t *testing.T) {
	t.Run("marks reply sent after send", func(t *testing.T) {
		messenger := &fakeMessenger{}
		reps := &fakeReplyStore{}
		svc := NewReplyService(&fakeAI{}, messenger, nil, &fakeMessageStore{}, reps, &fakeMetricsStore{}, slog.New(slog.DiscardHandler))

		data, err := svc.SendWhatsAppReply(context.Background(), "+1555", "see you", "reply-1")
		require.NoError(t, err)
		assert.Equal(t, "SM1", data["sid"])
		assert.Equal(t, []string{"reply-1"}, reps.marked)
	})

	t.Run("no reply id skips marking", func(t *testing.T) {
		reps := &fakeReplyStore{}
		svc := NewReplyService(&fakeAI{}, &fakeMessenger{}, nil, &fakeMessageStore{}, reps, &fakeMetricsStore{}, slog.New(slog.DiscardHandler))

		_, err := svc.SendWhatsAppReply(context.Background(), "+1555", "see you", "")
		require.NoError(t, err)
		assert.Empty(t, reps.marked)
	})

	t.Run("send failure does not mark", func(t *testing.T) {
		messenger := &fakeMessenger{err: errors.New("provider down")}
		reps := &fakeReplyStore{}
		svc := NewReplyService(&fakeAI{}, messenger, nil, &fakeMessageStore{}, reps, &fakeMetricsStore{}, slog.New(slog.DiscardHandler))

		_, err := svc.SendWhatsAppReply(context.Background(), "+1555", "see you", "reply-1")
		require.Error(t, err)
		assert.Empty(t, reps.marked)
	})

	t.Run("marking an already-sent reply is not rejected", func(t *testing.T) {
		// Characterizes the known gap: the backend does not enforce
		// single-send; the second send succeeds and marks again.
		reps := &fakeReplyStore{}
		svc := NewReplyService(&fakeAI{}, &fakeMessenger{}, nil, &fakeMessageStore{}, reps, &fakeMetricsStore{}, slog.New(slog.DiscardHandler))

		_, err := svc.SendWhatsAppReply(context.Background(), "+1555", "see you", "reply-1")
		require.NoError(t, err)
		_, err = svc.SendWhatsAppReply(context.Background(), "+1555", "see you", "reply-1")
		require.NoError(t, err)
		assert.Equal(t, []string{"reply-1", "reply-1"}, reps.marked)
	})

	t.Run("channel not configured", func(t *testing.T) {
		svc := NewReplyService(&fakeAI{}, nil, nil, &fakeMessageStore{}, &fakeReplyStore{}, &fakeMetricsStore{}, slog.New(slog.DiscardHandler))
		_, err := svc.SendWhatsAppReply(context.Background(), "+1555", "see you", "")
		assert.ErrorIs(t, err, ErrChannelNotConfigured)
	})
}

func TestReplyService_SendEmailReply(t *testing.T) {
	mail := &fakeMail{}
	reps := &fakeReplyStore{}
	svc := NewReplyService(&fakeAI{}, nil, mail, &fakeMessageStore{}, reps, &fakeMetricsStore{}, slog.New(slog.DiscardHandler))

	data, err := svc.SendEmailReply(context.Background(), "thread-1", "Sounds good", "reply-9")
	require.NoError(t, err)
	assert.Equal(t, "sent-1", data["id"])
	assert.Equal(t, "thread-1", mail.sentThread)
	assert.Equal(t, []string{"reply-9"}, reps.marked)
}

func TestReplyService_FetchEmails(t *testing.T) {
	t.Run("persists each email and attaches replies", func(t *testing.T) {
		mail := &fakeMail{emails: []entities.InboundEmail{
			{ID: "m1", ThreadID: "t1", Subject: "Sub", From: "a@example.com", Body: "body one"},
			{ID: "m2", ThreadID: "t2", Subject: "", From: "b@example.com", Body: "body two"},
		}}
		ai := &fakeAI{replies: threeCandidates()}
		msgs := &fakeMessageStore{}
		svc := NewReplyService(ai, nil, mail, msgs, &fakeReplyStore{}, &fakeMetricsStore{}, slog.New(slog.DiscardHandler))

		emails, err := svc.FetchEmails(context.Background(), 3)
		require.NoError(t, err)
		require.Len(t, emails, 2)
		assert.Len(t, emails[0].Replies, 3)
		assert.Len(t, emails[1].Replies, 3)

		require.Len(t, msgs.saved, 2)
		assert.Equal(t, "email", msgs.saved[0].Platform)
		assert.Equal(t, "Sub\n\nbody one", msgs.saved[0].Content)
		assert.Equal(t, "body two", msgs.saved[1].Content)
		assert.Equal(t, "t1", msgs.saved[0].ThreadID)
		assert.Equal(t, 2, ai.calls)
	})

	t.Run("one failed generation does not fail the fetch", func(t *testing.T) {
		mail := &fakeMail{emails: []entities.InboundEmail{
			{ID: "m1", ThreadID: "t1", Body: "body"},
		}}
		ai := &fakeAI{err: errors.New("upstream error")}
		svc := NewReplyService(ai, nil, mail, &fakeMessageStore{}, &fakeReplyStore{}, &fakeMetricsStore{}, slog.New(slog.DiscardHandler))

		emails, err := svc.FetchEmails(context.Background(), 3)
		require.NoError(t, err)
		require.Len(t, emails, 1)
		assert.Empty(t, emails[0].Replies)
	})
}

func TestFilterMessages(t *testing.T) {
	day := func(s string) time.Time {
		ts, err := time.Parse(time.RFC3339, s)
		require.NoError(t, err)
		return ts
	}
	messages := []entities.Message{
		{ID: "1", Sender: "alice@example.com", Content: "Quarterly report", CreatedAt: day("2026-08-10T09:00:00Z")},
		{ID: "2", Sender: "bob@example.com", Content: "Lunch on Friday?", CreatedAt: day("2026-08-15T23:59:59Z")},
		{ID: "3", Sender: "carol@example.com", Content: "Invoice attached", CreatedAt: day("2026-08-20T00:00:00Z")},
	}

	t.Run("sender substring, case-insensitive", func(t *testing.T) {
		out := FilterMessages(messages, "email", Filters{Sender: "ALICE"})
		require.Len(t, out, 1)
		assert.Equal(t, "1", out[0].ID)
	})

	t.Run("subject filter only applies to email", func(t *testing.T) {
		out := FilterMessages(messages, "whatsapp", Filters{Subject: "invoice"})
		assert.Len(t, out, 3)

		out = FilterMessages(messages, "email", Filters{Subject: "invoice"})
		require.Len(t, out, 1)
		assert.Equal(t, "3", out[0].ID)
	})

	t.Run("to date is inclusive through end of day", func(t *testing.T) {
		out := FilterMessages(messages, "email", Filters{To: day("2026-08-15T00:00:00Z")})
		require.Len(t, out, 2)
		assert.Equal(t, "1", out[0].ID)
		assert.Equal(t, "2", out[1].ID) // 23:59:59 on the to-date itself stays in
	})

	t.Run("from date is an inclusive lower bound", func(t *testing.T) {
		out := FilterMessages(messages, "email", Filters{From: day("2026-08-15T00:00:00Z")})
		require.Len(t, out, 2)
	})

	t.Run("combined range", func(t *testing.T) {
		out := FilterMessages(messages, "email", Filters{
			From: day("2026-08-11T00:00:00Z"),
			To:   day("2026-08-15T00:00:00Z"),
		})
		require.Len(t, out, 1)
		assert.Equal(t, "2", out[0].ID)
	})
}

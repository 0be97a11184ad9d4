package entities

import "time"

const (
	PlatformWhatsApp = "whatsapp"
	PlatformEmail    = "email"
)

// ValidPlatform reports whether p names a supported channel.
func ValidPlatform(p string) bool {
	return p == PlatformWhatsApp || p == PlatformEmail
}

// Message is an inbound message owned by one user on one channel.
type Message struct {
	ID         string    `json:"id"`
	UserID     int       `json:"user_id"`
	Platform   string    `json:"platform"`
	Sender     string    `json:"sender"`
	Content    string    `json:"content"`
	ThreadID   string    `json:"thread_id,omitempty"`  // email conversation id
	ExternalID string    `json:"message_id,omitempty"` // provider's native id
	CreatedAt  time.Time `json:"created_at"`
}

// InboundMessage is a normalized messaging-channel webhook payload.
type InboundMessage struct {
	From        string
	Body        string
	ExternalID  string
	DisplayName string
}

// InboundEmail is one unread email fetched from the mail provider.
type InboundEmail struct {
	ID        string           `json:"id"`
	ThreadID  string           `json:"threadId"`
	Subject   string           `json:"subject"`
	From      string           `json:"from"`
	Body      string           `json:"body"`
	Timestamp time.Time        `json:"timestamp"`
	Replies   []ReplyCandidate `json:"replies"`
}

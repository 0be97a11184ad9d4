package entities

import "time"

// ReplyCandidate is one generated reply as returned by the AI provider.
type ReplyCandidate struct {
	Tone       string  `json:"tone"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"` // in [0,1]
}

// Reply is a persisted reply suggestion belonging to exactly one Message.
type Reply struct {
	ID         string    `json:"id"`
	MessageID  string    `json:"message_id"`
	Tone       string    `json:"tone"`
	Content    string    `json:"content"`
	Confidence float64   `json:"confidence"`
	IsSent     bool      `json:"is_sent"`
	CreatedAt  time.Time `json:"created_at"`
}

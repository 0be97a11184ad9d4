package entities

import "time"

// Metrics is an append-only quality snapshot written once per generation
// call. The scores are derived from reply confidences, not measured against
// any ground truth; they exist for display only.
type Metrics struct {
	ID             string    `json:"id"`
	UserID         int       `json:"user_id"`
	Platform       string    `json:"platform"`
	Accuracy       float64   `json:"accuracy"`
	PrecisionScore float64   `json:"precision_score"`
	RecallScore    float64   `json:"recall_score"`
	F1Score        float64   `json:"f1_score"`
	CreatedAt      time.Time `json:"created_at"`
}

package usecases

import (
	"math/rand"

	"smartreply/internal/entities"
)

// Scores are display-only quality numbers in [0,100].
type Scores struct {
	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision_score"`
	Recall    float64 `json:"recall_score"`
	F1        float64 `json:"f1_score"`
}

// MetricsEstimator derives cosmetic quality scores from reply confidences.
// Nothing is compared against ground truth: the scores are the mean
// confidence scaled by fixed constants plus random jitter, for the UI only.
type MetricsEstimator struct {
	jitter func() float64 // returns a value in [0,1)
}

func NewMetricsEstimator() *MetricsEstimator {
	return &MetricsEstimator{jitter: rand.Float64}
}

func (e *MetricsEstimator) Estimate(replies []entities.ReplyCandidate) Scores {
	if len(replies) == 0 {
		return Scores{}
	}

	var sum float64
	for _, r := range replies {
		sum += r.Confidence
	}
	mean := sum / float64(len(replies))

	return Scores{
		Accuracy:  clamp100(mean*100 + e.jitter()*10),
		Precision: clamp100(mean*95 + e.jitter()*15),
		Recall:    clamp100(mean*90 + e.jitter()*20),
		F1:        clamp100(mean*92 + e.jitter()*12),
	}
}

func clamp100(v float64) float64 {
	if v > 100 {
		return 100
	}
	if v < 0 {
		return 0
	}
	return v
}

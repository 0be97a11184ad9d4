package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"smartreply/internal/entities"
)

type MetricsRepository struct {
	db *pgxpool.Pool
}

func NewMetricsRepository(db *pgxpool.Pool) *MetricsRepository {
	return &MetricsRepository{db: db}
}

func (r *MetricsRepository) Save(ctx context.Context, m *entities.Metrics) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO metrics (id, user_id, platform, accuracy, precision_score, recall_score, f1_score)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`, m.ID, m.UserID, m.Platform, m.Accuracy, m.PrecisionScore, m.RecallScore, m.F1Score).Scan(&m.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert metrics: %w", err)
	}
	return nil
}

// Latest returns the most recent snapshot, or nil when none exists.
func (r *MetricsRepository) Latest(ctx context.Context, userID int, platform string) (*entities.Metrics, error) {
	var m entities.Metrics
	err := r.db.QueryRow(ctx, `
		SELECT id, user_id, platform, accuracy, precision_score, recall_score, f1_score, created_at
		FROM metrics
		WHERE user_id = $1 AND platform = $2
		ORDER BY created_at DESC
		LIMIT 1
	`, userID, platform).Scan(&m.ID, &m.UserID, &m.Platform, &m.Accuracy,
		&m.PrecisionScore, &m.RecallScore, &m.F1Score, &m.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

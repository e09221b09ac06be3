package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"keymint/internal/models"
)

type StatsStore interface {
	GetStats(ctx context.Context) (*models.Stats, error)
	GetActivationSeries(ctx context.Context, days int) ([]models.ActivationPoint, error)
}

type PostgresStatsStore struct {
	DB *pgxpool.Pool
}

func NewPostgresStatsStore(db *pgxpool.Pool) *PostgresStatsStore {
	return &PostgresStatsStore{DB: db}
}

func (s *PostgresStatsStore) GetStats(ctx context.Context) (*models.Stats, error) {
	stats := &models.Stats{ByClass: map[string]int{}}

	countsQuery := `
		SELECT
			count(*),
			count(*) FILTER (WHERE activated),
			count(*) FILTER (WHERE blocked),
			count(*) FILTER (WHERE NOT activated AND NOT blocked),
			count(*) FILTER (WHERE expires_at IS NOT NULL AND expires_at < now()),
			count(*) FILTER (WHERE activated_at >= now() - INTERVAL '24 hours'),
			count(*) FILTER (WHERE activated_at >= now() - INTERVAL '7 days')
		FROM licenses
	`
	if err := s.DB.QueryRow(ctx, countsQuery).Scan(
		&stats.Total,
		&stats.Activated,
		&stats.Blocked,
		&stats.Pending,
		&stats.Expired,
		&stats.Activations24h,
		&stats.Activations7d,
	); err != nil {
		return nil, fmt.Errorf("failed to count licenses: %w", err)
	}

	rows, err := s.DB.Query(ctx, `SELECT class, count(*) FROM licenses GROUP BY class`)
	if err != nil {
		return nil, fmt.Errorf("failed to count licenses by class: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var class string
		var count int
		if err := rows.Scan(&class, &count); err != nil {
			return nil, fmt.Errorf("failed to scan class count: %w", err)
		}
		stats.ByClass[class] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating class counts: %w", err)
	}

	return stats, nil
}

// GetActivationSeries returns daily activation counts for the trailing
// window. Days with no activations are absent from the result.
func (s *PostgresStatsStore) GetActivationSeries(ctx context.Context, days int) ([]models.ActivationPoint, error) {
	query := `
		SELECT to_char(activated_at::date, 'YYYY-MM-DD'), count(*)
		FROM licenses
		WHERE activated_at IS NOT NULL
		AND activated_at >= now() - make_interval(days => $1)
		GROUP BY activated_at::date
		ORDER BY activated_at::date
	`
	rows, err := s.DB.Query(ctx, query, days)
	if err != nil {
		return nil, fmt.Errorf("failed to query activation series: %w", err)
	}
	defer rows.Close()

	var series []models.ActivationPoint
	for rows.Next() {
		var p models.ActivationPoint
		if err := rows.Scan(&p.Date, &p.Count); err != nil {
			return nil, fmt.Errorf("failed to scan activation point: %w", err)
		}
		series = append(series, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating activation series: %w", err)
	}

	return series, nil
}

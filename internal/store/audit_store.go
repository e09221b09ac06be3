package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"keymint/internal/models"
)

// AuditStore is the append-only audit trail. Entries are never updated or
// deleted.
type AuditStore interface {
	Append(ctx context.Context, entry *models.AuditEntry) error
	ListEntries(ctx context.Context, limit int, action string) ([]models.AuditEntry, error)
}

type PostgresAuditStore struct {
	DB *pgxpool.Pool
}

func NewPostgresAuditStore(db *pgxpool.Pool) *PostgresAuditStore {
	return &PostgresAuditStore{DB: db}
}

func (s *PostgresAuditStore) Append(ctx context.Context, entry *models.AuditEntry) error {
	query := `
		INSERT INTO audit_log (action, license_key, device_id, origin, details)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	return s.DB.QueryRow(ctx, query,
		entry.Action,
		entry.LicenseKey,
		entry.DeviceID,
		entry.Origin,
		entry.Details,
	).Scan(&entry.ID, &entry.CreatedAt)
}

func (s *PostgresAuditStore) ListEntries(ctx context.Context, limit int, action string) ([]models.AuditEntry, error) {
	query := `
		SELECT id, created_at, action, license_key, device_id, origin, details
		FROM audit_log
	`
	args := []interface{}{}
	if action != "" {
		query += ` WHERE action = $1`
		args = append(args, action)
	}

	if limit <= 0 {
		limit = 100
	}
	if limit > 500 {
		limit = 500
	}
	query += fmt.Sprintf(" ORDER BY id DESC LIMIT $%d", len(args)+1)
	args = append(args, limit)

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var entries []models.AuditEntry
	for rows.Next() {
		var e models.AuditEntry
		if err := rows.Scan(
			&e.ID,
			&e.CreatedAt,
			&e.Action,
			&e.LicenseKey,
			&e.DeviceID,
			&e.Origin,
			&e.Details,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit log: %w", err)
	}

	return entries, nil
}

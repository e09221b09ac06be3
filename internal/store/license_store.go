package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"keymint/internal/models"
)

// LicenseStore is the durable record of every license key. Every mutation
// is a single SQL statement with a definite affected-row count; there is no
// read-modify-write pair anywhere in this interface, so an arbitrary number
// of concurrent workers stays correct without application-level locks.
type LicenseStore interface {
	Create(ctx context.Context, license *models.License) error
	CreateBatch(ctx context.Context, licenses []*models.License) error
	GetByKey(ctx context.Context, key string) (*models.License, error)
	GetByKeyAndDevice(ctx context.Context, key, deviceID string) (*models.License, error)
	Activate(ctx context.Context, key, deviceID, origin string, at time.Time) (bool, error)
	SetBlocked(ctx context.Context, key string, blocked bool) error
	ResetDevice(ctx context.Context, key string) error
	Extend(ctx context.Context, key string, days int) (time.Time, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, filter models.ListFilter) ([]models.License, error)
	Count(ctx context.Context) (int, error)
}

type PostgresLicenseStore struct {
	DB *pgxpool.Pool
}

func NewPostgresLicenseStore(db *pgxpool.Pool) *PostgresLicenseStore {
	return &PostgresLicenseStore{DB: db}
}

const licenseColumns = `key, device_id, class, created_at, expires_at, activated, blocked, activated_at, activation_origin, notes`

func scanLicense(row pgx.Row) (*models.License, error) {
	var l models.License
	err := row.Scan(
		&l.Key,
		&l.DeviceID,
		&l.Class,
		&l.CreatedAt,
		&l.ExpiresAt,
		&l.Activated,
		&l.Blocked,
		&l.ActivatedAt,
		&l.ActivationOrigin,
		&l.Notes,
	)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

const insertLicenseQuery = `
	INSERT INTO licenses (key, class, created_at, expires_at, notes)
	VALUES ($1, $2, $3, $4, $5)
`

func createErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: license key", ErrDuplicate)
	}
	return fmt.Errorf("failed to create license: %w", err)
}

func (s *PostgresLicenseStore) Create(ctx context.Context, license *models.License) error {
	_, err := s.DB.Exec(ctx, insertLicenseQuery,
		license.Key,
		license.Class,
		license.CreatedAt,
		license.ExpiresAt,
		license.Notes,
	)
	if err != nil {
		return createErr(err)
	}
	return nil
}

// CreateBatch inserts all licenses in one transaction: a fault or
// uniqueness violation at any point rolls the whole batch back, so a batch
// either exists in full or not at all.
func (s *PostgresLicenseStore) CreateBatch(ctx context.Context, licenses []*models.License) error {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, license := range licenses {
		if _, err := tx.Exec(ctx, insertLicenseQuery,
			license.Key,
			license.Class,
			license.CreatedAt,
			license.ExpiresAt,
			license.Notes,
		); err != nil {
			return createErr(err)
		}
	}

	return tx.Commit(ctx)
}

func (s *PostgresLicenseStore) GetByKey(ctx context.Context, key string) (*models.License, error) {
	query := `SELECT ` + licenseColumns + ` FROM licenses WHERE key = $1`
	l, err := scanLicense(s.DB.QueryRow(ctx, query, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: license", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get license: %w", err)
	}
	return l, nil
}

func (s *PostgresLicenseStore) GetByKeyAndDevice(ctx context.Context, key, deviceID string) (*models.License, error) {
	query := `SELECT ` + licenseColumns + ` FROM licenses WHERE key = $1 AND device_id = $2`
	l, err := scanLicense(s.DB.QueryRow(ctx, query, key, deviceID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: license", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get license: %w", err)
	}
	return l, nil
}

// Activate performs the single first-activation write path: an atomic
// conditional update guarded on the license still being pending. The check
// and the write are one statement, so of two racing activations exactly one
// observes RowsAffected()==1 and wins; the loser must re-read and report a
// device mismatch. Returns whether this caller won the bind.
func (s *PostgresLicenseStore) Activate(ctx context.Context, key, deviceID, origin string, at time.Time) (bool, error) {
	query := `
		UPDATE licenses
		SET device_id = $1, activated = TRUE, activated_at = $2, activation_origin = $3
		WHERE key = $4 AND activated = FALSE
	`
	tag, err := s.DB.Exec(ctx, query, deviceID, at, origin, key)
	if err != nil {
		return false, fmt.Errorf("failed to activate license: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresLicenseStore) SetBlocked(ctx context.Context, key string, blocked bool) error {
	tag, err := s.DB.Exec(ctx, `UPDATE licenses SET blocked = $1 WHERE key = $2`, blocked, key)
	if err != nil {
		return fmt.Errorf("failed to update blocked flag: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: license", ErrNotFound)
	}
	return nil
}

// ResetDevice returns a license to pending: the device binding and both
// activation fields are cleared in one statement.
func (s *PostgresLicenseStore) ResetDevice(ctx context.Context, key string) error {
	query := `
		UPDATE licenses
		SET device_id = NULL, activated = FALSE, activated_at = NULL, activation_origin = NULL
		WHERE key = $1
	`
	tag, err := s.DB.Exec(ctx, query, key)
	if err != nil {
		return fmt.Errorf("failed to reset device: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: license", ErrNotFound)
	}
	return nil
}

// Extend advances the expiry by the given number of days, counting from the
// current expiry or from now when the license already lapsed. Computed in
// SQL so the read and the write cannot interleave with another extension.
// Lifetime licenses (expires_at IS NULL) are not extensible.
func (s *PostgresLicenseStore) Extend(ctx context.Context, key string, days int) (time.Time, error) {
	query := `
		UPDATE licenses
		SET expires_at = GREATEST(expires_at, now()) + make_interval(days => $1)
		WHERE key = $2 AND expires_at IS NOT NULL
		RETURNING expires_at
	`
	var newExpiry time.Time
	err := s.DB.QueryRow(ctx, query, days, key).Scan(&newExpiry)
	if err == nil {
		return newExpiry, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, fmt.Errorf("failed to extend license: %w", err)
	}

	// Zero rows: either the key does not exist or it is a lifetime license.
	if _, getErr := s.GetByKey(ctx, key); getErr != nil {
		return time.Time{}, getErr
	}
	return time.Time{}, ErrNotExtensible
}

func (s *PostgresLicenseStore) Delete(ctx context.Context, key string) error {
	tag, err := s.DB.Exec(ctx, `DELETE FROM licenses WHERE key = $1`, key)
	if err != nil {
		return fmt.Errorf("failed to delete license: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: license", ErrNotFound)
	}
	return nil
}

func (s *PostgresLicenseStore) List(ctx context.Context, filter models.ListFilter) ([]models.License, error) {
	query := `SELECT ` + licenseColumns + ` FROM licenses WHERE 1=1`
	args := []interface{}{}

	if filter.Class != "" {
		query += fmt.Sprintf(" AND class = $%d", len(args)+1)
		args = append(args, filter.Class)
	}
	if filter.Search != "" {
		pattern := "%" + filter.Search + "%"
		query += fmt.Sprintf(" AND (key ILIKE $%d OR device_id ILIKE $%d OR notes ILIKE $%d)",
			len(args)+1, len(args)+2, len(args)+3)
		args = append(args, pattern, pattern, pattern)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	if limit > 500 {
		limit = 500
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args)+1)
	args = append(args, limit)

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list licenses: %w", err)
	}
	defer rows.Close()

	var licenses []models.License
	for rows.Next() {
		l, err := scanLicense(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan license: %w", err)
		}
		licenses = append(licenses, *l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating licenses: %w", err)
	}

	return licenses, nil
}

func (s *PostgresLicenseStore) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.DB.QueryRow(ctx, `SELECT count(*) FROM licenses`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count licenses: %w", err)
	}
	return count, nil
}

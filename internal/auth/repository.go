// AngelaMos | 2026
// repository.go

package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/aulamagica/backend/internal/core"
)

type AttemptRepository interface {
	Record(ctx context.Context, attempt *LoginAttempt) error
	CountFailedSince(
		ctx context.Context,
		identifier string,
		since time.Time,
	) (int, error)
	DeleteForIdentifier(ctx context.Context, identifier string) (int64, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	Stats(ctx context.Context, windowStart time.Time) (*AttemptStats, error)
}

type AttemptStats struct {
	Total        int64 `db:"total"         json:"total"`
	FailedRecent int64 `db:"failed_recent" json:"failed_recent"`
}

type attemptRepository struct {
	db core.DBTX
}

func NewAttemptRepository(db core.DBTX) AttemptRepository {
	return &attemptRepository{db: db}
}

func (r *attemptRepository) Record(
	ctx context.Context,
	attempt *LoginAttempt,
) error {
	if attempt.ID == "" {
		attempt.ID = uuid.New().String()
	}

	query := `
		INSERT INTO login_attempts (id, identifier, ip_address, success)
		VALUES ($1, $2, $3, $4)
		RETURNING attempted_at`

	err := r.db.GetContext(ctx, &attempt.AttemptedAt, query,
		attempt.ID,
		attempt.Identifier,
		attempt.IPAddress,
		attempt.Success,
	)
	if err != nil {
		return fmt.Errorf("record login attempt: %w", err)
	}

	return nil
}

// CountFailedSince counts failed rows inside the trailing window. The
// window boundary is computed by the caller at evaluation time so the
// throttle behaves as a sliding window, not a fixed bucket.
func (r *attemptRepository) CountFailedSince(
	ctx context.Context,
	identifier string,
	since time.Time,
) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM login_attempts
		WHERE identifier = $1
			AND success = false
			AND attempted_at >= $2`

	var count int
	if err := r.db.GetContext(ctx, &count, query, identifier, since); err != nil {
		return 0, fmt.Errorf("count failed attempts: %w", err)
	}

	return count, nil
}

func (r *attemptRepository) DeleteForIdentifier(
	ctx context.Context,
	identifier string,
) (int64, error) {
	query := `DELETE FROM login_attempts WHERE identifier = $1`

	result, err := r.db.ExecContext(ctx, query, identifier)
	if err != nil {
		return 0, fmt.Errorf("delete login attempts: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete login attempts: %w", err)
	}

	return rows, nil
}

// DeleteOlderThan trims rows no lockout decision can ever read again.
// Called from the periodic janitor, not the login path.
func (r *attemptRepository) DeleteOlderThan(
	ctx context.Context,
	cutoff time.Time,
) (int64, error) {
	query := `DELETE FROM login_attempts WHERE attempted_at < $1`

	result, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete stale attempts: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete stale attempts: %w", err)
	}

	return rows, nil
}

func (r *attemptRepository) Stats(
	ctx context.Context,
	windowStart time.Time,
) (*AttemptStats, error) {
	query := `
		SELECT
			COUNT(*) AS total,
			COUNT(*) FILTER (
				WHERE success = false AND attempted_at >= $1
			) AS failed_recent
		FROM login_attempts`

	var stats AttemptStats
	if err := r.db.GetContext(ctx, &stats, query, windowStart); err != nil {
		return nil, fmt.Errorf("attempt stats: %w", err)
	}

	return &stats, nil
}

package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"contactbook/api/internal/models"
)

const refreshTokenColumns = "id, token, user_id, created_at, expires_at"

type RefreshTokenRepository struct {
	db DB
}

func NewRefreshTokenRepository(db DB) *RefreshTokenRepository {
	return &RefreshTokenRepository{db: db}
}

func (r *RefreshTokenRepository) scanToken(row pgx.Row) (models.RefreshToken, error) {
	var rec models.RefreshToken
	err := row.Scan(&rec.ID, &rec.Token, &rec.UserID, &rec.CreatedAt, &rec.ExpiresAt)
	return rec, err
}

// Create persists a new refresh token record and returns the row as
// stored.
func (r *RefreshTokenRepository) Create(ctx context.Context, rec models.RefreshToken) (models.RefreshToken, error) {
	const query = `
		INSERT INTO refresh_tokens (id, token, user_id, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + refreshTokenColumns

	return r.scanToken(r.db.QueryRow(ctx, query,
		rec.ID,
		rec.Token,
		rec.UserID,
		rec.CreatedAt,
		rec.ExpiresAt,
	))
}

// Rotate overwrites the record matching (oldToken, userID) in place and
// returns the updated row. A nil result without error means no record
// matched: the presented token is stale or foreign. The single row-scoped
// UPDATE makes rotation at-most-once under concurrent refresh attempts.
func (r *RefreshTokenRepository) Rotate(ctx context.Context, oldToken string, rec models.RefreshToken, userID string) (*models.RefreshToken, error) {
	const query = `
		UPDATE refresh_tokens
		SET token = $1, created_at = $2, expires_at = $3
		WHERE token = $4 AND user_id = $5
		RETURNING ` + refreshTokenColumns

	rotated, err := r.scanToken(r.db.QueryRow(ctx, query,
		rec.Token,
		rec.CreatedAt,
		rec.ExpiresAt,
		oldToken,
		userID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rotated, nil
}

// DeleteExpired removes records whose expiry is before now. Run by the
// nightly scheduler.
func (r *RefreshTokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	const query = `DELETE FROM refresh_tokens WHERE expires_at < $1`
	cmd, err := r.db.Exec(ctx, query, now)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}
